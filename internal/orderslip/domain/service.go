package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	CustomerID     snowflake.ID
	ProductCode    string
	OrderedVolume  decimal.Decimal
	UnitPrice      decimal.Decimal
	CommissionRate decimal.Decimal
	FreightRate    decimal.Decimal
	ReceiptCap     int
	ExpiresAt      *time.Time
}

// TransitionRequest moves a slip to Target. SupplierID and HaulerID are
// recorded by the appointment transitions.
type TransitionRequest struct {
	Target     Status
	SupplierID *snowflake.ID
	HaulerID   *snowflake.ID
	Reason     string
}

type ListFilter struct {
	Status     Status
	CustomerID snowflake.ID
	Limit      int
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (OrderSlip, error)
	Get(ctx context.Context, id snowflake.ID) (OrderSlip, error)
	List(ctx context.Context, filter ListFilter) ([]OrderSlip, error)
	Transition(ctx context.Context, id snowflake.ID, req TransitionRequest) (OrderSlip, error)
	// AvailableTransitions lists the targets whose guards currently pass.
	AvailableTransitions(ctx context.Context, id snowflake.ID) ([]Status, error)
}

var (
	ErrInvalidCompany       = errors.New("invalid_company")
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidProduct       = errors.New("invalid_product")
	ErrInvalidVolume        = errors.New("invalid_volume")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInvalidRate          = errors.New("invalid_rate")
	ErrInvalidReceiptCap    = errors.New("invalid_receipt_cap")
	ErrNotFound             = errors.New("order_slip_not_found")
	ErrSupplierRequired     = errors.New("supplier_required")
	ErrHaulerRequired       = errors.New("hauler_required")
	ErrNoOpenReceipts       = errors.New("no_open_receipts")
	ErrReceiptsIncomplete   = errors.New("receipts_incomplete")
	ErrNotExpired           = errors.New("order_slip_not_expired")
	ErrOpenReceiptsRemain   = errors.New("open_receipts_remain")
	ErrNotAcceptingReceipts = errors.New("order_slip_not_accepting_receipts")
)
