package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
)

type CreateRequest struct {
	OrderSlipID  snowflake.ID
	Volume       decimal.Decimal
	ManualNumber string
}

type TransitionRequest struct {
	Target      Status
	Reason      string
	DeliveredAt *time.Time
}

type ListFilter struct {
	OrderSlipID snowflake.ID
	Status      Status
	Limit       int
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (DeliveryReceipt, error)
	Get(ctx context.Context, id snowflake.ID) (DeliveryReceipt, error)
	List(ctx context.Context, filter ListFilter) ([]DeliveryReceipt, error)
	Transition(ctx context.Context, id snowflake.ID, req TransitionRequest) (DeliveryReceipt, error)
	// Delete releases the receipt's volume and soft deletes it. Posted receipts must be voided instead.
	Delete(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidCompany        = errors.New("invalid_company")
	ErrInvalidOrderSlip      = errors.New("invalid_order_slip")
	ErrInvalidVolume         = errors.New("invalid_volume")
	ErrNotFound              = errors.New("delivery_receipt_not_found")
	ErrDuplicateManualNumber = errors.New("duplicate_manual_number")
	ErrReceiptPosted         = errors.New("delivery_receipt_posted")
	ErrSlipNotAccepting      = orderslipdomain.ErrNotAcceptingReceipts
)
