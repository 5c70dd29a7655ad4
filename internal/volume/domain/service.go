package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	"gorm.io/gorm"
)

// Service guards the volume budget of order slips. Mutating calls take the
// caller's transaction, which must already hold a row lock on the slip.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, slip *orderslipdomain.OrderSlip, volume decimal.Decimal) error
	Check(ctx context.Context, slipID snowflake.ID, volume decimal.Decimal) (Balance, error)
	Deduct(ctx context.Context, tx *gorm.DB, slip *orderslipdomain.OrderSlip, receiptID snowflake.ID, alloc *Allocation) (bool, error)
	Release(ctx context.Context, tx *gorm.DB, slip *orderslipdomain.OrderSlip, receiptID snowflake.ID, alloc *Allocation) (bool, error)
	Balance(ctx context.Context, slipID snowflake.ID) (Balance, error)
}

var (
	ErrInsufficientBudget = errors.New("insufficient_budget")
	ErrInvalidVolume      = errors.New("invalid_volume")
	ErrInvalidCompany     = errors.New("invalid_company")
	ErrSlipNotFound       = errors.New("order_slip_not_found")
	ErrAlreadyReleased    = errors.New("volume_already_released")
	ErrTxRequired         = errors.New("volume_tx_required")
)
