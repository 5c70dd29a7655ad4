package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	receiptdomain "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
)

type Service interface {
	RecalculateReceipt(ctx context.Context, receiptID snowflake.ID, updatedPrice decimal.Decimal, reason string) (BatchResult, error)
	// RecalculateOrderSlip moves the slip price and corrects every invoiced
	// receipt in its own transaction. Failed items are reported, not rolled back.
	RecalculateOrderSlip(ctx context.Context, slipID snowflake.ID, updatedPrice decimal.Decimal, reason string) (BatchResult, error)
	Pending(ctx context.Context, revisionID snowflake.ID) ([]receiptdomain.DeliveryReceipt, error)
	Retry(ctx context.Context, revisionID snowflake.ID) (BatchResult, error)
	ListAdjustments(ctx context.Context, receiptID snowflake.ID) ([]ReceiptAdjustment, error)
}

var (
	ErrInvalidCompany   = errors.New("invalid_company")
	ErrInvalidPrice     = errors.New("invalid_price")
	ErrReceiptNotFound  = errors.New("delivery_receipt_not_found")
	ErrSlipNotFound     = errors.New("order_slip_not_found")
	ErrRevisionNotFound = errors.New("price_revision_not_found")
	ErrReceiptNotPosted = errors.New("delivery_receipt_not_posted")
)
