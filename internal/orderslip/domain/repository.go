package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, slip *OrderSlip) error
	FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*OrderSlip, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*OrderSlip, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListFilter) ([]*OrderSlip, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, slip *OrderSlip) error
	UpdateUnitPrice(ctx context.Context, db *gorm.DB, slip *OrderSlip) error
	UpdateDeliveredVolume(ctx context.Context, db *gorm.DB, slip *OrderSlip) error
}

// ReceiptCounter summarizes the receipts linked to a slip. It is implemented
// by the delivery receipt repository.
type ReceiptCounter interface {
	Summarize(ctx context.Context, db *gorm.DB, companyID, slipID snowflake.ID) (ReceiptSummary, error)
}
