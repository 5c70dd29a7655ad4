package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertRevision(ctx context.Context, db *gorm.DB, revision *PriceRevision) error
	FindRevision(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*PriceRevision, error)
	InsertAdjustment(ctx context.Context, db *gorm.DB, adjustment *ReceiptAdjustment) error
	FindAdjustment(ctx context.Context, db *gorm.DB, revisionID, receiptID snowflake.ID) (*ReceiptAdjustment, error)
	ListAdjustments(ctx context.Context, db *gorm.DB, companyID, receiptID snowflake.ID) ([]*ReceiptAdjustment, error)
	// LatestAdjustment returns the adjustment of the newest revision applied to
	// the receipt. Revisions are ordered by ID, which follows issue time.
	LatestAdjustment(ctx context.Context, db *gorm.DB, companyID, receiptID snowflake.ID) (*ReceiptAdjustment, error)
	AdjustedReceiptIDs(ctx context.Context, db *gorm.DB, revisionID snowflake.ID) (map[snowflake.ID]bool, error)
}
