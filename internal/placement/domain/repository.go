package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, placement *Placement) error
	FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*Placement, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*Placement, error)
	ListBatch(ctx context.Context, db *gorm.DB, companyID snowflake.ID, batchNumber string) ([]*Placement, error)
	Update(ctx context.Context, db *gorm.DB, placement *Placement) error
	InsertSwap(ctx context.Context, db *gorm.DB, swap *PlacementSwap) error
	ListSwaps(ctx context.Context, db *gorm.DB, companyID, placementID snowflake.ID) ([]*PlacementSwap, error)
}
