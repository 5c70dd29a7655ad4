package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/recalculation/domain"
	store "github.com/smallbiznis/fuelledger/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertRevision(ctx context.Context, db *gorm.DB, revision *domain.PriceRevision) error {
	return db.WithContext(ctx).Create(revision).Error
}

func (r *repo) FindRevision(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.PriceRevision, error) {
	return store.FindOne[domain.PriceRevision](ctx, db, store.ByCompany(companyID), store.ByID(id))
}

func (r *repo) InsertAdjustment(ctx context.Context, db *gorm.DB, adjustment *domain.ReceiptAdjustment) error {
	return db.WithContext(ctx).Create(adjustment).Error
}

func (r *repo) FindAdjustment(ctx context.Context, db *gorm.DB, revisionID, receiptID snowflake.ID) (*domain.ReceiptAdjustment, error) {
	return store.FindOne[domain.ReceiptAdjustment](ctx, db, func(db *gorm.DB) *gorm.DB {
		return db.Where("revision_id = ? AND receipt_id = ?", revisionID, receiptID)
	})
}

func (r *repo) ListAdjustments(ctx context.Context, db *gorm.DB, companyID, receiptID snowflake.ID) ([]*domain.ReceiptAdjustment, error) {
	return store.Find[domain.ReceiptAdjustment](ctx, db, store.ByCompany(companyID), func(db *gorm.DB) *gorm.DB {
		return db.Where("receipt_id = ?", receiptID).Order("created_at asc, id asc")
	})
}

func (r *repo) LatestAdjustment(ctx context.Context, db *gorm.DB, companyID, receiptID snowflake.ID) (*domain.ReceiptAdjustment, error) {
	return store.FindOne[domain.ReceiptAdjustment](ctx, db, store.ByCompany(companyID), func(db *gorm.DB) *gorm.DB {
		return db.Where("receipt_id = ?", receiptID).Order("revision_id desc")
	})
}

func (r *repo) AdjustedReceiptIDs(ctx context.Context, db *gorm.DB, revisionID snowflake.ID) (map[snowflake.ID]bool, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.ReceiptAdjustment{}).
		Where("revision_id = ?", revisionID).
		Pluck("receipt_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
