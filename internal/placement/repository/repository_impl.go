package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/placement/domain"
	store "github.com/smallbiznis/fuelledger/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, placement *domain.Placement) error {
	return db.WithContext(ctx).Create(placement).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.Placement, error) {
	return store.FindOne[domain.Placement](ctx, db, store.ByCompany(companyID), store.ByID(id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.Placement, error) {
	return store.FindOne[domain.Placement](ctx, db, store.ByCompany(companyID), store.ByID(id), store.ForUpdate())
}

func (r *repo) ListBatch(ctx context.Context, db *gorm.DB, companyID snowflake.ID, batchNumber string) ([]*domain.Placement, error) {
	return store.Find[domain.Placement](ctx, db,
		store.ByCompany(companyID),
		func(db *gorm.DB) *gorm.DB {
			return db.Where("batch_number = ?", batchNumber).Order("from_date asc, id asc")
		},
	)
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *domain.Placement) error {
	return db.WithContext(ctx).
		Model(&domain.Placement{}).
		Where("company_id = ? AND id = ?", p.CompanyID, p.ID).
		Updates(map[string]any{
			"bank_name":        p.BankName,
			"account_number":   p.AccountNumber,
			"principal":        p.Principal,
			"interest_rate":    p.InterestRate,
			"from_date":        p.FromDate,
			"to_date":          p.ToDate,
			"has_ewt":          p.HasEWT,
			"ewt_rate":         p.EWTRate,
			"has_trust_fee":    p.HasTrustFee,
			"trust_fee_rate":   p.TrustFeeRate,
			"term_days":        p.TermDays,
			"earned_gross":     p.EarnedGross,
			"ewt_amount":       p.EWTAmount,
			"trust_fee_amount": p.TrustFeeAmount,
			"net":              p.Net,
			"maturity_value":   p.MaturityValue,
			"status":           p.Status,
			"interest_status":  p.InterestStatus,
			"batch_number":     p.BatchNumber,
			"disposed_at":      p.DisposedAt,
			"updated_at":       p.UpdatedAt,
		}).Error
}

func (r *repo) InsertSwap(ctx context.Context, db *gorm.DB, swap *domain.PlacementSwap) error {
	return db.WithContext(ctx).Create(swap).Error
}

func (r *repo) ListSwaps(ctx context.Context, db *gorm.DB, companyID, placementID snowflake.ID) ([]*domain.PlacementSwap, error) {
	return store.Find[domain.PlacementSwap](ctx, db,
		store.ByCompany(companyID),
		func(db *gorm.DB) *gorm.DB {
			return db.Where("placement_id = ?", placementID).Order("swapped_at asc, id asc")
		},
	)
}
