package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	store "github.com/smallbiznis/fuelledger/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, slip *domain.OrderSlip) error {
	return db.WithContext(ctx).Create(slip).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.OrderSlip, error) {
	return store.FindOne[domain.OrderSlip](ctx, db, store.ByCompany(companyID), store.ByID(id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.OrderSlip, error) {
	return store.FindOne[domain.OrderSlip](ctx, db, store.ByCompany(companyID), store.ByID(id), store.ForUpdate())
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListFilter) ([]*domain.OrderSlip, error) {
	var slips []*domain.OrderSlip
	stmt := db.WithContext(ctx).
		Model(&domain.OrderSlip{}).
		Where("company_id = ?", companyID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	stmt = store.Limit(filter.Limit)(stmt)
	err := stmt.
		Order("control_seq desc, id desc").
		Find(&slips).Error
	if err != nil {
		return nil, err
	}
	return slips, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, slip *domain.OrderSlip) error {
	return r.update(ctx, db, slip, map[string]any{
		"status":        slip.Status,
		"supplier_id":   slip.SupplierID,
		"hauler_id":     slip.HaulerID,
		"status_reason": slip.StatusReason,
		"updated_at":    slip.UpdatedAt,
	})
}

func (r *repo) UpdateUnitPrice(ctx context.Context, db *gorm.DB, slip *domain.OrderSlip) error {
	return r.update(ctx, db, slip, map[string]any{
		"unit_price": slip.UnitPrice,
		"updated_at": slip.UpdatedAt,
	})
}

func (r *repo) UpdateDeliveredVolume(ctx context.Context, db *gorm.DB, slip *domain.OrderSlip) error {
	return r.update(ctx, db, slip, map[string]any{
		"delivered_volume": slip.DeliveredVolume,
		"updated_at":       slip.UpdatedAt,
	})
}

func (r *repo) update(ctx context.Context, db *gorm.DB, slip *domain.OrderSlip, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.OrderSlip{}).
		Where("company_id = ? AND id = ?", slip.CompanyID, slip.ID).
		Updates(fields).Error
}
