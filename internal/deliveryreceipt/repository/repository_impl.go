package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	store "github.com/smallbiznis/fuelledger/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// ProvideReceiptCounter exposes the repository to the order slip guards.
func ProvideReceiptCounter(r domain.Repository) orderslipdomain.ReceiptCounter {
	return r
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, receipt *domain.DeliveryReceipt) error {
	return db.WithContext(ctx).Create(receipt).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.DeliveryReceipt, error) {
	return store.FindOne[domain.DeliveryReceipt](ctx, db, store.ByCompany(companyID), store.ByID(id))
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*domain.DeliveryReceipt, error) {
	return store.FindOne[domain.DeliveryReceipt](ctx, db, store.ByCompany(companyID), store.ByID(id), store.ForUpdate())
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListFilter) ([]*domain.DeliveryReceipt, error) {
	scopes := []store.Scope{store.ByCompany(companyID), store.Limit(filter.Limit)}
	if filter.OrderSlipID != 0 {
		scopes = append(scopes, bySlip(filter.OrderSlipID))
	}
	if filter.Status != "" {
		scopes = append(scopes, byStatus(filter.Status))
	}
	scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
		return db.Order("control_seq desc, id desc")
	})
	return store.Find[domain.DeliveryReceipt](ctx, db, scopes...)
}

func (r *repo) ListInvoicedBySlip(ctx context.Context, db *gorm.DB, companyID, slipID snowflake.ID) ([]*domain.DeliveryReceipt, error) {
	return store.Find[domain.DeliveryReceipt](ctx, db,
		store.ByCompany(companyID),
		bySlip(slipID),
		byStatus(domain.StatusInvoiced),
		func(db *gorm.DB) *gorm.DB { return db.Order("control_seq asc") },
	)
}

func (r *repo) ManualNumberExists(ctx context.Context, db *gorm.DB, companyID snowflake.ID, number string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.DeliveryReceipt{}).
		Unscoped().
		Where("company_id = ? AND manual_number = ?", companyID, number).
		Count(&count).Error
	return count > 0, err
}

// EnsureManualNumberIndex creates the company scoped manual number index on
// auto migrated schemas. The column is nullable, so receipts without a manual
// number never collide.
func EnsureManualNumberIndex(db *gorm.DB) error {
	if db.Migrator().HasIndex(&domain.DeliveryReceipt{}, domain.ManualNumberIndex) {
		return nil
	}
	return db.Exec("CREATE UNIQUE INDEX " + domain.ManualNumberIndex + " ON delivery_receipts (company_id, manual_number)").Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, receipt *domain.DeliveryReceipt) error {
	return db.WithContext(ctx).
		Model(&domain.DeliveryReceipt{}).
		Where("company_id = ? AND id = ?", receipt.CompanyID, receipt.ID).
		Updates(map[string]any{
			"status":                 receipt.Status,
			"status_reason":          receipt.StatusReason,
			"posted_unit_price":      receipt.PostedUnitPrice,
			"posted_commission_rate": receipt.PostedCommissionRate,
			"posted_freight_rate":    receipt.PostedFreightRate,
			"delivered_at":           receipt.DeliveredAt,
			"posted_at":              receipt.PostedAt,
			"updated_at":             receipt.UpdatedAt,
		}).Error
}

func (r *repo) SoftDelete(ctx context.Context, db *gorm.DB, receipt *domain.DeliveryReceipt) error {
	return db.WithContext(ctx).
		Where("company_id = ? AND id = ?", receipt.CompanyID, receipt.ID).
		Delete(&domain.DeliveryReceipt{}).Error
}

func (r *repo) Summarize(ctx context.Context, db *gorm.DB, companyID, slipID snowflake.ID) (orderslipdomain.ReceiptSummary, error) {
	var rows []struct {
		Status   domain.Status
		Released bool
	}
	err := db.WithContext(ctx).
		Model(&domain.DeliveryReceipt{}).
		Unscoped().
		Select("status, (released_at IS NOT NULL OR deleted_at IS NOT NULL) AS released").
		Where("company_id = ? AND order_slip_id = ?", companyID, slipID).
		Scan(&rows).Error
	if err != nil {
		return orderslipdomain.ReceiptSummary{}, err
	}

	var summary orderslipdomain.ReceiptSummary
	for _, row := range rows {
		if row.Released {
			summary.Released++
			continue
		}
		summary.Linked++
		switch {
		case row.Status.Open():
			summary.Open++
		case row.Status == domain.StatusInvoiced:
			summary.Posted++
		}
	}
	return summary, nil
}

func bySlip(slipID snowflake.ID) store.Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("order_slip_id = ?", slipID)
	}
}

func byStatus(status domain.Status) store.Scope {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", status)
	}
}
