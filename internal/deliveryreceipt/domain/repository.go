package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	"gorm.io/gorm"
)

type Repository interface {
	orderslipdomain.ReceiptCounter

	Insert(ctx context.Context, db *gorm.DB, receipt *DeliveryReceipt) error
	FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*DeliveryReceipt, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*DeliveryReceipt, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListFilter) ([]*DeliveryReceipt, error)
	ListInvoicedBySlip(ctx context.Context, db *gorm.DB, companyID, slipID snowflake.ID) ([]*DeliveryReceipt, error)
	ManualNumberExists(ctx context.Context, db *gorm.DB, companyID snowflake.ID, number string) (bool, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, receipt *DeliveryReceipt) error
	SoftDelete(ctx context.Context, db *gorm.DB, receipt *DeliveryReceipt) error
}
