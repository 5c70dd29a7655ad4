package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
	volumedomain "github.com/smallbiznis/fuelledger/internal/volume/domain"
	"gorm.io/gorm"
)

type Status string

const (
	StatusForApprovalOfOM Status = "for_approval_of_om"
	StatusPendingDelivery Status = "pending_delivery"
	StatusForInvoicing    Status = "for_invoicing"
	StatusInvoiced        Status = "invoiced"
	StatusCanceled        Status = "canceled"
	StatusVoided          Status = "voided"
)

// Open reports whether the receipt still awaits posting or cancellation.
func (s Status) Open() bool {
	switch s {
	case StatusForApprovalOfOM, StatusPendingDelivery, StatusForInvoicing:
		return true
	default:
		return false
	}
}

// DeliveryReceipt is one fulfillment against an order slip. The Posted*
// fields are frozen when the receipt is invoiced and never change afterwards.
type DeliveryReceipt struct {
	ID snowflake.ID `gorm:"primaryKey" json:"id"`
	sequencedomain.Control
	volumedomain.Allocation

	OrderSlipID          snowflake.ID    `gorm:"not null;index" json:"order_slip_id"`
	ManualNumber         *string         `gorm:"type:text;index" json:"manual_number,omitempty"`
	Status               Status          `gorm:"type:text;not null;index" json:"status"`
	RequiresApproval     bool            `gorm:"not null;default:false" json:"requires_approval"`
	PostedUnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"posted_unit_price"`
	PostedCommissionRate decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0" json:"posted_commission_rate"`
	PostedFreightRate    decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0" json:"posted_freight_rate"`
	DeliveredAt          *time.Time      `json:"delivered_at,omitempty"`
	PostedAt             *time.Time      `json:"posted_at,omitempty"`
	StatusReason         string          `gorm:"type:text" json:"status_reason,omitempty"`
	CreatedAt            time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"not null" json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (DeliveryReceipt) TableName() string { return "delivery_receipts" }

// ManualNumberIndex keeps manual numbers unique per company, soft deleted rows included.
const ManualNumberIndex = "ux_delivery_receipts_manual_number"
