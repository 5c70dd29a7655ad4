package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
)

type Status string

const (
	StatusCreated           Status = "created"
	StatusSupplierAppointed Status = "supplier_appointed"
	StatusHaulerAppointed   Status = "hauler_appointed"
	StatusForAtlBooking     Status = "for_atl_booking"
	StatusForApprovalOfOM   Status = "for_approval_of_om"
	StatusForApprovalOfCNC  Status = "for_approval_of_cnc"
	StatusForApprovalOfFM   Status = "for_approval_of_fm"
	StatusForDR             Status = "for_dr"
	StatusCompleted         Status = "completed"
	StatusDisapproved       Status = "disapproved"
	StatusExpired           Status = "expired"
	StatusClosed            Status = "closed"
)

// OrderSlip is a customer commitment capping the volume its delivery receipts may consume.
type OrderSlip struct {
	ID snowflake.ID `gorm:"primaryKey" json:"id"`
	sequencedomain.Control

	CustomerID      snowflake.ID    `gorm:"not null;index" json:"customer_id"`
	ProductCode     string          `gorm:"type:text;not null" json:"product_code"`
	OrderedVolume   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"ordered_volume"`
	DeliveredVolume decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"delivered_volume"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	CommissionRate  decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0" json:"commission_rate"`
	FreightRate     decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0" json:"freight_rate"`
	SupplierID      *snowflake.ID   `json:"supplier_id,omitempty"`
	HaulerID        *snowflake.ID   `json:"hauler_id,omitempty"`
	Status          Status          `gorm:"type:text;not null;index" json:"status"`
	ReceiptCap      int             `gorm:"not null;default:0" json:"receipt_cap"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	StatusReason    string          `gorm:"type:text" json:"status_reason,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (OrderSlip) TableName() string { return "order_slips" }

// ReceiptSummary counts the receipts linked to a slip by lifecycle bucket.
// Released receipts (canceled, voided or deleted) are excluded from Linked.
type ReceiptSummary struct {
	Linked   int
	Open     int
	Posted   int
	Released int
}

// AcceptsReceipts reports whether new delivery receipts may be linked in this status.
func (s Status) AcceptsReceipts() bool {
	switch s {
	case StatusHaulerAppointed,
		StatusForAtlBooking,
		StatusForApprovalOfOM,
		StatusForApprovalOfCNC,
		StatusForApprovalOfFM,
		StatusForDR:
		return true
	default:
		return false
	}
}
