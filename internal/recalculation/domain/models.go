package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Scope string

const (
	ScopeOrderSlip Scope = "order_slip"
	ScopeReceipt   Scope = "receipt"
)

// PriceRevision is a retroactive price change. Receipt scoped revisions
// carry the receipt they apply to.
type PriceRevision struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	CompanyID     snowflake.ID    `gorm:"not null;index" json:"company_id"`
	OrderSlipID   snowflake.ID    `gorm:"not null;index" json:"order_slip_id"`
	ReceiptID     *snowflake.ID   `json:"receipt_id,omitempty"`
	Scope         Scope           `gorm:"type:text;not null" json:"scope"`
	PreviousPrice decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"previous_price"`
	UpdatedPrice  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"updated_price"`
	Reason        string          `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func (PriceRevision) TableName() string { return "price_revisions" }

// ReceiptAdjustment records that a revision has been applied to a receipt.
type ReceiptAdjustment struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	CompanyID       snowflake.ID    `gorm:"not null;index" json:"company_id"`
	RevisionID      snowflake.ID    `gorm:"not null;uniqueIndex:ux_receipt_adjustments_revision_receipt,priority:1" json:"revision_id"`
	ReceiptID       snowflake.ID    `gorm:"not null;uniqueIndex:ux_receipt_adjustments_revision_receipt,priority:2;index" json:"receipt_id"`
	ControlNumber   string          `gorm:"type:text;not null" json:"control_number"`
	EffectivePrice  decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"effective_price"`
	UpdatedPrice    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"updated_price"`
	PriceDelta      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"price_delta"`
	Volume          decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"volume"`
	SalesDelta      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"sales_delta"`
	CommissionDelta decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"commission_delta"`
	FreightDelta    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"freight_delta"`

	// SupersededBy is set when a newer revision had already corrected the
	// receipt; the row then carries no delta and nothing was posted.
	SupersededBy *snowflake.ID `json:"superseded_by,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
}

func (ReceiptAdjustment) TableName() string { return "receipt_adjustments" }

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"

	// OutcomeSuperseded marks a retried revision older than the receipt's current price.
	OutcomeSuperseded Outcome = "superseded"
)

// ItemResult is the outcome for one receipt. Err is set only when Outcome is failed.
type ItemResult struct {
	ReceiptID     snowflake.ID       `json:"receipt_id"`
	ControlNumber string             `json:"control_number"`
	Outcome       Outcome            `json:"outcome"`
	Adjustment    *ReceiptAdjustment `json:"adjustment,omitempty"`
	Err           error              `json:"-"`
}

type BatchResult struct {
	Revision PriceRevision `json:"revision"`
	Items    []ItemResult  `json:"items"`
}

func (b BatchResult) Failed() []ItemResult {
	var out []ItemResult
	for _, item := range b.Items {
		if item.Outcome == OutcomeFailed {
			out = append(out, item)
		}
	}
	return out
}

// Complete reports whether every receipt in the batch was corrected or skipped.
func (b BatchResult) Complete() bool {
	return len(b.Failed()) == 0
}
