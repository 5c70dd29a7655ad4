package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SourceType string

const (
	SourceDeliveryReceipt SourceType = "delivery_receipt"
	SourcePlacement       SourceType = "placement"
)

type Kind string

const (
	KindSales      Kind = "sales"
	KindCommission Kind = "commission"
	KindFreight    Kind = "freight"
	KindInterest   Kind = "interest"
	KindEWT        Kind = "ewt"
	KindTrustFee   Kind = "trust_fee"
)

type EntryType string

const (
	EntryOriginal   EntryType = "original"
	EntryCorrection EntryType = "correction"
	EntryReversal   EntryType = "reversal"
)

// Entry is one posted amount. Rows are never updated or deleted; corrections
// and reversals are new rows pointing at the same source.
type Entry struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	CompanyID      snowflake.ID    `gorm:"not null;index:idx_ledger_entries_source,priority:1" json:"company_id"`
	SourceType     SourceType      `gorm:"type:text;not null;index:idx_ledger_entries_source,priority:2" json:"source_type"`
	SourceID       snowflake.ID    `gorm:"not null;index:idx_ledger_entries_source,priority:3" json:"source_id"`
	Reference      string          `gorm:"type:text;not null;index" json:"reference"`
	Kind           Kind            `gorm:"type:text;not null" json:"kind"`
	EntryType      EntryType       `gorm:"type:text;not null" json:"entry_type"`
	Basis          decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"basis"`
	PriceDelta     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"price_delta"`
	Volume         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"volume"`
	Rate           decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0" json:"rate"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	RevisionID     *snowflake.ID   `gorm:"index" json:"revision_id,omitempty"`
	ReversesID     *snowflake.ID   `json:"reverses_id,omitempty"`
	IdempotencyKey string          `gorm:"type:text;not null;uniqueIndex" json:"idempotency_key"`
	OccurredAt     time.Time       `gorm:"not null" json:"occurred_at"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

func (Entry) TableName() string { return "ledger_entries" }

func (e *Entry) BeforeUpdate(*gorm.DB) error { return ErrImmutableEntry }

func (e *Entry) BeforeDelete(*gorm.DB) error { return ErrImmutableEntry }

// Total sums the amounts of the given kind. An empty kind sums everything.
func Total(entries []Entry, kind Kind) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if kind == "" || e.Kind == kind {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// Round2 rounds a monetary amount half away from zero to two places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
