package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReceiptPosting carries the frozen snapshot of a receipt being invoiced.
type ReceiptPosting struct {
	CompanyID      snowflake.ID
	ReceiptID      snowflake.ID
	ControlNumber  string
	Volume         decimal.Decimal
	UnitPrice      decimal.Decimal
	CommissionRate decimal.Decimal
	FreightRate    decimal.Decimal
	OccurredAt     time.Time
}

// Correction is the signed price delta applied to one posted receipt.
type Correction struct {
	CompanyID      snowflake.ID
	ReceiptID      snowflake.ID
	ControlNumber  string
	RevisionID     snowflake.ID
	Volume         decimal.Decimal
	BasePrice      decimal.Decimal
	PriceDelta     decimal.Decimal
	CommissionRate decimal.Decimal
	FreightRate    decimal.Decimal
	OccurredAt     time.Time
}

// PlacementPosting records the interest earned by a placement at disposition.
type PlacementPosting struct {
	CompanyID      snowflake.ID
	PlacementID    snowflake.ID
	ControlNumber  string
	Principal      decimal.Decimal
	InterestRate   decimal.Decimal
	EarnedGross    decimal.Decimal
	EWTRate        decimal.Decimal
	EWTAmount      decimal.Decimal
	TrustFeeRate   decimal.Decimal
	TrustFeeAmount decimal.Decimal
	OccurredAt     time.Time
}

// Service writes ledger entries inside the caller's transaction so postings
// commit or roll back with the state change that caused them. A nil db runs
// on the service's own connection.
type Service interface {
	PostReceipt(ctx context.Context, db *gorm.DB, posting ReceiptPosting) ([]Entry, error)
	ReverseReceipt(ctx context.Context, db *gorm.DB, companyID, receiptID snowflake.ID, occurredAt time.Time) ([]Entry, error)
	AppendCorrections(ctx context.Context, db *gorm.DB, correction Correction) ([]Entry, error)
	PostPlacementDisposition(ctx context.Context, db *gorm.DB, posting PlacementPosting) ([]Entry, error)
	ListBySource(ctx context.Context, companyID snowflake.ID, sourceType SourceType, sourceID snowflake.ID) ([]Entry, error)
}

var (
	ErrImmutableEntry    = errors.New("ledger_entry_immutable")
	ErrInvalidCompany    = errors.New("invalid_company")
	ErrInvalidSource     = errors.New("invalid_source")
	ErrInvalidReference  = errors.New("invalid_reference")
	ErrInvalidVolume     = errors.New("invalid_volume")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidRevision   = errors.New("invalid_revision")
	ErrInvalidOccurredAt = errors.New("invalid_occurred_at")
)
