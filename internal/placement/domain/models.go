package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	sequencedomain "github.com/smallbiznis/fuelledger/internal/sequence/domain"
)

type Status string

const (
	StatusUnposted   Status = "unposted"
	StatusPosted     Status = "posted"
	StatusLocked     Status = "locked"
	StatusTerminated Status = "terminated"
)

type InterestStatus string

const (
	InterestNotApplicable InterestStatus = "not_applicable"
	InterestWithdrawn     InterestStatus = "withdrawn"
	InterestRolled        InterestStatus = "rolled"
)

// Placement is a fixed-term treasury deposit. The computed columns mirror
// Compute(Terms) and are rewritten whenever the terms change.
type Placement struct {
	ID snowflake.ID `gorm:"primaryKey" json:"id"`
	sequencedomain.Control

	BankName       string          `gorm:"type:text;not null" json:"bank_name"`
	AccountNumber  string          `gorm:"type:text;not null" json:"account_number"`
	PlacementType  string          `gorm:"type:text;not null" json:"placement_type"`
	Principal      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"principal"`
	InterestRate   decimal.Decimal `gorm:"type:decimal(18,6);not null" json:"interest_rate"`
	FromDate       time.Time       `gorm:"not null" json:"from_date"`
	ToDate         time.Time       `gorm:"not null;index" json:"to_date"`
	BasisDays      int             `gorm:"not null" json:"basis_days"`
	HasEWT         bool            `gorm:"not null;default:false" json:"has_ewt"`
	EWTRate        decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0" json:"ewt_rate"`
	HasTrustFee    bool            `gorm:"not null;default:false" json:"has_trust_fee"`
	TrustFeeRate   decimal.Decimal `gorm:"type:decimal(18,6);not null;default:0" json:"trust_fee_rate"`
	TermDays       int             `gorm:"not null" json:"term_days"`
	EarnedGross    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"earned_gross"`
	EWTAmount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"ewt_amount"`
	TrustFeeAmount decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"trust_fee_amount"`
	Net            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"net"`
	MaturityValue  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"maturity_value"`
	Status         Status          `gorm:"type:text;not null;index" json:"status"`
	InterestStatus InterestStatus  `gorm:"type:text;not null" json:"interest_status"`
	BatchNumber    string          `gorm:"type:text;index" json:"batch_number,omitempty"`
	RolledFromID   *snowflake.ID   `json:"rolled_from_id,omitempty"`
	DisposedAt     *time.Time      `json:"disposed_at,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

func (Placement) TableName() string { return "placements" }

// Terms returns the inputs of the interest computation.
func (p Placement) Terms() Terms {
	return Terms{
		Principal:    p.Principal,
		InterestRate: p.InterestRate,
		FromDate:     p.FromDate,
		ToDate:       p.ToDate,
		BasisDays:    p.BasisDays,
		HasEWT:       p.HasEWT,
		EWTRate:      p.EWTRate,
		HasTrustFee:  p.HasTrustFee,
		TrustFeeRate: p.TrustFeeRate,
	}
}

// Apply stores computed values on the placement.
func (p *Placement) Apply(c Computed) {
	p.TermDays = c.TermDays
	p.EarnedGross = c.EarnedGross
	p.EWTAmount = c.EWTAmount
	p.TrustFeeAmount = c.TrustFeeAmount
	p.Net = c.Net
	p.MaturityValue = c.MaturityValue
}

// Matured reports whether the term has run out at now.
func (p Placement) Matured(now time.Time) bool {
	return !now.Before(p.ToDate)
}

// PlacementSwap records one change of funding account.
type PlacementSwap struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	CompanyID         snowflake.ID `gorm:"not null;index" json:"company_id"`
	PlacementID       snowflake.ID `gorm:"not null;index" json:"placement_id"`
	FromBankName      string       `gorm:"type:text;not null" json:"from_bank_name"`
	FromAccountNumber string       `gorm:"type:text;not null" json:"from_account_number"`
	ToBankName        string       `gorm:"type:text;not null" json:"to_bank_name"`
	ToAccountNumber   string       `gorm:"type:text;not null" json:"to_account_number"`
	Reason            string       `gorm:"type:text" json:"reason,omitempty"`
	SwappedAt         time.Time    `gorm:"not null" json:"swapped_at"`
}

func (PlacementSwap) TableName() string { return "placement_swaps" }
