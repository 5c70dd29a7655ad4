package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateRequest struct {
	BankName      string
	AccountNumber string
	PlacementType string
	Principal     decimal.Decimal
	InterestRate  decimal.Decimal
	FromDate      time.Time
	ToDate        time.Time
	HasEWT        bool
	EWTRate       decimal.Decimal
	HasTrustFee   bool
	TrustFeeRate  decimal.Decimal
	BatchNumber   string
}

// TermsUpdate changes only the fields that are set.
type TermsUpdate struct {
	Principal    *decimal.Decimal
	InterestRate *decimal.Decimal
	FromDate     *time.Time
	ToDate       *time.Time
	HasEWT       *bool
	EWTRate      *decimal.Decimal
	HasTrustFee  *bool
	TrustFeeRate *decimal.Decimal
}

// RollOverRequest leaves unset fields equal to the source placement.
type RollOverRequest struct {
	Amount        *decimal.Decimal
	BankName      string
	AccountNumber string
	InterestRate  *decimal.Decimal
	TermDays      int
}

type SwapRequest struct {
	BankName      string
	AccountNumber string
	Reason        string
}

type RollOverResult struct {
	Source Placement `json:"source"`
	Rolled Placement `json:"rolled"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Placement, error)
	Get(ctx context.Context, id snowflake.ID) (Placement, error)
	ListBatch(ctx context.Context, batchNumber string) ([]Placement, error)
	ListSwaps(ctx context.Context, id snowflake.ID) ([]PlacementSwap, error)
	UpdateTerms(ctx context.Context, id snowflake.ID, update TermsUpdate) (Placement, error)
	Post(ctx context.Context, id snowflake.ID) (Placement, error)
	Lock(ctx context.Context, id snowflake.ID) (Placement, error)
	// Withdraw terminates a matured placement and books its interest.
	Withdraw(ctx context.Context, id snowflake.ID) (Placement, error)
	RollOver(ctx context.Context, id snowflake.ID, req RollOverRequest) (RollOverResult, error)
	Swap(ctx context.Context, id snowflake.ID, req SwapRequest) (Placement, error)
}

var (
	ErrInvalidCompany    = errors.New("invalid_company")
	ErrInvalidBank       = errors.New("invalid_bank")
	ErrInvalidAccount    = errors.New("invalid_account")
	ErrInvalidType       = errors.New("invalid_placement_type")
	ErrInvalidPrincipal  = errors.New("invalid_principal")
	ErrInvalidRate       = errors.New("invalid_rate")
	ErrInvalidBasis      = errors.New("invalid_basis_days")
	ErrInvalidTerm       = errors.New("invalid_term")
	ErrInvalidRollAmount = errors.New("invalid_rollover_amount")
	ErrInvalidSwap       = errors.New("invalid_swap")
	ErrNotMatured        = errors.New("placement_not_matured")
	ErrMatured           = errors.New("placement_matured")
	ErrTermsFrozen       = errors.New("placement_terms_frozen")
	ErrNotFound          = errors.New("placement_not_found")
)
