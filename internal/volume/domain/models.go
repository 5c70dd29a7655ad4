package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Allocation is embedded by delivery receipts. A receipt draws on its slip's
// budget until ReleasedAt is set; DeductedAt marks the volume as delivered.
type Allocation struct {
	Volume     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"volume"`
	DeductedAt *time.Time      `json:"deducted_at,omitempty"`
	ReleasedAt *time.Time      `gorm:"index" json:"released_at,omitempty"`
}

func (a Allocation) Released() bool { return a.ReleasedAt != nil }

func (a Allocation) Deducted() bool { return a.DeductedAt != nil && a.ReleasedAt == nil }

// Balance is the budget position of one order slip.
type Balance struct {
	Ordered   decimal.Decimal `json:"ordered"`
	Reserved  decimal.Decimal `json:"reserved"`
	Delivered decimal.Decimal `json:"delivered"`
	Remaining decimal.Decimal `json:"remaining"`
}

// BudgetError is returned when a reservation exceeds what remains on the slip.
type BudgetError struct {
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("insufficient_budget: requested %s, remaining %s", e.Requested, e.Remaining)
}

func (e *BudgetError) Is(target error) bool {
	return target == ErrInsufficientBudget
}
