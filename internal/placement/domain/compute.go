package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Terms struct {
	Principal    decimal.Decimal
	InterestRate decimal.Decimal
	FromDate     time.Time
	ToDate       time.Time
	BasisDays    int
	HasEWT       bool
	EWTRate      decimal.Decimal
	HasTrustFee  bool
	TrustFeeRate decimal.Decimal
}

type Computed struct {
	TermDays       int             `json:"term_days"`
	EarnedGross    decimal.Decimal `json:"earned_gross"`
	EWTAmount      decimal.Decimal `json:"ewt_amount"`
	TrustFeeAmount decimal.Decimal `json:"trust_fee_amount"`
	Net            decimal.Decimal `json:"net"`
	MaturityValue  decimal.Decimal `json:"maturity_value"`
}

// Validate checks the terms before computing.
func (t Terms) Validate() error {
	switch {
	case !t.Principal.IsPositive():
		return ErrInvalidPrincipal
	case t.InterestRate.IsNegative():
		return ErrInvalidRate
	case t.HasEWT && (t.EWTRate.IsNegative() || t.EWTRate.GreaterThan(decimal.NewFromInt(1))):
		return ErrInvalidRate
	case t.HasTrustFee && (t.TrustFeeRate.IsNegative() || t.TrustFeeRate.GreaterThan(decimal.NewFromInt(1))):
		return ErrInvalidRate
	case t.BasisDays < 1:
		return ErrInvalidBasis
	case TermDays(t.FromDate, t.ToDate) < 1:
		return ErrInvalidTerm
	}
	return nil
}

// Compute derives interest, withholding tax and trust fee. Each amount is
// rounded to two places before it feeds the next.
func Compute(t Terms) Computed {
	days := TermDays(t.FromDate, t.ToDate)
	gross := t.Principal.
		Mul(t.InterestRate).
		Mul(decimal.NewFromInt(int64(days))).
		Div(decimal.NewFromInt(int64(t.BasisDays))).
		Round(2)

	ewt := decimal.Zero
	if t.HasEWT {
		ewt = gross.Mul(t.EWTRate).Round(2)
	}
	fee := decimal.Zero
	if t.HasTrustFee {
		fee = gross.Mul(t.TrustFeeRate).Round(2)
	}
	net := gross.Sub(ewt).Sub(fee)
	return Computed{
		TermDays:       days,
		EarnedGross:    gross,
		EWTAmount:      ewt,
		TrustFeeAmount: fee,
		Net:            net,
		MaturityValue:  t.Principal.Add(net),
	}
}

// TermDays counts calendar days between two dates, ignoring time of day.
func TermDays(from, to time.Time) int {
	f := truncateDay(from)
	t := truncateDay(to)
	return int(t.Sub(f).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
