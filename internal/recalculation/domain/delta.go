package domain

import "github.com/shopspring/decimal"

// Delta is the signed change in derived amounts caused by a price change.
// Rates stay as posted; only the price base moves.
type Delta struct {
	PriceDelta decimal.Decimal
	Sales      decimal.Decimal
	Commission decimal.Decimal
	Freight    decimal.Decimal
}

func ComputeDelta(effectivePrice, updatedPrice, volume, commissionRate, freightRate decimal.Decimal) Delta {
	diff := updatedPrice.Sub(effectivePrice)
	base := diff.Mul(volume)
	return Delta{
		PriceDelta: diff,
		Sales:      base.Round(2),
		Commission: base.Mul(commissionRate).Round(2),
		Freight:    base.Mul(freightRate).Round(2),
	}
}

func (d Delta) IsZero() bool {
	return d.PriceDelta.IsZero()
}
