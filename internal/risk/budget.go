package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Budget defines the capital limits the gate enforces. It is static
// configuration; a reload swaps the whole value.
type Budget struct {
	MaxPositions      int             `json:"maxPositions"`
	MaxPositionPct    decimal.Decimal `json:"maxPositionPct"`
	MaxSinglePosition decimal.Decimal `json:"maxSinglePosition"`
	CashReservePct    decimal.Decimal `json:"cashReservePct"`
	KellyFraction     decimal.Decimal `json:"kellyFraction"`

	MinTradeEdge  decimal.Decimal `json:"minTradeEdge"`
	MinConfidence decimal.Decimal `json:"minConfidence"`
	MinVolume     int64           `json:"minVolume"`
}

var one = decimal.NewFromInt(1)

// Validate rejects budgets that would let the gate run unconstrained.
// A bad budget is fatal at startup, not a per-cycle condition.
func (b Budget) Validate() error {
	if b.MaxPositions <= 0 {
		return fmt.Errorf("maxPositions must be > 0")
	}
	if b.MaxPositionPct.LessThanOrEqual(decimal.Zero) || b.MaxPositionPct.GreaterThan(one) {
		return fmt.Errorf("maxPositionPct must be in (0, 1]")
	}
	if b.MaxSinglePosition.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("maxSinglePosition must be > 0")
	}
	if b.CashReservePct.LessThan(decimal.Zero) || b.CashReservePct.GreaterThanOrEqual(one) {
		return fmt.Errorf("cashReservePct must be in [0, 1)")
	}
	if b.KellyFraction.LessThanOrEqual(decimal.Zero) || b.KellyFraction.GreaterThan(one) {
		return fmt.Errorf("kellyFraction must be in (0, 1]")
	}
	if b.MinTradeEdge.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("minTradeEdge must be > 0")
	}
	if b.MinConfidence.LessThanOrEqual(decimal.Zero) || b.MinConfidence.GreaterThan(one) {
		return fmt.Errorf("minConfidence must be in (0, 1]")
	}
	if b.MinVolume < 0 {
		return fmt.Errorf("minVolume must be >= 0")
	}
	return nil
}

// Headroom is the spendable ceiling: balance × (1 − cashReservePct).
func (b Budget) Headroom(balance decimal.Decimal) decimal.Decimal {
	return balance.Mul(one.Sub(b.CashReservePct))
}
