// Package risk is the admission gate between a trading decision and a
// capital commitment. Sizing is a pure function; the reserve step runs
// inside the account owner's critical section.
package risk

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/account"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

// DenialReason enumerates why an admission was refused.
type DenialReason uint8

const (
	DenialNone DenialReason = iota
	DenialNotActionable
	DenialPositionLimitReached
	DenialInsufficientReserve
	DenialZeroSize
)

func (r DenialReason) String() string {
	switch r {
	case DenialNone:
		return "none"
	case DenialNotActionable:
		return "not_actionable"
	case DenialPositionLimitReached:
		return "position_limit_reached"
	case DenialInsufficientReserve:
		return "insufficient_reserve"
	case DenialZeroSize:
		return "zero_size"
	default:
		return "unknown"
	}
}

// Denial is the expected non-trade outcome. It is not a pipeline error.
type Denial struct {
	Reason DenialReason
}

func (d *Denial) Error() string {
	return "admission denied: " + d.Reason.String()
}

// Gate sizes actionable decisions and reserves capital for them.
type Gate struct {
	state *account.State

	mu     sync.RWMutex
	budget Budget
}

func NewGate(state *account.State, budget Budget) *Gate {
	return &Gate{state: state, budget: budget}
}

// SetBudget swaps the limits; the next admission sees the new budget.
func (g *Gate) SetBudget(budget Budget) {
	g.mu.Lock()
	g.budget = budget
	g.mu.Unlock()
}

// Budget returns the limits currently in force.
func (g *Gate) Budget() Budget {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.budget
}

// Admit turns a decision into a reserved OrderIntent or a Denial. The
// sizing checks and the reservation execute as one indivisible unit
// against the account.
func (g *Gate) Admit(decision model.Decision) (model.OrderIntent, *Denial) {
	if !decision.Actionable {
		return model.OrderIntent{}, &Denial{Reason: DenialNotActionable}
	}

	budget := g.Budget()
	price := decision.Market.ImpliedProbability(decision.Side)

	token, size, err := g.state.Admit(func(v account.View) (decimal.Decimal, error) {
		size := Size(decision.Edge, price, v.Balance, budget)
		if size.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, &Denial{Reason: DenialZeroSize}
		}
		if v.CommittedCount >= budget.MaxPositions {
			return decimal.Zero, &Denial{Reason: DenialPositionLimitReached}
		}
		if v.Reserved.Add(v.Exposure).Add(size).GreaterThan(budget.Headroom(v.Balance)) {
			return decimal.Zero, &Denial{Reason: DenialInsufficientReserve}
		}
		return size, nil
	})
	if err != nil {
		var denial *Denial
		if errors.As(err, &denial) {
			return model.OrderIntent{}, denial
		}
		// The account refused the reservation outright; surface it as a
		// denial so the market is simply not traded this cycle.
		return model.OrderIntent{}, &Denial{Reason: DenialZeroSize}
	}

	return model.OrderIntent{
		Ticker:      decision.Market.Ticker,
		Side:        decision.Side,
		LimitPrice:  price,
		Notional:    size,
		Strategy:    decision.Strategy,
		Reservation: token,
	}, nil
}

// Size computes the clipped fractional-Kelly notional for an edge at the
// given implied price. For a binary market the growth-optimal fraction of
// balance is edge ÷ (1 − price); the configured multiplier damps
// estimation error, and the caps scale the trade down rather than deny it.
func Size(edge, price, balance decimal.Decimal, budget Budget) decimal.Decimal {
	if price.GreaterThanOrEqual(one) || balance.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	raw := budget.KellyFraction.Mul(edge.Div(one.Sub(price))).Mul(balance)

	ceiling := budget.MaxPositionPct.Mul(balance)
	if budget.MaxSinglePosition.LessThan(ceiling) {
		ceiling = budget.MaxSinglePosition
	}
	if raw.GreaterThan(ceiling) {
		return ceiling
	}
	return raw
}
