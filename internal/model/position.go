package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidTransition = errors.New("invalid position status transition")

// PositionStatus tracks the lifecycle of a position.
type PositionStatus uint8

const (
	PositionPending PositionStatus = iota
	PositionOpen
	PositionClosing
	PositionClosed
	PositionCancelled
	PositionNeedsAttention
)

func (s PositionStatus) String() string {
	switch s {
	case PositionPending:
		return "pending"
	case PositionOpen:
		return "open"
	case PositionClosing:
		return "closing"
	case PositionClosed:
		return "closed"
	case PositionCancelled:
		return "cancelled"
	case PositionNeedsAttention:
		return "needs_attention"
	default:
		return "unknown"
	}
}

// Terminal reports whether automation is done with the position.
// NeedsAttention is terminal for automation; an operator must act.
func (s PositionStatus) Terminal() bool {
	switch s {
	case PositionClosed, PositionCancelled, PositionNeedsAttention:
		return true
	default:
		return false
	}
}

var positionTransitions = map[PositionStatus][]PositionStatus{
	PositionPending: {PositionOpen, PositionCancelled},
	PositionOpen:    {PositionClosing},
	PositionClosing: {PositionClosed, PositionOpen, PositionNeedsAttention},
}

// Position is one filled or in-flight capital commitment. The executor and
// tracker are its only writers, one at a time.
type Position struct {
	ID         string
	Ticker     string
	Side       Side
	EntryPrice decimal.Decimal
	Size       decimal.Decimal
	Status     PositionStatus
	Strategy   Strategy

	StopLoss     decimal.Decimal
	ProfitTarget decimal.Decimal

	OpenedAt    time.Time
	ClosedAt    time.Time
	RealizedPnL decimal.Decimal

	CloseFailures int
}

// Transition moves the position to the next status, rejecting moves the
// lifecycle does not allow.
func (p *Position) Transition(next PositionStatus) error {
	for _, allowed := range positionTransitions[p.Status] {
		if next == allowed {
			p.Status = next
			return nil
		}
	}
	return ErrInvalidTransition
}

// UnrealizedPnL values the position against the current price for its
// side. Size is notional at entry, so the gain is measured per contract.
func (p Position) UnrealizedPnL(current decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	contracts := p.Size.Div(p.EntryPrice)
	return current.Sub(p.EntryPrice).Mul(contracts)
}
