package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the outcome side of a binary market.
type Side uint8

const (
	SideUnknown Side = iota
	SideYes
	SideNo
)

func (s Side) String() string {
	switch s {
	case SideYes:
		return "yes"
	case SideNo:
		return "no"
	default:
		return "unknown"
	}
}

// Opposite returns the other outcome side.
func (s Side) Opposite() Side {
	switch s {
	case SideYes:
		return SideNo
	case SideNo:
		return SideYes
	default:
		return SideUnknown
	}
}

// Market is an immutable snapshot of a tradable binary market taken
// during one ingestion cycle.
type Market struct {
	Ticker   string
	Title    string
	Category string
	YesPrice decimal.Decimal
	NoPrice  decimal.Decimal
	Volume   int64
	Expiry   time.Time
	Observed time.Time
}

// ImpliedProbability returns the market-implied probability for a side.
func (m Market) ImpliedProbability(side Side) decimal.Decimal {
	if side == SideNo {
		return m.NoPrice
	}
	return m.YesPrice
}

// DaysToExpiry measures remaining market lifetime from the observation time.
func (m Market) DaysToExpiry() float64 {
	return m.Expiry.Sub(m.Observed).Hours() / 24
}
