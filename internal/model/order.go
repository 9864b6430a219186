package model

import "github.com/shopspring/decimal"

// OrderIntent is a sized, approved order instruction. Opening intents carry
// a reservation token minted by the admission gate; the executor consumes
// each intent exactly once. Closing intents reference the position they
// unwind and bypass sizing.
type OrderIntent struct {
	Ticker     string
	Side       Side
	LimitPrice decimal.Decimal
	Notional   decimal.Decimal
	Strategy   Strategy

	Reservation uint64

	Closing    bool
	PositionID string
}
