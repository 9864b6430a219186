// Package exchange defines the exchange collaborator boundary: market
// listing, balance, order submission and cancellation, with the failure
// modes the pipeline has to survive.
package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

var (
	ErrRejected    = errors.New("order rejected")
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("exchange timeout")
	ErrUnavailable = errors.New("exchange unavailable")
)

// Transient reports whether an error is worth retrying with backoff.
// Rejections are definitive; timeouts and availability blips are not.
func Transient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Filters narrows the eligible-market listing.
type Filters struct {
	MinVolume       int64
	MaxDaysToExpiry int
}

// FillStatus is the definitive outcome of a submitted order.
type FillStatus uint8

const (
	FillNone FillStatus = iota
	FillFull
	FillPartial
	FillRejected
)

// FillResult reports how much of an order executed and at what price.
type FillResult struct {
	OrderID string
	Status  FillStatus
	Price   decimal.Decimal
	// Filled is the executed notional; for partial fills it is less than
	// the submitted amount.
	Filled decimal.Decimal
}

// Exchange is the operation contract the pipeline depends on. Transport
// and authentication live behind implementations.
type Exchange interface {
	ListEligibleMarkets(ctx context.Context, filters Filters) ([]model.Market, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	GetOpenPositions(ctx context.Context) ([]model.Position, error)
	SubmitOrder(ctx context.Context, intent model.OrderIntent) (FillResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	// CurrentPrice quotes the present implied probability for a side,
	// used by the exit policy.
	CurrentPrice(ctx context.Context, ticker string, side model.Side) (decimal.Decimal, error)
}
