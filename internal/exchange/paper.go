package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

// Paper simulates the exchange in memory. Orders fill at the limit price
// against the latest known market snapshot; nothing touches a real venue.
// It is the default in dry runs and the workhorse of the tests.
type Paper struct {
	mu      sync.Mutex
	balance decimal.Decimal
	markets map[string]model.Market
	prices  map[string]decimal.Decimal
}

func NewPaper(balance decimal.Decimal) *Paper {
	return &Paper{
		balance: balance,
		markets: make(map[string]model.Market),
		prices:  make(map[string]decimal.Decimal),
	}
}

// SetMarkets replaces the simulated listing for the next cycle.
func (p *Paper) SetMarkets(markets []model.Market) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markets = make(map[string]model.Market, len(markets))
	for _, m := range markets {
		p.markets[m.Ticker] = m
	}
}

// SetPrice overrides the quoted price for a ticker side-independently;
// used to drive exit triggers in simulation.
func (p *Paper) SetPrice(ticker string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[ticker] = price
}

func (p *Paper) ListEligibleMarkets(ctx context.Context, filters Filters) ([]model.Market, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UTC()
	out := make([]model.Market, 0, len(p.markets))
	for _, m := range p.markets {
		if m.Volume < filters.MinVolume {
			continue
		}
		m.Observed = now
		out = append(out, m)
	}
	return out, nil
}

func (p *Paper) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

func (p *Paper) GetOpenPositions(ctx context.Context) ([]model.Position, error) {
	return nil, nil
}

func (p *Paper) SubmitOrder(ctx context.Context, intent model.OrderIntent) (FillResult, error) {
	if intent.Notional.LessThanOrEqual(decimal.Zero) {
		return FillResult{Status: FillRejected}, ErrRejected
	}
	return FillResult{
		OrderID: uuid.New().String(),
		Status:  FillFull,
		Price:   intent.LimitPrice,
		Filled:  intent.Notional,
	}, nil
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	return nil
}

func (p *Paper) CurrentPrice(ctx context.Context, ticker string, side model.Side) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if price, ok := p.prices[ticker]; ok {
		return price, nil
	}
	if m, ok := p.markets[ticker]; ok {
		return m.ImpliedProbability(side), nil
	}
	return decimal.Zero, ErrUnavailable
}

var _ Exchange = (*Paper)(nil)
