// Package ingest pulls tradable market snapshots from the exchange and
// keeps only candidates worth running through the oracle.
package ingest

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/exchange"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

// Markets priced outside this band carry almost no edge after fees,
// so they never reach the oracle.
var (
	priceFloor   = decimal.NewFromFloat(0.05)
	priceCeiling = decimal.NewFromFloat(0.95)
)

// ActiveFunc reports the tickers that already have a pending or open
// position so the ingestor can exclude them from a cycle.
type ActiveFunc func() map[string]bool

type Ingestor struct {
	ex      exchange.Exchange
	filters exchange.Filters
	active  ActiveFunc
}

func New(ex exchange.Exchange, filters exchange.Filters, active ActiveFunc) *Ingestor {
	if active == nil {
		active = func() map[string]bool { return nil }
	}
	return &Ingestor{ex: ex, filters: filters, active: active}
}

// Pull fetches one market snapshot and filters it down to candidates.
// A failed exchange query skips the whole cycle rather than returning
// a partial view.
func (i *Ingestor) Pull(ctx context.Context) ([]model.Market, error) {
	markets, err := i.ex.ListEligibleMarkets(ctx, i.filters)
	if err != nil {
		logs.Warnf("market pull failed, skipping cycle, err: %v", err)
		return nil, err
	}

	active := i.active()
	seen := make(map[string]bool, len(markets))
	candidates := make([]model.Market, 0, len(markets))
	for _, m := range markets {
		if seen[m.Ticker] || active[m.Ticker] {
			continue
		}
		seen[m.Ticker] = true
		if !i.eligible(m) {
			continue
		}
		candidates = append(candidates, m)
	}

	logs.Infof("market pull complete, fetched: %d, candidates: %d", len(markets), len(candidates))
	return candidates, nil
}

func (i *Ingestor) eligible(m model.Market) bool {
	if m.Volume < i.filters.MinVolume {
		return false
	}
	if i.filters.MaxDaysToExpiry > 0 && m.DaysToExpiry() > float64(i.filters.MaxDaysToExpiry) {
		return false
	}
	if m.YesPrice.LessThan(priceFloor) || m.YesPrice.GreaterThan(priceCeiling) {
		return false
	}
	return true
}
