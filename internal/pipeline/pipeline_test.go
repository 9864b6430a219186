package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/account"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/exchange"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/executor"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/oracle"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/risk"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/store"
)

type stubForecaster struct {
	probability decimal.Decimal
	confidence  decimal.Decimal
	err         error
}

func (s stubForecaster) Estimate(context.Context, model.Market) (oracle.Estimate, error) {
	if s.err != nil {
		return oracle.Estimate{}, s.err
	}
	return oracle.Estimate{Probability: s.probability, Confidence: s.confidence}, nil
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testBudget() risk.Budget {
	return risk.Budget{
		MaxPositions:      5,
		MaxPositionPct:    d("0.03"),
		MaxSinglePosition: d("100"),
		CashReservePct:    d("0.2"),
		KellyFraction:     d("0.25"),
		MinTradeEdge:      d("0.05"),
		MinConfidence:     d("0.6"),
		MinVolume:         100,
	}
}

// venueExchange reports open positions the journal has never seen.
type venueExchange struct {
	*exchange.Paper
	positions []model.Position
}

func (v *venueExchange) GetOpenPositions(context.Context) ([]model.Position, error) {
	return v.positions, nil
}

func testPipeline(paper *exchange.Paper, forecaster oracle.Forecaster, journal store.Store) (*Pipeline, *account.State) {
	return testPipelineWith(paper, forecaster, journal)
}

func testPipelineWith(ex exchange.Exchange, forecaster oracle.Forecaster, journal store.Store) (*Pipeline, *account.State) {
	state := account.New(decimal.Zero)
	gate := risk.NewGate(state, testBudget())
	brain := oracle.New(forecaster, oracle.NewCalibrator(10), model.StrategyDirectional, oracle.Thresholds{
		MinEdge:       d("0.05"),
		MinConfidence: d("0.6"),
		MinVolume:     100,
	})
	p := New(Options{
		Exchange:     ex,
		State:        state,
		Oracle:       brain,
		Gate:         gate,
		Journal:      journal,
		Filters:      exchange.Filters{MinVolume: 100},
		MarketQueue:  16,
		IntentQueue:  16,
		Workers:      2,
		MaxRetries:   2,
		Backoff:      executor.Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond},
		ScanInterval: time.Hour,
		TrackEvery:   time.Hour,
		MaxCloseFail: 3,
	})
	return p, state
}

func seedMarket(paper *exchange.Paper) model.Market {
	m := model.Market{
		Ticker:   "RAIN-NYC",
		Title:    "Rain in NYC tomorrow",
		YesPrice: d("0.40"),
		NoPrice:  d("0.60"),
		Volume:   5000,
		Expiry:   time.Now().Add(48 * time.Hour),
	}
	paper.SetMarkets([]model.Market{m})
	return m
}

func TestRunOnceOpensPosition(t *testing.T) {
	paper := exchange.NewPaper(d("1000"))
	m := seedMarket(paper)
	journal := store.NewMemory()
	p, state := testPipeline(paper, stubForecaster{probability: d("0.55"), confidence: d("0.8")}, journal)

	require.NoError(t, p.RunOnce(t.Context()))

	v := state.Snapshot()
	assert.True(t, v.Reserved.IsZero(), "reserved = %s", v.Reserved)
	// Kelly raw 62.5 clipped to 3% of the 1000 bankroll.
	assert.True(t, v.Exposure.Equal(d("30")), "exposure = %s", v.Exposure)
	assert.Equal(t, 1, v.CommittedCount)

	open, err := journal.OpenPositions(t.Context())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, m.Ticker, open[0].Ticker)
	assert.Equal(t, model.PositionOpen, open[0].Status)

	require.Len(t, journal.Decisions(), 1)
}

func TestRunOnceForecastOutageTradesNothing(t *testing.T) {
	paper := exchange.NewPaper(d("1000"))
	seedMarket(paper)
	p, state := testPipeline(paper, stubForecaster{err: context.DeadlineExceeded}, store.NewMemory())

	require.NoError(t, p.RunOnce(t.Context()))

	v := state.Snapshot()
	assert.True(t, v.Exposure.IsZero())
	assert.Equal(t, 0, v.CommittedCount)
}

func TestRunOnceSkipsHeldTickers(t *testing.T) {
	paper := exchange.NewPaper(d("1000"))
	seedMarket(paper)
	journal := store.NewMemory()
	p, state := testPipeline(paper, stubForecaster{probability: d("0.55"), confidence: d("0.8")}, journal)

	require.NoError(t, p.RunOnce(t.Context()))
	require.Equal(t, 1, state.Snapshot().CommittedCount)

	// Second cycle sees the same market; the open position excludes it.
	require.NoError(t, p.RunOnce(t.Context()))
	assert.Equal(t, 1, state.Snapshot().CommittedCount)
}

// While an admitted intent sits unfilled in the queue, another scan of
// the same market must not reserve capital for it a second time.
func TestPendingMarketNotReadmitted(t *testing.T) {
	paper := exchange.NewPaper(d("1000"))
	m := seedMarket(paper)
	journal := store.NewMemory()
	p, state := testPipeline(paper, stubForecaster{probability: d("0.55"), confidence: d("0.8")}, journal)

	require.NoError(t, p.bootstrapOnce(t.Context()))

	// No executor running, so the first intent never fills.
	p.decide(t.Context(), m)
	p.decide(t.Context(), m)

	v := state.Snapshot()
	assert.True(t, v.Reserved.Equal(d("30")), "reserved = %s", v.Reserved)
	assert.Equal(t, 1, v.CommittedCount)
	require.Len(t, journal.Decisions(), 1)

	// The scanner stops listing the market as well.
	markets, err := p.ingestor.Pull(t.Context())
	require.NoError(t, err)
	assert.Empty(t, markets)
}

// A single cycle must actually submit the closes its sweep triggers; the
// exit path cannot depend on a second invocation.
func TestRunOnceClosesBreachedPosition(t *testing.T) {
	paper := exchange.NewPaper(d("1000"))
	journal := store.NewMemory()
	require.NoError(t, journal.SavePosition(t.Context(), model.Position{
		ID:           "prev",
		Ticker:       "RAIN-NYC",
		Side:         model.SideYes,
		EntryPrice:   d("0.40"),
		Size:         d("30"),
		Status:       model.PositionOpen,
		StopLoss:     d("0.28"),
		ProfitTarget: d("0.60"),
		OpenedAt:     time.Now().Add(-time.Hour),
	}))
	paper.SetPrice("RAIN-NYC", d("0.20"))

	p, state := testPipeline(paper, stubForecaster{err: context.DeadlineExceeded}, journal)
	require.NoError(t, p.RunOnce(t.Context()))

	v := state.Snapshot()
	assert.True(t, v.Exposure.IsZero(), "exposure = %s", v.Exposure)
	assert.Equal(t, 0, v.CommittedCount)
	// 75 contracts x -0.20 settles against the 1030 bankroll.
	assert.True(t, v.Balance.Equal(d("1015")), "balance = %s", v.Balance)

	open, err := journal.OpenPositions(t.Context())
	require.NoError(t, err)
	assert.Empty(t, open)
}

// Venue positions the journal never saw are adopted at bootstrap instead
// of floating as untracked obligations.
func TestBootstrapReconcilesVenuePositions(t *testing.T) {
	paper := exchange.NewPaper(d("1000"))
	ex := &venueExchange{Paper: paper, positions: []model.Position{{
		Ticker:     "FED-CUT",
		Side:       model.SideYes,
		EntryPrice: d("0.50"),
		Size:       d("25"),
		Status:     model.PositionOpen,
	}}}
	journal := store.NewMemory()
	p, state := testPipelineWith(ex, stubForecaster{err: context.DeadlineExceeded}, journal)

	require.NoError(t, p.RunOnce(t.Context()))

	v := state.Snapshot()
	assert.True(t, v.Exposure.Equal(d("25")), "exposure = %s", v.Exposure)
	assert.Equal(t, 1, v.CommittedCount)

	open, err := journal.OpenPositions(t.Context())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "FED-CUT", open[0].Ticker)
	assert.NotEmpty(t, open[0].ID)
	assert.True(t, open[0].StopLoss.IsPositive())
}

func TestBootstrapAdoptsJournaledPositions(t *testing.T) {
	paper := exchange.NewPaper(d("1000"))
	journal := store.NewMemory()
	require.NoError(t, journal.SavePosition(t.Context(), model.Position{
		ID:         "prev",
		Ticker:     "RAIN-NYC",
		Side:       model.SideYes,
		EntryPrice: d("0.40"),
		Size:       d("30"),
		Status:     model.PositionOpen,
		OpenedAt:   time.Now().Add(-time.Hour),
	}))

	p, state := testPipeline(paper, stubForecaster{err: context.DeadlineExceeded}, journal)
	require.NoError(t, p.RunOnce(t.Context()))

	v := state.Snapshot()
	assert.True(t, v.Exposure.Equal(d("30")), "exposure = %s", v.Exposure)
	assert.Equal(t, 1, v.CommittedCount)
	// Bankroll covers cash plus the re-adopted exposure.
	assert.True(t, v.Balance.Equal(d("1030")), "balance = %s", v.Balance)
}

func TestRunShutsDownCleanly(t *testing.T) {
	paper := exchange.NewPaper(d("1000"))
	seedMarket(paper)
	p, state := testPipeline(paper, stubForecaster{probability: d("0.55"), confidence: d("0.8")}, store.NewMemory())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Give the first scan time to flow through to a fill.
	deadline := time.After(2 * time.Second)
	for state.Snapshot().CommittedCount == 0 {
		select {
		case <-deadline:
			t.Fatal("no position opened before shutdown")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not shut down")
	}
	assert.True(t, state.Snapshot().Reserved.IsZero())
}
