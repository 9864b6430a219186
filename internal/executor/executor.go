// Package executor turns admitted order intents into exchange orders.
// It owns the reservation hand-off: every intent ends with its
// reservation either converted to exposure or released, exactly once.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/account"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/bus"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/exchange"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/obs"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/oracle"
)

var one = decimal.NewFromInt(1)

// Hooks notify the tracker of execution outcomes. All hooks are called
// from worker goroutines.
type Hooks struct {
	OnOpened      func(model.Position)
	OnCloseFilled func(positionID string, fill exchange.FillResult)
	OnCloseFailed func(positionID string)
	// OnReleased fires when an open intent dies without a fill, so the
	// ticker stops counting as in flight.
	OnReleased func(ticker string)
}

type Executor struct {
	ex      exchange.Exchange
	state   *account.State
	intents *bus.Queue[model.OrderIntent]
	hooks   Hooks

	workers    int
	maxRetries int
	backoff    Backoff
}

func New(ex exchange.Exchange, state *account.State, intents *bus.Queue[model.OrderIntent], hooks Hooks, workers, maxRetries int, backoff Backoff) *Executor {
	if workers <= 0 {
		workers = 1
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Executor{
		ex:         ex,
		state:      state,
		intents:    intents,
		hooks:      hooks,
		workers:    workers,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Run consumes intents until the queue is closed and drained, then
// returns. In-flight intents finish even during shutdown; ctx only
// bounds individual submissions and retry waits.
func (e *Executor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.intents.Drain(func(intent model.OrderIntent) {
				e.handle(ctx, intent)
			})
		}()
	}
	wg.Wait()
}

func (e *Executor) handle(ctx context.Context, intent model.OrderIntent) {
	if intent.Closing {
		e.handleClose(ctx, intent)
		return
	}
	e.handleOpen(ctx, intent)
	obs.AccountView(e.state.Snapshot())
}

func (e *Executor) handleOpen(ctx context.Context, intent model.OrderIntent) {
	fill, err := e.submit(ctx, intent)
	if err != nil {
		e.release(intent, "submit_failed")
		return
	}

	switch fill.Status {
	case exchange.FillFull, exchange.FillPartial:
		filled := fill.Filled
		if filled.IsZero() {
			filled = intent.Notional
		}
		if err := e.state.ConvertReservation(intent.Reservation, filled); err != nil {
			logs.Errorf("reservation convert failed, ticker: %s, err: %v", intent.Ticker, err)
			return
		}
		obs.OrderFilled(intent, filled)
		e.hooks.OnOpened(e.materialize(intent, fill, filled))
	default:
		e.release(intent, "rejected")
	}
}

func (e *Executor) handleClose(ctx context.Context, intent model.OrderIntent) {
	fill, err := e.submit(ctx, intent)
	if err != nil || fill.Status == exchange.FillRejected || fill.Status == exchange.FillNone {
		obs.OrderFailed(intent, "close_failed")
		e.hooks.OnCloseFailed(intent.PositionID)
		return
	}
	obs.OrderFilled(intent, fill.Filled)
	e.hooks.OnCloseFilled(intent.PositionID, fill)
}

// submit retries transient failures with exponential backoff up to the
// retry limit. Rejections are definitive and never retried.
func (e *Executor) submit(ctx context.Context, intent model.OrderIntent) (exchange.FillResult, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		fill, err := e.ex.SubmitOrder(ctx, intent)
		if err == nil {
			return fill, nil
		}
		lastErr = err
		if !exchange.Transient(err) {
			break
		}
		if attempt == e.maxRetries {
			break
		}
		wait := e.backoff.Next(attempt)
		logs.Warnf("order submit retry %d, ticker: %s, wait: %s, err: %v", attempt, intent.Ticker, wait, err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return exchange.FillResult{}, ctx.Err()
		}
	}
	return exchange.FillResult{}, lastErr
}

func (e *Executor) release(intent model.OrderIntent, reason string) {
	obs.OrderFailed(intent, reason)
	if err := e.state.ReleaseReservation(intent.Reservation); err != nil {
		logs.Errorf("reservation release failed, ticker: %s, err: %v", intent.Ticker, err)
	}
	if e.hooks.OnReleased != nil {
		e.hooks.OnReleased(intent.Ticker)
	}
}

func (e *Executor) materialize(intent model.OrderIntent, fill exchange.FillResult, filled decimal.Decimal) model.Position {
	entry := fill.Price
	if entry.IsZero() {
		entry = intent.LimitPrice
	}
	profile := oracle.ExitProfileFor(intent.Strategy)
	p := model.Position{
		ID:           uuid.NewString(),
		Ticker:       intent.Ticker,
		Side:         intent.Side,
		EntryPrice:   entry,
		Size:         filled,
		Status:       model.PositionPending,
		Strategy:     intent.Strategy,
		StopLoss:     entry.Mul(one.Sub(profile.StopLossFrac)),
		ProfitTarget: entry.Mul(one.Add(profile.ProfitTargetFrac)),
		OpenedAt:     time.Now(),
	}
	// A filled order is open by definition; Pending exists for the
	// window between admission and fill.
	_ = p.Transition(model.PositionOpen)
	return p
}
