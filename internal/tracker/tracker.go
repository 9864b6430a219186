// Package tracker watches open positions and decides when they leave.
// Exit triggers are checked in a fixed priority order so a position
// never closes for a weaker reason when a stronger one applies.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/account"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/bus"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/exchange"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/obs"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/oracle"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/store"
)

// Exit trigger names, in priority order.
const (
	TriggerStopLoss     = "stop_loss"
	TriggerProfitTarget = "profit_target"
	TriggerConviction   = "conviction_lost"
	TriggerMaxHold      = "max_hold"
)

// ConvictionFunc reports whether the original thesis for a position no
// longer holds at the current price. Nil disables the check.
type ConvictionFunc func(ctx context.Context, p model.Position, current decimal.Decimal) bool

type Tracker struct {
	ex         exchange.Exchange
	state      *account.State
	intents    *bus.Queue[model.OrderIntent]
	journal    store.Store
	conviction ConvictionFunc

	interval         time.Duration
	maxCloseFailures int

	mu        sync.Mutex
	positions map[string]*model.Position
	triggers  map[string]string
	// pending holds tickers with an admitted intent that has not filled
	// yet, so the scanner cannot re-admit the same market meanwhile.
	pending map[string]struct{}
}

func New(ex exchange.Exchange, state *account.State, intents *bus.Queue[model.OrderIntent], journal store.Store, conviction ConvictionFunc, interval time.Duration, maxCloseFailures int) *Tracker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if maxCloseFailures <= 0 {
		maxCloseFailures = 3
	}
	return &Tracker{
		ex:               ex,
		state:            state,
		intents:          intents,
		journal:          journal,
		conviction:       conviction,
		interval:         interval,
		maxCloseFailures: maxCloseFailures,
		positions:        make(map[string]*model.Position),
		triggers:         make(map[string]string),
		pending:          make(map[string]struct{}),
	}
}

// Adopt restores positions from the journal on startup. Only non
// terminal positions are taken.
func (t *Tracker) Adopt(positions []model.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range positions {
		if p.Status.Terminal() {
			continue
		}
		cp := p
		t.positions[p.ID] = &cp
	}
}

// OnOpened registers a freshly filled position. The ticker moves from
// pending to held.
func (t *Tracker) OnOpened(p model.Position) {
	t.mu.Lock()
	t.positions[p.ID] = &p
	delete(t.pending, p.Ticker)
	t.mu.Unlock()
	t.persist(p)
	logs.Infof("position opened, id: %s, ticker: %s, entry: %s, size: %s",
		p.ID, p.Ticker, p.EntryPrice, p.Size)
}

// MarkPending registers a ticker at admission time, before the order
// fills. It keeps the market out of the next scan cycle.
func (t *Tracker) MarkPending(ticker string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[ticker] = struct{}{}
}

// ClearPending drops a pending ticker whose intent died without a fill.
func (t *Tracker) ClearPending(ticker string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, ticker)
}

// IsActive reports whether a ticker is held or has an intent in flight.
func (t *Tracker) IsActive(ticker string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[ticker]; ok {
		return true
	}
	for _, p := range t.positions {
		if p.Ticker == ticker {
			return true
		}
	}
	return false
}

// ActiveTickers lists tickers with a live position or an in-flight
// intent, for the ingestor's exclusion filter.
func (t *Tracker) ActiveTickers() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	active := make(map[string]bool, len(t.positions)+len(t.pending))
	for _, p := range t.positions {
		active[p.Ticker] = true
	}
	for ticker := range t.pending {
		active[ticker] = true
	}
	return active
}

// Run evaluates exits on a fixed cadence until ctx ends.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

// Sweep runs one exit evaluation pass. Exposed for single-cycle mode.
func (t *Tracker) Sweep(ctx context.Context) { t.sweep(ctx) }

func (t *Tracker) sweep(ctx context.Context) {
	for _, p := range t.open() {
		current, err := t.ex.CurrentPrice(ctx, p.Ticker, p.Side)
		if err != nil {
			logs.Warnf("price check failed, ticker: %s, err: %v", p.Ticker, err)
			continue
		}
		trigger := t.exitTrigger(ctx, p, current)
		if trigger == "" {
			continue
		}
		t.initiateClose(ctx, p.ID, current, trigger)
	}
}

func (t *Tracker) open() []model.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Position, 0, len(t.positions))
	for _, p := range t.positions {
		if p.Status == model.PositionOpen {
			out = append(out, *p)
		}
	}
	return out
}

func (t *Tracker) exitTrigger(ctx context.Context, p model.Position, current decimal.Decimal) string {
	if current.LessThanOrEqual(p.StopLoss) {
		return TriggerStopLoss
	}
	if current.GreaterThanOrEqual(p.ProfitTarget) {
		return TriggerProfitTarget
	}
	if t.conviction != nil && t.conviction(ctx, p, current) {
		return TriggerConviction
	}
	if horizon := oracle.ExitProfileFor(p.Strategy).ExpiryHorizon; horizon > 0 && time.Since(p.OpenedAt) >= horizon {
		return TriggerMaxHold
	}
	return ""
}

func (t *Tracker) initiateClose(ctx context.Context, id string, current decimal.Decimal, trigger string) {
	t.mu.Lock()
	p, ok := t.positions[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	if err := p.Transition(model.PositionClosing); err != nil {
		t.mu.Unlock()
		return
	}
	t.triggers[id] = trigger
	// A close sells the held side; the executor flags it as closing.
	intent := model.OrderIntent{
		Ticker:     p.Ticker,
		Side:       p.Side,
		LimitPrice: current,
		Notional:   p.Size,
		Strategy:   p.Strategy,
		Closing:    true,
		PositionID: p.ID,
	}
	snapshot := *p
	t.mu.Unlock()

	t.persist(snapshot)
	logs.Infof("closing position, id: %s, ticker: %s, trigger: %s", id, snapshot.Ticker, trigger)
	if err := t.intents.Publish(ctx, intent); err != nil {
		logs.Warnf("close intent rejected, id: %s, err: %v", id, err)
		t.OnCloseFailed(id)
	}
}

// OnCloseFilled settles a closed position: realized profit and loss go
// back through the account and the position leaves the tracker. A
// partial close settles only the sold portion and keeps the remainder
// open for the next sweep.
func (t *Tracker) OnCloseFilled(positionID string, fill exchange.FillResult) {
	t.mu.Lock()
	p, ok := t.positions[positionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if fill.Status == exchange.FillPartial && fill.Filled.IsPositive() && fill.Filled.LessThan(p.Size) {
		t.settlePartialLocked(p, fill)
		return
	}
	realized := p.UnrealizedPnL(fill.Price)
	p.RealizedPnL = realized
	p.ClosedAt = time.Now()
	if err := p.Transition(model.PositionClosed); err != nil {
		t.mu.Unlock()
		logs.Errorf("close transition failed, id: %s, err: %v", positionID, err)
		return
	}
	trigger := t.triggers[positionID]
	snapshot := *p
	delete(t.positions, positionID)
	delete(t.triggers, positionID)
	t.mu.Unlock()

	if err := t.state.ReleaseExposure(snapshot.Size, realized); err != nil {
		logs.Errorf("exposure release failed, id: %s, err: %v", positionID, err)
	}
	t.persist(snapshot)
	t.snapshotAccount()
	obs.PositionClosed(snapshot, trigger)
	obs.AccountView(t.state.Snapshot())
}

// settlePartialLocked books the sold slice of a position and returns the
// rest to Open. Called with t.mu held; unlocks before touching the
// account and journal.
func (t *Tracker) settlePartialLocked(p *model.Position, fill exchange.FillResult) {
	sold := *p
	sold.Size = fill.Filled
	realized := sold.UnrealizedPnL(fill.Price)

	p.Size = p.Size.Sub(fill.Filled)
	p.RealizedPnL = p.RealizedPnL.Add(realized)
	id := p.ID
	if err := p.Transition(model.PositionOpen); err != nil {
		t.mu.Unlock()
		logs.Errorf("partial close transition failed, id: %s, err: %v", id, err)
		return
	}
	snapshot := *p
	t.mu.Unlock()

	if err := t.state.ReduceExposure(fill.Filled, realized); err != nil {
		logs.Errorf("partial exposure release failed, id: %s, err: %v", id, err)
	}
	t.persist(snapshot)
	t.snapshotAccount()
	logs.Infof("position partially closed, id: %s, sold: %s, remaining: %s, realized: %s",
		snapshot.ID, fill.Filled, snapshot.Size, realized)
	obs.AccountView(t.state.Snapshot())
}

// OnCloseFailed returns a position to open for another attempt, or
// parks it for an operator once the failure budget is spent. A parked
// position keeps its exposure reserved; only a human should free it.
func (t *Tracker) OnCloseFailed(positionID string) {
	t.mu.Lock()
	p, ok := t.positions[positionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	p.CloseFailures++
	if p.CloseFailures >= t.maxCloseFailures {
		if err := p.Transition(model.PositionNeedsAttention); err == nil {
			snapshot := *p
			delete(t.positions, positionID)
			delete(t.triggers, positionID)
			t.mu.Unlock()
			t.persist(snapshot)
			logs.Errorf("position needs attention, id: %s, ticker: %s, failures: %d",
				positionID, snapshot.Ticker, snapshot.CloseFailures)
			return
		}
	}
	_ = p.Transition(model.PositionOpen)
	snapshot := *p
	t.mu.Unlock()
	t.persist(snapshot)
	logs.Warnf("close attempt failed, id: %s, failures: %d", positionID, snapshot.CloseFailures)
}

func (t *Tracker) persist(p model.Position) {
	if t.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.journal.SavePosition(ctx, p); err != nil {
		logs.Warnf("position journal write failed, id: %s, err: %v", p.ID, err)
	}
}

func (t *Tracker) snapshotAccount() {
	if t.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.journal.SaveAccountView(ctx, t.state.Snapshot()); err != nil {
		logs.Warnf("account snapshot write failed, err: %v", err)
	}
}
