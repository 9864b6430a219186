// Package pipeline wires the stages together: scan, decide, admit,
// execute, track. Stages hand off through bounded queues; shutdown
// closes them upstream first so in-flight work always completes.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/account"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/bus"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/errors"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/exchange"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/executor"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/ingest"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/obs"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/oracle"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/risk"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/store"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/tracker"
)

var one = decimal.NewFromInt(1)

type Pipeline struct {
	ex       exchange.Exchange
	state    *account.State
	ingestor *ingest.Ingestor
	oracle   *oracle.Oracle
	gate     *risk.Gate
	exec     *executor.Executor
	tracker  *tracker.Tracker
	journal  store.Store

	markets *bus.Queue[model.Market]
	intents *bus.Queue[model.OrderIntent]

	scanInterval time.Duration

	bootOnce sync.Once
	bootErr  error

	cacheMu sync.Mutex
	cache   map[string]model.Market
}

// Options carries the collaborators main assembles from config.
type Options struct {
	Exchange     exchange.Exchange
	State        *account.State
	Oracle       *oracle.Oracle
	Gate         *risk.Gate
	Journal      store.Store
	Filters      exchange.Filters
	MarketQueue  int
	IntentQueue  int
	Workers      int
	MaxRetries   int
	Backoff      executor.Backoff
	ScanInterval time.Duration
	TrackEvery   time.Duration
	MaxCloseFail int
}

func New(opt Options) *Pipeline {
	p := &Pipeline{
		ex:           opt.Exchange,
		state:        opt.State,
		oracle:       opt.Oracle,
		gate:         opt.Gate,
		journal:      opt.Journal,
		markets:      bus.NewQueue[model.Market](opt.MarketQueue),
		intents:      bus.NewQueue[model.OrderIntent](opt.IntentQueue),
		scanInterval: opt.ScanInterval,
		cache:        make(map[string]model.Market),
	}
	p.tracker = tracker.New(opt.Exchange, opt.State, p.intents, opt.Journal,
		p.lostConviction, opt.TrackEvery, opt.MaxCloseFail)
	p.exec = executor.New(opt.Exchange, opt.State, p.intents, executor.Hooks{
		OnOpened:      p.tracker.OnOpened,
		OnCloseFilled: p.tracker.OnCloseFilled,
		OnCloseFailed: p.tracker.OnCloseFailed,
		OnReleased:    p.tracker.ClearPending,
	}, opt.Workers, opt.MaxRetries, opt.Backoff)
	p.ingestor = ingest.New(opt.Exchange, opt.Filters, p.tracker.ActiveTickers)
	return p
}

// ApplyBudget swaps the risk parameters at runtime.
func (p *Pipeline) ApplyBudget(budget risk.Budget) {
	p.gate.SetBudget(budget)
	logs.Infof("risk budget updated")
}

// Run drives the pipeline until ctx is cancelled, then shuts down in
// order: stop scanning, drain decisions, stop tracking, drain orders.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.bootstrapOnce(ctx); err != nil {
		return err
	}

	oracleDone := make(chan struct{})
	go func() {
		defer close(oracleDone)
		p.markets.Drain(func(m model.Market) { p.decide(ctx, m) })
	}()

	execDone := make(chan struct{})
	go func() {
		defer close(execDone)
		p.exec.Run(context.Background())
	}()

	trackCtx, cancelTrack := context.WithCancel(context.Background())
	trackDone := make(chan struct{})
	go func() {
		defer close(trackDone)
		p.tracker.Run(trackCtx)
	}()

	p.scan(ctx)
	ticker := time.NewTicker(p.scanInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			p.scan(ctx)
		}
	}

	logs.Infof("pipeline shutting down")
	p.markets.Close()
	<-oracleDone
	// The tracker stops before its intent sink closes; a final sweep in
	// flight still lands in an open queue.
	cancelTrack()
	<-trackDone
	p.intents.Close()
	<-execDone
	logs.Infof("pipeline stopped")
	return nil
}

// RunOnce executes a single scan-decide-execute cycle plus one exit
// sweep, then returns. The sweep runs while the executor is still live
// so triggered closes are actually submitted this cycle.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	if err := p.bootstrapOnce(ctx); err != nil {
		return err
	}

	execDone := make(chan struct{})
	go func() {
		defer close(execDone)
		p.exec.Run(ctx)
	}()

	markets, err := p.ingestor.Pull(ctx)
	if err == nil {
		for _, m := range markets {
			p.decide(ctx, m)
		}
	}
	p.tracker.Sweep(ctx)

	p.intents.Close()
	<-execDone
	return nil
}

// bootstrapOnce runs the startup sync exactly once per process. Cycles
// after the first reuse the live account state.
func (p *Pipeline) bootstrapOnce(ctx context.Context) error {
	p.bootOnce.Do(func() { p.bootErr = p.bootstrap(ctx) })
	return p.bootErr
}

// bootstrap syncs the account with the venue and re-adopts journaled
// positions so their exposure is accounted for again.
func (p *Pipeline) bootstrap(ctx context.Context) error {
	cash, err := p.ex.GetBalance(ctx)
	if err != nil {
		return errors.Wrap(err, "balance sync")
	}

	var adopted []model.Position
	if p.journal != nil {
		adopted, err = p.journal.OpenPositions(ctx)
		if err != nil {
			logs.Warnf("journal restore failed, starting clean, err: %v", err)
			adopted = nil
		}
	}
	adopted = p.reconcileVenue(ctx, adopted)

	held := decimal.Zero
	for _, pos := range adopted {
		held = held.Add(pos.Size)
	}
	p.state.Sync(cash.Add(held))
	for _, pos := range adopted {
		size := pos.Size
		token, _, err := p.state.Admit(func(account.View) (decimal.Decimal, error) {
			return size, nil
		})
		if err != nil {
			logs.Warnf("exposure restore failed, id: %s, err: %v", pos.ID, err)
			continue
		}
		if err := p.state.ConvertReservation(token, size); err != nil {
			logs.Warnf("exposure restore failed, id: %s, err: %v", pos.ID, err)
		}
	}
	p.tracker.Adopt(adopted)

	if p.journal != nil {
		if err := p.journal.SaveAccountView(ctx, p.state.Snapshot()); err != nil {
			logs.Warnf("account snapshot write failed, err: %v", err)
		}
	}
	obs.AccountView(p.state.Snapshot())
	logs.Infof("bootstrap complete, balance: %s, adopted positions: %d", cash, len(adopted))
	return nil
}

// reconcileVenue folds in open positions the venue reports but the
// journal does not, such as positions opened by hand or left behind by a
// lost journal. Exit bands are rebuilt from the entry price since the
// originals are gone.
func (p *Pipeline) reconcileVenue(ctx context.Context, adopted []model.Position) []model.Position {
	venue, err := p.ex.GetOpenPositions(ctx)
	if err != nil {
		logs.Warnf("venue position sync failed, err: %v", err)
		return adopted
	}

	journaled := make(map[string]bool, len(adopted))
	for _, pos := range adopted {
		journaled[pos.Ticker] = true
	}
	for _, pos := range venue {
		if journaled[pos.Ticker] {
			continue
		}
		pos.ID = uuid.NewString()
		pos.OpenedAt = time.Now()
		profile := oracle.ExitProfileFor(pos.Strategy)
		pos.StopLoss = pos.EntryPrice.Mul(one.Sub(profile.StopLossFrac))
		pos.ProfitTarget = pos.EntryPrice.Mul(one.Add(profile.ProfitTargetFrac))
		logs.Warnf("adopting venue position missing from journal, ticker: %s, size: %s",
			pos.Ticker, pos.Size)
		adopted = append(adopted, pos)
		if p.journal != nil {
			if err := p.journal.SavePosition(ctx, pos); err != nil {
				logs.Warnf("position journal write failed, id: %s, err: %v", pos.ID, err)
			}
		}
	}
	return adopted
}

func (p *Pipeline) scan(ctx context.Context) {
	markets, err := p.ingestor.Pull(ctx)
	if err != nil {
		return
	}
	for _, m := range markets {
		if err := p.markets.Publish(ctx, m); err != nil {
			return
		}
	}
}

func (p *Pipeline) decide(ctx context.Context, m model.Market) {
	// Consecutive scans can queue the same market before the first
	// intent fills; a held or pending ticker is never re-admitted.
	if p.tracker.IsActive(m.Ticker) {
		return
	}
	d := p.oracle.Decide(ctx, m)
	obs.DecisionMade(d)
	if !d.Actionable {
		return
	}

	p.cacheMu.Lock()
	p.cache[m.Ticker] = m
	p.cacheMu.Unlock()

	if p.journal != nil {
		if err := p.journal.RecordDecision(ctx, d); err != nil {
			logs.Warnf("decision journal write failed, ticker: %s, err: %v", m.Ticker, err)
		}
	}

	intent, denial := p.gate.Admit(d)
	if denial != nil {
		obs.AdmissionDenied(m.Ticker, denial.Reason.String())
		return
	}
	obs.AdmissionGranted(intent)
	p.tracker.MarkPending(m.Ticker)
	if err := p.intents.Publish(ctx, intent); err != nil {
		// The reservation must not outlive a dropped intent.
		if relErr := p.state.ReleaseReservation(intent.Reservation); relErr != nil {
			logs.Errorf("reservation release failed, ticker: %s, err: %v", m.Ticker, relErr)
		}
		p.tracker.ClearPending(m.Ticker)
		logs.Warnf("intent dropped, ticker: %s, err: %v", m.Ticker, err)
	}
}

// lostConviction re-runs the oracle against the cached market snapshot
// at the current price. An estimate that no longer clears the
// confidence bar means the thesis is gone.
func (p *Pipeline) lostConviction(ctx context.Context, pos model.Position, current decimal.Decimal) bool {
	p.cacheMu.Lock()
	m, ok := p.cache[pos.Ticker]
	p.cacheMu.Unlock()
	if !ok {
		return false
	}

	if pos.Side == model.SideYes {
		m.YesPrice = current
		m.NoPrice = one.Sub(current)
	} else {
		m.NoPrice = current
		m.YesPrice = one.Sub(current)
	}
	d := p.oracle.Decide(ctx, m)
	return d.Skip == model.SkipConfidenceBelowThreshold
}
