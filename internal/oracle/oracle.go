// Package oracle turns market snapshots into trade decisions. It composes
// three independently substitutable steps behind one interface: a raw
// probability estimate, a calibration pass over the estimator's history,
// and edge synthesis against the market-implied probability.
package oracle

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

// Estimate is the forecasting collaborator's raw output.
type Estimate struct {
	Probability decimal.Decimal
	Confidence  decimal.Decimal
}

// Forecaster produces a probability estimate for one market. It may be
// slow or unavailable; both are transient conditions.
type Forecaster interface {
	Estimate(ctx context.Context, market model.Market) (Estimate, error)
}

// Oracle composes forecast, calibration, and synthesis into decisions.
type Oracle struct {
	forecaster Forecaster
	calibrator *Calibrator
	thresholds Thresholds
	strategy   model.Strategy
}

func New(forecaster Forecaster, calibrator *Calibrator, strategy model.Strategy, base Thresholds) *Oracle {
	return &Oracle{
		forecaster: forecaster,
		calibrator: calibrator,
		thresholds: ThresholdsFor(strategy, base),
		strategy:   strategy,
	}
}

// Calibrator exposes the calibration step so resolved outcomes can be
// recorded against past estimates.
func (o *Oracle) Calibrator() *Calibrator { return o.calibrator }

// Strategy returns the variant this oracle decides for.
func (o *Oracle) Strategy() model.Strategy { return o.strategy }

// Decide produces the verdict for one market. A forecasting outage or a
// malformed estimate yields a non-actionable decision; it never defaults
// to a trade.
func (o *Oracle) Decide(ctx context.Context, market model.Market) model.Decision {
	decision := model.Decision{
		Market:   market,
		Strategy: o.strategy,
	}

	est, err := o.forecaster.Estimate(ctx, market)
	if err != nil {
		logs.Warnf("forecast unavailable for %s: %v", market.Ticker, err)
		decision.Skip = model.SkipForecastUnavailable
		return decision
	}
	if !validProbability(est.Probability) || !validProbability(est.Confidence) {
		logs.Warnf("malformed forecast for %s: p=%s conf=%s",
			market.Ticker, est.Probability, est.Confidence)
		decision.Skip = model.SkipForecastUnavailable
		return decision
	}

	decision.Estimate = est.Probability
	decision.Confidence = o.calibrator.Adjust(est.Confidence)

	// Trade the side the estimate favors; edge is measured against that
	// side's implied probability.
	side := model.SideYes
	estimateForSide := est.Probability
	if est.Probability.LessThan(market.YesPrice) {
		side = model.SideNo
		estimateForSide = decimal.NewFromInt(1).Sub(est.Probability)
	}
	decision.Side = side
	decision.Edge = estimateForSide.Sub(market.ImpliedProbability(side)).Abs()

	decision.MeetsEdge = decision.Edge.GreaterThanOrEqual(o.thresholds.MinEdge)
	decision.MeetsConfidence = decision.Confidence.GreaterThanOrEqual(o.thresholds.MinConfidence)
	decision.MeetsVolume = market.Volume >= o.thresholds.MinVolume
	decision.Actionable = decision.MeetsEdge && decision.MeetsConfidence && decision.MeetsVolume

	switch {
	case decision.Actionable:
	case !decision.MeetsEdge:
		decision.Skip = model.SkipEdgeBelowThreshold
	case !decision.MeetsConfidence:
		decision.Skip = model.SkipConfidenceBelowThreshold
	default:
		decision.Skip = model.SkipVolumeBelowThreshold
	}
	return decision
}

func validProbability(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(decimal.Zero) && d.LessThanOrEqual(decimal.NewFromInt(1))
}
