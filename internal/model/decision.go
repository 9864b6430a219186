package model

import "github.com/shopspring/decimal"

// SkipReason explains why a decision is not actionable.
type SkipReason uint8

const (
	SkipNone SkipReason = iota
	SkipForecastUnavailable
	SkipEdgeBelowThreshold
	SkipConfidenceBelowThreshold
	SkipVolumeBelowThreshold
)

func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return "none"
	case SkipForecastUnavailable:
		return "forecast_unavailable"
	case SkipEdgeBelowThreshold:
		return "edge_below_threshold"
	case SkipConfidenceBelowThreshold:
		return "confidence_below_threshold"
	case SkipVolumeBelowThreshold:
		return "volume_below_threshold"
	default:
		return "unknown"
	}
}

// Decision is the oracle's verdict on one market for one cycle.
type Decision struct {
	Market     Market
	Estimate   decimal.Decimal
	Confidence decimal.Decimal
	Edge       decimal.Decimal
	Side       Side
	Strategy   Strategy

	MeetsEdge       bool
	MeetsConfidence bool
	MeetsVolume     bool
	Actionable      bool
	Skip            SkipReason

	Rationale string
}

// Strategy tags which trading variant produced a decision. All variants
// share the oracle and exit-policy contracts.
type Strategy uint8

const (
	StrategyDirectional Strategy = iota
	StrategyMarketMaking
	StrategyQuickFlip
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirectional:
		return "directional"
	case StrategyMarketMaking:
		return "market_making"
	case StrategyQuickFlip:
		return "quick_flip"
	default:
		return "unknown"
	}
}

// ParseStrategy maps a config string to a strategy tag.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "directional", "":
		return StrategyDirectional, true
	case "market_making":
		return StrategyMarketMaking, true
	case "quick_flip":
		return StrategyQuickFlip, true
	default:
		return StrategyDirectional, false
	}
}
