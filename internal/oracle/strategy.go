package oracle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

// Thresholds gate whether a decision is actionable.
type Thresholds struct {
	MinEdge       decimal.Decimal
	MinConfidence decimal.Decimal
	MinVolume     int64
}

// ExitProfile parameterizes the exit policy for positions a strategy opens.
// Stop-loss and profit-target are fractions of the entry price.
type ExitProfile struct {
	StopLossFrac     decimal.Decimal
	ProfitTargetFrac decimal.Decimal
	ExpiryHorizon    time.Duration
}

// ThresholdsFor adapts the configured base thresholds to a strategy
// variant. Market making tolerates thinner edges on deeper books; quick
// flips demand fast conviction but accept lower volume.
func ThresholdsFor(strategy model.Strategy, base Thresholds) Thresholds {
	switch strategy {
	case model.StrategyMarketMaking:
		return Thresholds{
			MinEdge:       base.MinEdge.Div(decimal.NewFromInt(2)),
			MinConfidence: base.MinConfidence,
			MinVolume:     base.MinVolume * 4,
		}
	case model.StrategyQuickFlip:
		return Thresholds{
			MinEdge:       base.MinEdge,
			MinConfidence: base.MinConfidence.Mul(decimal.NewFromFloat(0.9)),
			MinVolume:     base.MinVolume / 2,
		}
	default:
		return base
	}
}

// ExitProfileFor returns the exit rules for positions a variant opens.
func ExitProfileFor(strategy model.Strategy) ExitProfile {
	switch strategy {
	case model.StrategyMarketMaking:
		return ExitProfile{
			StopLossFrac:     decimal.NewFromFloat(0.15),
			ProfitTargetFrac: decimal.NewFromFloat(0.10),
			ExpiryHorizon:    12 * time.Hour,
		}
	case model.StrategyQuickFlip:
		return ExitProfile{
			StopLossFrac:     decimal.NewFromFloat(0.20),
			ProfitTargetFrac: decimal.NewFromFloat(0.15),
			ExpiryHorizon:    30 * time.Minute,
		}
	default:
		return ExitProfile{
			StopLossFrac:     decimal.NewFromFloat(0.30),
			ProfitTargetFrac: decimal.NewFromFloat(0.50),
			ExpiryHorizon:    24 * time.Hour,
		}
	}
}
