package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

type stubForecaster struct {
	est Estimate
	err error
}

func (s stubForecaster) Estimate(context.Context, model.Market) (Estimate, error) {
	return s.est, s.err
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func baseThresholds() Thresholds {
	return Thresholds{
		MinEdge:       d("0.05"),
		MinConfidence: d("0.6"),
		MinVolume:     100,
	}
}

func testMarket() model.Market {
	return model.Market{
		Ticker:   "WEATHER-NYC",
		YesPrice: d("0.40"),
		NoPrice:  d("0.60"),
		Volume:   5000,
	}
}

func TestDecideActionableYes(t *testing.T) {
	o := New(
		stubForecaster{est: Estimate{Probability: d("0.55"), Confidence: d("0.8")}},
		NewCalibrator(10),
		model.StrategyDirectional,
		baseThresholds(),
	)

	dec := o.Decide(t.Context(), testMarket())
	require.True(t, dec.Actionable)
	assert.Equal(t, model.SideYes, dec.Side)
	assert.True(t, dec.Edge.Equal(d("0.15")), "edge = %s", dec.Edge)
	assert.Equal(t, model.SkipNone, dec.Skip)
}

func TestDecideFavorsNoSide(t *testing.T) {
	o := New(
		stubForecaster{est: Estimate{Probability: d("0.20"), Confidence: d("0.8")}},
		NewCalibrator(10),
		model.StrategyDirectional,
		baseThresholds(),
	)

	dec := o.Decide(t.Context(), testMarket())
	require.True(t, dec.Actionable)
	assert.Equal(t, model.SideNo, dec.Side)
	// Estimate 0.20 yes means 0.80 no against an implied 0.60.
	assert.True(t, dec.Edge.Equal(d("0.2")), "edge = %s", dec.Edge)
}

func TestDecideForecastOutageNeverTrades(t *testing.T) {
	o := New(
		stubForecaster{err: errors.New("service down")},
		NewCalibrator(10),
		model.StrategyDirectional,
		baseThresholds(),
	)

	dec := o.Decide(t.Context(), testMarket())
	assert.False(t, dec.Actionable)
	assert.Equal(t, model.SkipForecastUnavailable, dec.Skip)
}

func TestDecideMalformedEstimateNeverTrades(t *testing.T) {
	o := New(
		stubForecaster{est: Estimate{Probability: d("1.3"), Confidence: d("0.8")}},
		NewCalibrator(10),
		model.StrategyDirectional,
		baseThresholds(),
	)

	dec := o.Decide(t.Context(), testMarket())
	assert.False(t, dec.Actionable)
	assert.Equal(t, model.SkipForecastUnavailable, dec.Skip)
}

func TestDecideSkipReasons(t *testing.T) {
	cases := []struct {
		name string
		est  Estimate
		mkt  model.Market
		skip model.SkipReason
	}{
		{
			name: "edge below threshold",
			est:  Estimate{Probability: d("0.42"), Confidence: d("0.8")},
			mkt:  testMarket(),
			skip: model.SkipEdgeBelowThreshold,
		},
		{
			name: "confidence below threshold",
			est:  Estimate{Probability: d("0.55"), Confidence: d("0.4")},
			mkt:  testMarket(),
			skip: model.SkipConfidenceBelowThreshold,
		},
		{
			name: "volume below threshold",
			est:  Estimate{Probability: d("0.55"), Confidence: d("0.8")},
			mkt: model.Market{
				Ticker: "THIN-MKT", YesPrice: d("0.40"), NoPrice: d("0.60"), Volume: 10,
			},
			skip: model.SkipVolumeBelowThreshold,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := New(stubForecaster{est: tc.est}, NewCalibrator(10),
				model.StrategyDirectional, baseThresholds())
			dec := o.Decide(t.Context(), tc.mkt)
			assert.False(t, dec.Actionable)
			assert.Equal(t, tc.skip, dec.Skip)
		})
	}
}

func TestCalibrationDampsConfidence(t *testing.T) {
	cal := NewCalibrator(10)
	// A forecaster that has been badly wrong loses trust.
	for i := 0; i < 10; i++ {
		cal.Record(d("0.9"), decimal.Zero)
	}

	adjusted := cal.Adjust(d("0.8"))
	require.True(t, adjusted.LessThan(d("0.8")), "adjusted = %s", adjusted)
	require.True(t, adjusted.GreaterThanOrEqual(d("0.25")), "adjusted below floor: %s", adjusted)
}

func TestCalibrationFloor(t *testing.T) {
	cal := NewCalibrator(4)
	for i := 0; i < 4; i++ {
		cal.Record(d("1"), decimal.Zero)
	}
	assert.True(t, cal.Adjust(d("0.9")).Equal(d("0.25")))
}

func TestCalibrationPassThroughWithoutHistory(t *testing.T) {
	cal := NewCalibrator(10)
	assert.True(t, cal.Adjust(d("0.7")).Equal(d("0.7")))
}

func TestThresholdsForVariants(t *testing.T) {
	base := baseThresholds()

	mm := ThresholdsFor(model.StrategyMarketMaking, base)
	assert.True(t, mm.MinEdge.Equal(d("0.025")), "mm edge = %s", mm.MinEdge)
	assert.Equal(t, int64(400), mm.MinVolume)

	qf := ThresholdsFor(model.StrategyQuickFlip, base)
	assert.True(t, qf.MinConfidence.Equal(d("0.54")), "qf confidence = %s", qf.MinConfidence)
	assert.Equal(t, int64(50), qf.MinVolume)

	dir := ThresholdsFor(model.StrategyDirectional, base)
	assert.True(t, dir.MinEdge.Equal(base.MinEdge))
}
