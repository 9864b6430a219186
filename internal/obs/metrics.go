// Package obs exports the pipeline's Prometheus metrics and emits one
// structured event per notable trade outcome. Dashboards and alerting
// consume these; nothing in here affects trading behavior.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/account"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

var (
	mtxDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_decisions_total",
			Help: "Oracle decisions by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	mtxAdmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_admissions_total",
			Help: "Risk gate admissions by result",
		},
		[]string{"result"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Order submissions by kind and result",
		},
		[]string{"kind", "result"},
	)

	mtxExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_exit_reasons_total",
			Help: "Position exits by trigger",
		},
		[]string{"trigger"},
	)

	mtxOpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Currently open positions",
		},
	)

	mtxReserved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_reserved_usd",
			Help: "Cash reserved for in-flight intents",
		},
	)

	mtxExposure = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_exposure_usd",
			Help: "Open position exposure",
		},
	)

	mtxBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_balance_usd",
			Help: "Account balance including realized PnL",
		},
	)

	mtxRealized = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_realized_pnl_usd",
			Help: "Cumulative realized PnL since start",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxDecisions,
		mtxAdmissions,
		mtxOrders,
		mtxExits,
		mtxOpenPositions,
		mtxReserved,
		mtxExposure,
		mtxBalance,
		mtxRealized,
	)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DecisionMade records an oracle verdict.
func DecisionMade(d model.Decision) {
	outcome := "actionable"
	if !d.Actionable {
		outcome = d.Skip.String()
	}
	mtxDecisions.WithLabelValues(d.Strategy.String(), outcome).Inc()
	if d.Actionable {
		logs.Infof("decision ticker=%s side=%s edge=%s confidence=%s strategy=%s",
			d.Market.Ticker, d.Side, d.Edge, d.Confidence, d.Strategy)
	}
}

// AdmissionDenied records an expected non-trade outcome.
func AdmissionDenied(ticker, reason string) {
	mtxAdmissions.WithLabelValues(reason).Inc()
	logs.Infof("admission denied ticker=%s reason=%s", ticker, reason)
}

// AdmissionGranted records a reserved intent.
func AdmissionGranted(intent model.OrderIntent) {
	mtxAdmissions.WithLabelValues("admitted").Inc()
	logs.Infof("admission granted ticker=%s side=%s notional=%s reservation=%d",
		intent.Ticker, intent.Side, intent.Notional, intent.Reservation)
}

// OrderFilled records an executed order.
func OrderFilled(intent model.OrderIntent, filled decimal.Decimal) {
	kind := "open"
	if intent.Closing {
		kind = "close"
	}
	mtxOrders.WithLabelValues(kind, "filled").Inc()
	logs.Infof("order filled ticker=%s kind=%s notional=%s", intent.Ticker, kind, filled)
}

// OrderFailed records a definitive execution failure.
func OrderFailed(intent model.OrderIntent, reason string) {
	kind := "open"
	if intent.Closing {
		kind = "close"
	}
	mtxOrders.WithLabelValues(kind, reason).Inc()
	logs.Warnf("order failed ticker=%s kind=%s reason=%s", intent.Ticker, kind, reason)
}

// PositionClosed records a finalized position.
func PositionClosed(p model.Position, trigger string) {
	mtxExits.WithLabelValues(trigger).Inc()
	mtxRealized.Add(toFloat(p.RealizedPnL))
	logs.Infof("position closed id=%s ticker=%s pnl=%s trigger=%s",
		p.ID, p.Ticker, p.RealizedPnL, trigger)
}

// AccountView publishes the current account figures.
func AccountView(v account.View) {
	mtxOpenPositions.Set(float64(v.CommittedCount))
	mtxReserved.Set(toFloat(v.Reserved))
	mtxExposure.Set(toFloat(v.Exposure))
	mtxBalance.Set(toFloat(v.Balance))
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
