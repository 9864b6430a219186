package oracle

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Calibrator damps raw forecaster confidence by the capability's own
// historical estimate-vs-outcome error. A forecaster that has been wrong
// lately gets believed less, which feeds straight into admission.
type Calibrator struct {
	mu     sync.Mutex
	window int
	errs   []decimal.Decimal
	next   int
	filled bool
}

// confidence is never damped below this floor; calibration shades trust,
// it does not veto trades on its own.
var confidenceFloor = decimal.NewFromFloat(0.25)

func NewCalibrator(window int) *Calibrator {
	if window <= 0 {
		window = 50
	}
	return &Calibrator{window: window, errs: make([]decimal.Decimal, window)}
}

// Record stores the absolute error between an estimate and the resolved
// outcome (0 or 1).
func (c *Calibrator) Record(estimate, outcome decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[c.next] = estimate.Sub(outcome).Abs()
	c.next++
	if c.next == c.window {
		c.next = 0
		c.filled = true
	}
}

// Adjust scales a raw confidence by (1 − mean absolute error). With no
// history the confidence passes through unchanged.
func (c *Calibrator) Adjust(confidence decimal.Decimal) decimal.Decimal {
	mae := c.meanAbsError()
	if mae.IsZero() {
		return confidence
	}
	adjusted := confidence.Mul(decimal.NewFromInt(1).Sub(mae))
	if adjusted.LessThan(confidenceFloor) {
		return confidenceFloor
	}
	return adjusted
}

func (c *Calibrator) meanAbsError() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.next
	if c.filled {
		n = c.window
	}
	if n == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for i := 0; i < n; i++ {
		sum = sum.Add(c.errs[i])
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
