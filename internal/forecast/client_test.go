package forecast

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

func TestEstimateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/estimate", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"probability": "0.62", "confidence": "0.8"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOption{BaseURL: srv.URL, APIKey: "test-key"})
	est, err := c.Estimate(t.Context(), model.Market{Ticker: "TEST", YesPrice: decimal.NewFromFloat(0.4)})
	require.NoError(t, err)
	assert.True(t, est.Probability.Equal(decimal.NewFromFloat(0.62)))
	assert.True(t, est.Confidence.Equal(decimal.NewFromFloat(0.8)))
}

func TestEstimateServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientOption{BaseURL: srv.URL})
	_, err := c.Estimate(t.Context(), model.Market{Ticker: "TEST"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestEstimateDailyBudget(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"probability": "0.5", "confidence": "0.7"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOption{BaseURL: srv.URL, DailyMax: 2})
	for i := 0; i < 2; i++ {
		_, err := c.Estimate(t.Context(), model.Market{Ticker: "TEST"})
		require.NoError(t, err)
	}

	_, err := c.Estimate(t.Context(), model.Market{Ticker: "TEST"})
	require.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, 2, calls)
}
