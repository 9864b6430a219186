// Package forecast is the client for the probability-estimation
// collaborator. The service may be slow, down, or over budget; all three
// surface as transient errors so the oracle degrades to non-actionable
// decisions instead of changing risk posture.
package forecast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/oracle"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/ratelimit"
)

var (
	ErrUnavailable     = errors.New("forecast service unavailable")
	ErrBudgetExhausted = errors.New("daily forecast budget exhausted")
)

// Client calls the forecasting service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	budget  *ratelimit.Budget
	daily   *dailyBudget
	timeout time.Duration
}

type ClientOption struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Budget   *ratelimit.Budget
	DailyMax int
}

func NewClient(opt ClientOption) *Client {
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: opt.BaseURL,
		apiKey:  opt.APIKey,
		http:    &http.Client{},
		budget:  opt.Budget,
		daily:   newDailyBudget(opt.DailyMax),
		timeout: timeout,
	}
}

type estimateRequest struct {
	Ticker   string `json:"ticker"`
	Title    string `json:"title"`
	Category string `json:"category"`
	YesPrice string `json:"yes_price"`
	Volume   int64  `json:"volume"`
	Expiry   string `json:"expiry"`
}

type estimateResponse struct {
	Probability decimal.Decimal `json:"probability"`
	Confidence  decimal.Decimal `json:"confidence"`
}

// Estimate asks the service for a probability and confidence for one
// market.
func (c *Client) Estimate(ctx context.Context, market model.Market) (oracle.Estimate, error) {
	if !c.daily.take() {
		return oracle.Estimate{}, ErrBudgetExhausted
	}
	if err := c.budget.Wait(ctx); err != nil {
		return oracle.Estimate{}, err
	}

	payload, err := sonic.ConfigFastest.Marshal(estimateRequest{
		Ticker:   market.Ticker,
		Title:    market.Title,
		Category: market.Category,
		YesPrice: market.YesPrice.String(),
		Volume:   market.Volume,
		Expiry:   market.Expiry.Format(time.RFC3339),
	})
	if err != nil {
		return oracle.Estimate{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/estimate", bytes.NewReader(payload))
	if err != nil {
		return oracle.Estimate{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return oracle.Estimate{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return oracle.Estimate{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded estimateResponse
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return oracle.Estimate{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return oracle.Estimate{
		Probability: decoded.Probability,
		Confidence:  decoded.Confidence,
	}, nil
}

// dailyBudget caps requests per UTC day. Exhaustion reads as service
// unavailability downstream.
type dailyBudget struct {
	mu    sync.Mutex
	max   int
	day   string
	count int
}

func newDailyBudget(max int) *dailyBudget {
	return &dailyBudget{max: max}
}

func (b *dailyBudget) take() bool {
	if b.max <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	today := time.Now().UTC().Format("2006-01-02")
	if b.day != today {
		b.day = today
		b.count = 0
	}
	if b.count >= b.max {
		return false
	}
	b.count++
	return true
}
