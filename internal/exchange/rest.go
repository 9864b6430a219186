package exchange

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/ratelimit"
)

const defaultRequestTimeout = 10 * time.Second

// Client talks to a Kalshi-style REST API. Prices arrive in cents and are
// normalized to implied probabilities.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	budget  *ratelimit.Budget
	timeout time.Duration
}

type ClientOption struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Budget  *ratelimit.Budget
}

func NewClient(opt ClientOption) *Client {
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: opt.BaseURL,
		apiKey:  opt.APIKey,
		http:    &http.Client{},
		budget:  opt.Budget,
		timeout: timeout,
	}
}

type marketPayload struct {
	Ticker    string `json:"ticker"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	YesPrice  int64  `json:"yes_price"`
	NoPrice   int64  `json:"no_price"`
	Volume    int64  `json:"volume"`
	CloseTime string `json:"close_time"`
}

type marketsResponse struct {
	Markets []marketPayload `json:"markets"`
}

type balanceResponse struct {
	// Balance is in cents.
	Balance int64 `json:"balance"`
}

type positionPayload struct {
	Ticker   string `json:"ticker"`
	Side     string `json:"side"`
	Quantity int64  `json:"quantity"`
	AvgPrice int64  `json:"avg_price"`
}

type positionsResponse struct {
	Positions []positionPayload `json:"positions"`
}

type orderRequest struct {
	Ticker string `json:"ticker"`
	Side   string `json:"side"`
	Action string `json:"action"`
	Type   string `json:"type"`
	Price  int64  `json:"price"`
	Count  int64  `json:"count"`
}

type orderResponse struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	FilledCount int64  `json:"filled_count"`
	Price       int64  `json:"price"`
}

var cents = decimal.NewFromInt(100)

func fromCents(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(cents)
}

func toCents(d decimal.Decimal) int64 {
	return d.Mul(cents).Round(0).IntPart()
}

func (c *Client) ListEligibleMarkets(ctx context.Context, filters Filters) ([]model.Market, error) {
	path := fmt.Sprintf("/trade-api/v2/markets?status=open&min_volume=%d", filters.MinVolume)
	var resp marketsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make([]model.Market, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		expiry, err := time.Parse(time.RFC3339, m.CloseTime)
		if err != nil {
			continue
		}
		out = append(out, model.Market{
			Ticker:   m.Ticker,
			Title:    m.Title,
			Category: m.Category,
			YesPrice: fromCents(m.YesPrice),
			NoPrice:  fromCents(m.NoPrice),
			Volume:   m.Volume,
			Expiry:   expiry,
			Observed: now,
		})
	}
	return out, nil
}

func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/trade-api/v2/portfolio/balance", &resp); err != nil {
		return decimal.Zero, err
	}
	return fromCents(resp.Balance), nil
}

func (c *Client) GetOpenPositions(ctx context.Context) ([]model.Position, error) {
	var resp positionsResponse
	if err := c.get(ctx, "/trade-api/v2/portfolio/positions", &resp); err != nil {
		return nil, err
	}
	out := make([]model.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		side := model.SideYes
		if p.Side == "no" {
			side = model.SideNo
		}
		entry := fromCents(p.AvgPrice)
		out = append(out, model.Position{
			Ticker:     p.Ticker,
			Side:       side,
			EntryPrice: entry,
			Size:       entry.Mul(decimal.NewFromInt(p.Quantity)),
			Status:     model.PositionOpen,
		})
	}
	return out, nil
}

func (c *Client) SubmitOrder(ctx context.Context, intent model.OrderIntent) (FillResult, error) {
	contracts := int64(1)
	if intent.LimitPrice.IsPositive() {
		contracts = intent.Notional.Div(intent.LimitPrice).Round(0).IntPart()
		if contracts < 1 {
			contracts = 1
		}
	}
	action := "buy"
	if intent.Closing {
		action = "sell"
	}
	body := orderRequest{
		Ticker: intent.Ticker,
		Side:   intent.Side.String(),
		Action: action,
		Type:   "limit",
		Price:  toCents(intent.LimitPrice),
		Count:  contracts,
	}

	var resp orderResponse
	if err := c.post(ctx, "/trade-api/v2/portfolio/orders", body, &resp); err != nil {
		return FillResult{}, err
	}

	filled := fromCents(resp.Price).Mul(decimal.NewFromInt(resp.FilledCount))
	switch resp.Status {
	case "executed":
		return FillResult{OrderID: resp.OrderID, Status: FillFull, Price: fromCents(resp.Price), Filled: filled}, nil
	case "partial":
		return FillResult{OrderID: resp.OrderID, Status: FillPartial, Price: fromCents(resp.Price), Filled: filled}, nil
	default:
		return FillResult{OrderID: resp.OrderID, Status: FillRejected}, ErrRejected
	}
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.call(ctx, http.MethodDelete, "/trade-api/v2/portfolio/orders/"+orderID, nil, nil)
}

func (c *Client) CurrentPrice(ctx context.Context, ticker string, side model.Side) (decimal.Decimal, error) {
	var resp struct {
		Market marketPayload `json:"market"`
	}
	if err := c.get(ctx, "/trade-api/v2/markets/"+ticker, &resp); err != nil {
		return decimal.Zero, err
	}
	if side == model.SideNo {
		return fromCents(resp.Market.NoPrice), nil
	}
	return fromCents(resp.Market.YesPrice), nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := sonic.ConfigFastest.Marshal(body)
	if err != nil {
		return err
	}
	return c.call(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) call(ctx context.Context, method, path string, payload []byte, out any) error {
	if err := c.budget.Wait(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return sonic.ConfigFastest.NewDecoder(resp.Body).Decode(out)
}
