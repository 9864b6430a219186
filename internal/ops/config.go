// Package ops loads and validates the runtime configuration. Risk
// parameters are fatal when missing; everything else has a workable
// default.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/exchange"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/risk"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Risk     risk.Budget    `json:"risk"`
	Market   MarketConfig   `json:"market"`
	Exchange ExchangeConfig `json:"exchange"`
	Forecast ForecastConfig `json:"forecast"`
	Pipeline PipelineConfig `json:"pipeline"`
	Store    StoreConfig    `json:"store"`
	Strategy string         `json:"strategy"`
}

// MarketConfig narrows which markets enter a cycle.
type MarketConfig struct {
	MinVolume       int64 `json:"minVolume"`
	MaxDaysToExpiry int   `json:"maxDaysToExpiry"`
}

// ExchangeConfig describes the trading venue endpoint.
type ExchangeConfig struct {
	BaseURL        string  `json:"baseUrl"`
	APIKey         string  `json:"apiKey"`
	RatePerSecond  float64 `json:"ratePerSecond"`
	Burst          int     `json:"burst"`
	TimeoutSeconds int     `json:"timeoutSeconds"`
}

// ForecastConfig describes the probability estimate service.
type ForecastConfig struct {
	BaseURL        string  `json:"baseUrl"`
	APIKey         string  `json:"apiKey"`
	RatePerSecond  float64 `json:"ratePerSecond"`
	Burst          int     `json:"burst"`
	DailyBudget    int     `json:"dailyBudget"`
	TimeoutSeconds int     `json:"timeoutSeconds"`
}

// PipelineConfig sets queue depths, cadences and retry policy.
type PipelineConfig struct {
	MarketQueueSize    int `json:"marketQueueSize"`
	IntentQueueSize    int `json:"intentQueueSize"`
	ExecutorWorkers    int `json:"executorWorkers"`
	MaxOrderRetries    int `json:"maxOrderRetries"`
	MaxCloseFailures   int `json:"maxCloseFailures"`
	ScanIntervalSecs   int `json:"scanIntervalSeconds"`
	TrackIntervalSecs  int `json:"trackIntervalSeconds"`
	BackoffInitialMS   int `json:"backoffInitialMs"`
	BackoffMaxMS       int `json:"backoffMaxMs"`
	CalibrationWindow  int `json:"calibrationWindow"`
}

// StoreConfig points at the persistence backend. An empty DSN keeps
// the run in-memory only.
type StoreConfig struct {
	DSN string `json:"dsn"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Risk     risk.Budget
	Filters  exchange.Filters
	Exchange ExchangeSpec
	Forecast ForecastSpec
	Pipeline PipelineSpec
	Store    StoreConfig
	Strategy model.Strategy
}

// ExchangeSpec is the resolved venue endpoint definition.
type ExchangeSpec struct {
	BaseURL       string
	APIKey        string
	RatePerSecond float64
	Burst         int
	Timeout       time.Duration
}

// ForecastSpec is the resolved estimate service definition.
type ForecastSpec struct {
	BaseURL       string
	APIKey        string
	RatePerSecond float64
	Burst         int
	DailyBudget   int
	Timeout       time.Duration
}

// PipelineSpec is the resolved pipeline tuning.
type PipelineSpec struct {
	MarketQueueSize   int
	IntentQueueSize   int
	ExecutorWorkers   int
	MaxOrderRetries   int
	MaxCloseFailures  int
	ScanInterval      time.Duration
	TrackInterval     time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	CalibrationWindow int
}

// Load reads a JSON config file, applies environment overrides and
// validates the result. A .env file next to the process is honored
// when present.
func Load(path string) (Loaded, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if err := cfg.Risk.Validate(); err != nil {
		return Loaded{}, fmt.Errorf("risk config: %w", err)
	}
	ex, err := resolveExchange(cfg.Exchange)
	if err != nil {
		return Loaded{}, err
	}
	fc, err := resolveForecast(cfg.Forecast)
	if err != nil {
		return Loaded{}, err
	}
	pipe, err := resolvePipeline(cfg.Pipeline)
	if err != nil {
		return Loaded{}, err
	}
	strategy := model.StrategyDirectional
	if cfg.Strategy != "" {
		parsed, ok := model.ParseStrategy(cfg.Strategy)
		if !ok {
			return Loaded{}, fmt.Errorf("unknown strategy: %s", cfg.Strategy)
		}
		strategy = parsed
	}
	return Loaded{
		Risk:     cfg.Risk,
		Filters:  exchange.Filters{MinVolume: cfg.Market.MinVolume, MaxDaysToExpiry: cfg.Market.MaxDaysToExpiry},
		Exchange: ex,
		Forecast: fc,
		Pipeline: pipe,
		Store:    cfg.Store,
		Strategy: strategy,
	}, nil
}

func resolveExchange(cfg ExchangeConfig) (ExchangeSpec, error) {
	if cfg.BaseURL == "" {
		return ExchangeSpec{}, fmt.Errorf("exchange baseUrl is empty")
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	apiKey := cfg.APIKey
	if env := os.Getenv("KALSHI_API_KEY"); env != "" {
		apiKey = env
	}
	return ExchangeSpec{
		BaseURL:       cfg.BaseURL,
		APIKey:        apiKey,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

func resolveForecast(cfg ForecastConfig) (ForecastSpec, error) {
	if cfg.BaseURL == "" {
		return ForecastSpec{}, fmt.Errorf("forecast baseUrl is empty")
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.DailyBudget <= 0 {
		cfg.DailyBudget = 500
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	apiKey := cfg.APIKey
	if env := os.Getenv("FORECAST_API_KEY"); env != "" {
		apiKey = env
	}
	return ForecastSpec{
		BaseURL:       cfg.BaseURL,
		APIKey:        apiKey,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		DailyBudget:   cfg.DailyBudget,
		Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, nil
}

func resolvePipeline(cfg PipelineConfig) (PipelineSpec, error) {
	if cfg.MarketQueueSize <= 0 {
		cfg.MarketQueueSize = 256
	}
	if cfg.IntentQueueSize <= 0 {
		cfg.IntentQueueSize = 64
	}
	if cfg.ExecutorWorkers <= 0 {
		cfg.ExecutorWorkers = 4
	}
	if cfg.MaxOrderRetries < 0 {
		return PipelineSpec{}, fmt.Errorf("maxOrderRetries must be >= 0")
	}
	if cfg.MaxOrderRetries == 0 {
		cfg.MaxOrderRetries = 3
	}
	if cfg.MaxCloseFailures <= 0 {
		cfg.MaxCloseFailures = 3
	}
	if cfg.ScanIntervalSecs <= 0 {
		cfg.ScanIntervalSecs = 60
	}
	if cfg.TrackIntervalSecs <= 0 {
		cfg.TrackIntervalSecs = 30
	}
	if cfg.BackoffInitialMS <= 0 {
		cfg.BackoffInitialMS = 200
	}
	if cfg.BackoffMaxMS <= 0 {
		cfg.BackoffMaxMS = 5000
	}
	if cfg.BackoffMaxMS < cfg.BackoffInitialMS {
		return PipelineSpec{}, fmt.Errorf("backoffMaxMs must be >= backoffInitialMs")
	}
	if cfg.CalibrationWindow <= 0 {
		cfg.CalibrationWindow = 50
	}
	return PipelineSpec{
		MarketQueueSize:   cfg.MarketQueueSize,
		IntentQueueSize:   cfg.IntentQueueSize,
		ExecutorWorkers:   cfg.ExecutorWorkers,
		MaxOrderRetries:   cfg.MaxOrderRetries,
		MaxCloseFailures:  cfg.MaxCloseFailures,
		ScanInterval:      time.Duration(cfg.ScanIntervalSecs) * time.Second,
		TrackInterval:     time.Duration(cfg.TrackIntervalSecs) * time.Second,
		BackoffInitial:    time.Duration(cfg.BackoffInitialMS) * time.Millisecond,
		BackoffMax:        time.Duration(cfg.BackoffMaxMS) * time.Millisecond,
		CalibrationWindow: cfg.CalibrationWindow,
	}, nil
}
