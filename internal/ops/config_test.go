package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/model"
)

const validConfig = `{
	"risk": {
		"maxPositions": 5,
		"maxPositionPct": 0.03,
		"maxSinglePosition": 100,
		"cashReservePct": 0.2,
		"kellyFraction": 0.25,
		"minTradeEdge": 0.05,
		"minConfidence": 0.6,
		"minVolume": 100
	},
	"market": {"minVolume": 250, "maxDaysToExpiry": 30},
	"exchange": {"baseUrl": "https://api.example.com", "apiKey": "file-key"},
	"forecast": {"baseUrl": "https://llm.example.com"},
	"pipeline": {"executorWorkers": 2, "scanIntervalSeconds": 45},
	"strategy": "quick_flip"
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	loaded, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, 5, loaded.Risk.MaxPositions)
	assert.Equal(t, int64(250), loaded.Filters.MinVolume)
	assert.Equal(t, 30, loaded.Filters.MaxDaysToExpiry)
	assert.Equal(t, "https://api.example.com", loaded.Exchange.BaseURL)
	assert.Equal(t, model.StrategyQuickFlip, loaded.Strategy)
	assert.Equal(t, 2, loaded.Pipeline.ExecutorWorkers)
	assert.Equal(t, 45*time.Second, loaded.Pipeline.ScanInterval)
}

func TestLoadAppliesDefaults(t *testing.T) {
	loaded, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, 256, loaded.Pipeline.MarketQueueSize)
	assert.Equal(t, 3, loaded.Pipeline.MaxOrderRetries)
	assert.Equal(t, 30*time.Second, loaded.Pipeline.TrackInterval)
	assert.Equal(t, 10*time.Second, loaded.Exchange.Timeout)
	assert.Equal(t, 500, loaded.Forecast.DailyBudget)
	assert.Equal(t, 50, loaded.Pipeline.CalibrationWindow)
}

func TestLoadMissingRiskIsFatal(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"exchange": {"baseUrl": "https://api.example.com"},
		"forecast": {"baseUrl": "https://llm.example.com"}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk config")
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	bad := strings.Replace(validConfig, "quick_flip", "martingale", 1)
	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
}

func TestLoadRejectsMissingEndpoints(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"risk": {
			"maxPositions": 5, "maxPositionPct": 0.03, "maxSinglePosition": 100,
			"cashReservePct": 0.2, "kellyFraction": 0.25,
			"minTradeEdge": 0.05, "minConfidence": 0.6, "minVolume": 100
		},
		"forecast": {"baseUrl": "https://llm.example.com"}
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exchange baseUrl")
}

func TestWatchAppliesReload(t *testing.T) {
	path := writeConfig(t, validConfig)

	applied := make(chan Loaded, 1)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go Watch(ctx, path, 10*time.Millisecond, func(l Loaded) {
		select {
		case applied <- l:
		default:
		}
	})

	// Let the watcher record the initial mtime before rewriting.
	time.Sleep(30 * time.Millisecond)
	updated := strings.Replace(validConfig, `"maxPositions": 5`, `"maxPositions": 9`, 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case l := <-applied:
		assert.Equal(t, 9, l.Risk.MaxPositions)
	case <-time.After(2 * time.Second):
		t.Fatal("reload not applied")
	}
}

func TestWatchKeepsPreviousOnInvalidReload(t *testing.T) {
	path := writeConfig(t, validConfig)

	applied := make(chan Loaded, 4)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go Watch(ctx, path, 10*time.Millisecond, func(l Loaded) { applied <- l })

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	time.Sleep(100 * time.Millisecond)

	select {
	case l := <-applied:
		t.Fatalf("invalid config applied: %+v", l.Risk)
	default:
	}
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("KALSHI_API_KEY", "env-key")
	t.Setenv("FORECAST_API_KEY", "env-forecast-key")

	loaded, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-key", loaded.Exchange.APIKey)
	assert.Equal(t, "env-forecast-key", loaded.Forecast.APIKey)
}
