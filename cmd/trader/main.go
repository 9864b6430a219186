package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/account"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/exchange"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/executor"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/forecast"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/obs"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/ops"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/oracle"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/pipeline"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/ratelimit"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/risk"
	"github.com/CuCryptos/Kalshi-Scraping-Bot/internal/store"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 15*time.Second, "Config reload interval (0=disable)")
	paper := flag.Bool("paper", false, "Trade against the in-memory paper exchange")
	paperBalance := flag.Float64("paper-balance", 1000, "Starting balance for paper trading")
	once := flag.Bool("once", false, "Run a single cycle and exit")
	metricsAddr := flag.String("metrics-addr", ":9090", "Metrics listen address (empty=disable)")
	pyroscopeAddr := flag.String("pyroscope-addr", "", "Pyroscope server address (empty=disable)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "kalshi-trader",
			ServerAddress:   *pyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", obs.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logs.Warnf("metrics server stopped, err: %v", err)
			}
		}()
	}

	var ex exchange.Exchange
	if *paper {
		ex = exchange.NewPaper(decimal.NewFromFloat(*paperBalance))
		logs.Infof("paper trading, balance: %v", *paperBalance)
	} else {
		ex = exchange.NewClient(exchange.ClientOption{
			BaseURL: loaded.Exchange.BaseURL,
			APIKey:  loaded.Exchange.APIKey,
			Timeout: loaded.Exchange.Timeout,
			Budget:  ratelimit.New(loaded.Exchange.RatePerSecond, loaded.Exchange.Burst),
		})
	}

	forecaster := forecast.NewClient(forecast.ClientOption{
		BaseURL:  loaded.Forecast.BaseURL,
		APIKey:   loaded.Forecast.APIKey,
		Timeout:  loaded.Forecast.Timeout,
		Budget:   ratelimit.New(loaded.Forecast.RatePerSecond, loaded.Forecast.Burst),
		DailyMax: loaded.Forecast.DailyBudget,
	})

	var journal store.Store
	if loaded.Store.DSN != "" {
		pg, err := store.NewPostgres(loaded.Store.DSN)
		if err != nil {
			log.Fatalf("store connect failed: %v", err)
		}
		journal = pg
	} else {
		journal = store.NewMemory()
	}
	defer func() { _ = journal.Close() }()

	state := account.New(decimal.Zero)
	gate := risk.NewGate(state, loaded.Risk)
	brain := oracle.New(
		forecaster,
		oracle.NewCalibrator(loaded.Pipeline.CalibrationWindow),
		loaded.Strategy,
		oracle.Thresholds{
			MinEdge:       loaded.Risk.MinTradeEdge,
			MinConfidence: loaded.Risk.MinConfidence,
			MinVolume:     loaded.Risk.MinVolume,
		},
	)

	pipe := pipeline.New(pipeline.Options{
		Exchange:    ex,
		State:       state,
		Oracle:      brain,
		Gate:        gate,
		Journal:     journal,
		Filters:     loaded.Filters,
		MarketQueue: loaded.Pipeline.MarketQueueSize,
		IntentQueue: loaded.Pipeline.IntentQueueSize,
		Workers:     loaded.Pipeline.ExecutorWorkers,
		MaxRetries:  loaded.Pipeline.MaxOrderRetries,
		Backoff: executor.Backoff{
			Min:    loaded.Pipeline.BackoffInitial,
			Max:    loaded.Pipeline.BackoffMax,
			Factor: 2.0,
			Jitter: 0.2,
		},
		ScanInterval: loaded.Pipeline.ScanInterval,
		TrackEvery:   loaded.Pipeline.TrackInterval,
		MaxCloseFail: loaded.Pipeline.MaxCloseFailures,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sys.Shutdown()
		logs.Infof("shutdown signal received")
		cancel()
	}()

	if *configReload > 0 {
		go ops.Watch(ctx, *configPath, *configReload, func(l ops.Loaded) {
			pipe.ApplyBudget(l.Risk)
		})
	}

	if *once {
		if err := pipe.RunOnce(ctx); err != nil {
			log.Fatalf("cycle failed: %v", err)
		}
		return
	}
	if err := pipe.Run(ctx); err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}
}
