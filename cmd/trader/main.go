package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lod61/poly-model-auto-trading/config"
	"github.com/lod61/poly-model-auto-trading/internal/adapters/binance"
	"github.com/lod61/poly-model-auto-trading/internal/adapters/chainlink"
	"github.com/lod61/poly-model-auto-trading/internal/adapters/model"
	"github.com/lod61/poly-model-auto-trading/internal/adapters/notify"
	"github.com/lod61/poly-model-auto-trading/internal/adapters/polymarket"
	"github.com/lod61/poly-model-auto-trading/internal/adapters/storage"
	"github.com/lod61/poly-model-auto-trading/internal/application/trader"
	"github.com/lod61/poly-model-auto-trading/internal/candles"
	"github.com/lod61/poly-model-auto-trading/internal/domain"
	"github.com/lod61/poly-model-auto-trading/internal/features"
	"github.com/lod61/poly-model-auto-trading/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one decision cycle and exit")
	paper := flag.Bool("paper", false, "simulate fills instead of placing real orders")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print recent decisions table with stats")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("trader starting",
		"config", *configPath,
		"symbol", cfg.Binance.Symbol,
		"paper", *paper,
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	riskState, err := store.LoadRiskState(ctx)
	if err != nil {
		slog.Error("failed to load risk state", "err", err)
		os.Exit(1)
	}

	// El manifiesto y el modelo son requisitos duros: sin ellos no hay
	// predicción posible y el proceso no debe arrancar.
	manifest, err := model.LoadManifest(cfg.Model.ManifestPath)
	if err != nil {
		slog.Error("failed to load feature manifest", "err", err, "path", cfg.Model.ManifestPath)
		os.Exit(1)
	}
	scorer, err := model.NewScorer(cfg.Model.Path, cfg.Model.LibraryPath, manifest, cfg.Model.LabelFallbackUp)
	if err != nil {
		slog.Error("failed to load model", "err", err, "path", cfg.Model.Path)
		os.Exit(1)
	}
	defer scorer.Close()

	builder := features.NewBuilder(manifest)

	agg := candles.New(cfg.Trading.HistoryCandles)
	history := binance.NewHistory(cfg.Binance.RESTBase, cfg.Binance.Symbol)
	seed, err := history.RecentCandles(ctx, cfg.Trading.HistoryCandles)
	if err != nil {
		// Arranque degradado: el historial se rellena desde el stream y el
		// ciclo se salta por historial insuficiente hasta entonces.
		slog.Warn("failed to seed candle history, starting empty", "err", err)
	} else {
		agg.Seed(seed)
		slog.Info("candle history seeded", "candles", len(seed))
	}

	stream := binance.NewStream(cfg.Binance.StreamBase, strings.ToLower(cfg.Binance.Symbol), "1m")
	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("tick stream terminated", "err", err)
		}
	}()
	go agg.Run(ctx, stream.Ticks())

	if cfg.Chainlink.Enabled {
		oracle, err := chainlink.NewOracle(cfg.Chainlink.RPCURL, cfg.Chainlink.Aggregator)
		if err != nil {
			slog.Warn("chainlink oracle unavailable, continuing without reference price", "err", err)
		} else {
			go pollOracle(ctx, oracle, agg, cfg.ChainlinkPoll())
		}
	}

	client := polymarket.NewClient(cfg.Polymarket.CLOBBase, cfg.Polymarket.GammaBase)
	markets := polymarket.NewMarkets(client, cfg.Polymarket.SlugLayout, cfg.Polymarket.FixedSlug)

	var executor ports.OrderExecutor
	if *paper {
		executor = &trader.PaperExecutor{}
	} else {
		if cfg.Polymarket.PrivateKey == "" {
			slog.Error("POLYMARKET_PRIVATE_KEY is required for live trading (or run with -paper)")
			os.Exit(1)
		}
		auth, err := polymarket.NewAuthClient(cfg.Polymarket.CLOBBase, cfg.Polymarket.GammaBase, cfg.Polymarket.PrivateKey)
		if err != nil {
			slog.Error("failed to initialize CLOB auth", "err", err)
			os.Exit(1)
		}
		executor, err = polymarket.NewTradingClient(auth, cfg.Polymarket.RPCURL)
		if err != nil {
			slog.Error("failed to initialize trading client", "err", err)
			os.Exit(1)
		}
	}

	notifier := notify.NewConsole(*table, *paper)

	governor := trader.NewGovernor(trader.GovernorConfig{
		MaxAPIErrors:        cfg.Trading.MaxAPIErrors,
		VolatilityFloor:     cfg.Trading.VolatilityFloor,
		ConfidenceThreshold: cfg.Trading.ConfidenceThreshold,
		EdgeMargin:          cfg.Trading.EdgeMargin,
	}, riskState)

	t := trader.NewTrader(agg, builder, scorer, markets, client, executor, store, notifier, governor, trader.CycleConfig{
		Sizer: domain.SizerConfig{
			KellyFraction:    cfg.Trading.KellyFraction,
			MaxStakeFraction: cfg.Trading.MaxStakeFraction,
		},
		MaxSlippage:  cfg.Trading.MaxSlippage,
		MaxStaleness: cfg.MaxStaleness(),
	})

	sched := trader.NewScheduler(t, trader.SchedulerConfig{
		FireFrom:     cfg.FireFrom(),
		FireUntil:    cfg.FireUntil(),
		PollInterval: time.Second,
		StatsEvery:   cfg.Trading.StatsEvery,
	})

	if *once {
		d := sched.RunOnce(ctx)
		slog.Info("single cycle complete", "window", d.WindowID, "traded", d.Traded(), "skip", d.Skip)
		return
	}

	if err := sched.Run(ctx); err != nil {
		slog.Error("scheduler exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("trader stopped cleanly")
}

// pollOracle consulta el precio de referencia periódicamente y lo inyecta en
// el agregador. El oráculo se desactiva solo tras fallos repetidos, así que
// el loop puede quedarse en marcha sin hacer ruido.
func pollOracle(ctx context.Context, oracle *chainlink.Oracle, agg *candles.Aggregator, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if oracle.Disabled() {
				return
			}
			price, at, err := oracle.LatestPrice(ctx)
			if err != nil {
				slog.Debug("reference price fetch failed", "err", err)
				continue
			}
			agg.OnReference(price, at)
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
