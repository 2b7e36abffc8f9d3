package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/admin"
	"github.com/alejandrodnm/kalshibot/internal/adapters/coingecko"
	"github.com/alejandrodnm/kalshibot/internal/adapters/kalshi"
	"github.com/alejandrodnm/kalshibot/internal/adapters/noaa"
	"github.com/alejandrodnm/kalshibot/internal/adapters/notify"
	"github.com/alejandrodnm/kalshibot/internal/adapters/storage"
	"github.com/alejandrodnm/kalshibot/internal/executor"
	"github.com/alejandrodnm/kalshibot/internal/ports"
	"github.com/alejandrodnm/kalshibot/internal/risk"
	"github.com/alejandrodnm/kalshibot/internal/scanner"
	"github.com/alejandrodnm/kalshibot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one scan cycle and exit")
	paper := flag.Bool("paper", false, "record trades locally without placing orders")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full signal table each cycle")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *paper {
		cfg.Bot.PaperTrade = true
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	// Subcomando administrativo: no necesita credenciales del exchange.
	if args := flag.Args(); len(args) > 0 && args[0] == "recs" {
		os.Exit(runRecs(cfg, args[1:]))
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	slog.Info("kalshibot starting",
		"config", *configPath,
		"scan_interval", cfg.ScanInterval(),
		"monitor_interval", cfg.MonitorInterval(),
		"paper_trade", cfg.Bot.PaperTrade,
		"once", *once,
	)

	signer, err := buildSigner(cfg.Kalshi)
	if err != nil {
		slog.Error("failed to build request signer", "err", err)
		os.Exit(1)
	}
	exchange, err := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.AccessKey, signer)
	if err != nil {
		slog.Error("failed to create exchange client", "err", err)
		os.Exit(1)
	}
	defer exchange.Close()

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	registry := strategy.NewRegistry(
		strategy.NewBond(strategy.BondConfig{
			MinPrice:  cfg.Strategies.Bond.MinPrice,
			MaxHours:  cfg.Strategies.Bond.MaxHours,
			MinVolume: cfg.Strategies.Bond.MinVolume,
		}),
		strategy.NewMarketMaking(strategy.MarketMakingConfig{
			MinSpread: cfg.Strategies.MarketMaking.MinSpread,
			MinVolume: cfg.Strategies.MarketMaking.MinVolume,
		}),
		strategy.NewCrypto(strategy.CryptoConfig{
			Size:      cfg.Strategies.BTC.Size,
			MinVolume: cfg.Strategies.BTC.MinVolume,
		}, coingecko.NewClient(cfg.Feeds.CoinGeckoBase)),
		strategy.NewWeather(strategy.WeatherConfig{
			Size:      cfg.Strategies.Weather.Size,
			MinVolume: cfg.Strategies.Weather.MinVolume,
		}, noaa.NewClient(cfg.Feeds.NOAABase)),
		strategy.NewNews(strategy.NewsConfig{
			Size: cfg.Strategies.News.Size,
		}),
	)

	exec := executor.New(executor.Deps{
		Exchange:   exchange,
		Store:      store,
		Notifier:   notify.NewTradeLog(),
		PaperTrade: cfg.Bot.PaperTrade,
	})

	scan := scanner.New(scanner.Deps{
		Store:           store,
		Exchange:        exchange,
		Registry:        registry,
		Risk:            risk.NewManager(store),
		Trader:          exec,
		Headlines:       nil, // el clasificador de noticias es un subsistema externo
		Notifier:        notify.NewConsole(*table || cfg.Bot.ConsoleTable),
		InitialBankroll: decimal.NewFromFloat(cfg.Bot.InitialBankroll),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// El venue es la verdad del estado de órdenes; el store local la del
	// bookkeeping. Al arrancar se comparan, las divergencias solo se loguean.
	if !cfg.Bot.PaperTrade {
		reconcilePositions(ctx, exchange, store)
	}

	if *once {
		if err := scan.RunCycle(ctx); err != nil {
			slog.Error("scan cycle failed", "err", err)
			os.Exit(1)
		}
		return
	}

	recs := admin.NewService(store)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		scan.Run(ctx, cfg.ScanInterval())
	}()
	go func() {
		defer wg.Done()
		exec.RunMonitor(ctx, cfg.MonitorInterval())
	}()
	go func() {
		defer wg.Done()
		runExpireJob(ctx, recs)
	}()
	wg.Wait()

	// Apagado: no dejar órdenes de market making en reposo en el venue.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	exec.CancelAllOpenOrders(shutdownCtx)

	slog.Info("kalshibot stopped cleanly")
}

// reconcilePositions compara las posiciones del venue con las del store.
func reconcilePositions(ctx context.Context, exchange ports.Exchange, store ports.Store) {
	venue, err := exchange.GetPositions(ctx)
	if err != nil {
		slog.Warn("startup reconciliation failed", "err", err)
		return
	}
	local, err := store.OpenPositions(ctx)
	if err != nil {
		slog.Warn("startup reconciliation failed", "err", err)
		return
	}
	tracked := make(map[string]bool, len(local))
	for _, p := range local {
		tracked[p.MarketID] = true
	}
	for _, vp := range venue {
		if !tracked[vp.Ticker] {
			slog.Warn("venue position not tracked locally",
				"ticker", vp.Ticker,
				"contracts", vp.Contracts,
				"exposure", vp.Exposure.StringFixed(2))
		}
	}
	slog.Info("positions reconciled", "venue", len(venue), "local", len(local))
}

// runExpireJob caduca recomendaciones pendientes al arrancar y luego una vez
// al día.
func runExpireJob(ctx context.Context, svc *admin.Service) {
	if _, err := svc.ExpireStale(ctx); err != nil {
		slog.Warn("recommendation expiry failed", "err", err)
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.ExpireStale(ctx); err != nil {
				slog.Warn("recommendation expiry failed", "err", err)
			}
		}
	}
}

// runRecs atiende los subcomandos de recomendaciones:
//
//	kalshibot recs list
//	kalshibot recs approve <id>
//	kalshibot recs deny <id> <reason>
//	kalshibot recs expire
func runRecs(cfg *config.Config, args []string) int {
	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		return 1
	}
	defer store.Close()

	ctx := context.Background()
	svc := admin.NewService(store)

	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		pending, err := store.PendingRecommendations(ctx)
		if err != nil {
			slog.Error("failed to list recommendations", "err", err)
			return 1
		}
		if len(pending) == 0 {
			fmt.Println("no pending recommendations")
			return 0
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Key", "Current", "Proposed", "Trigger", "Age")
		for _, rec := range pending {
			table.Append(
				rec.ID.String(),
				rec.SettingKey,
				rec.CurrentValue,
				rec.ProposedValue,
				rec.Trigger,
				time.Since(rec.CreatedAt).Round(time.Hour).String(),
			)
		}
		table.Render()
	case "approve":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: kalshibot recs approve <id>")
			return 2
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid recommendation id:", err)
			return 2
		}
		if err := svc.Approve(ctx, id); err != nil {
			slog.Error("approve failed", "err", err)
			return 1
		}
	case "deny":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: kalshibot recs deny <id> <reason>")
			return 2
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid recommendation id:", err)
			return 2
		}
		if err := svc.Deny(ctx, id, args[2]); err != nil {
			slog.Error("deny failed", "err", err)
			return 1
		}
	case "expire":
		n, err := svc.ExpireStale(ctx)
		if err != nil {
			slog.Error("expire failed", "err", err)
			return 1
		}
		fmt.Printf("expired %d recommendation(s)\n", n)
	default:
		fmt.Fprintln(os.Stderr, "usage: kalshibot recs [list|approve <id>|deny <id> <reason>|expire]")
		return 2
	}
	return 0
}

// buildSigner elige el esquema de firma según las credenciales presentes:
// clave RSA PEM si hay ruta, HMAC sobre el shared secret en otro caso.
func buildSigner(cfg config.KalshiConfig) (kalshi.Signer, error) {
	if cfg.PrivateKeyPath != "" {
		return kalshi.NewRSASignerFromFile(cfg.PrivateKeyPath)
	}
	return kalshi.NewHMACSigner(cfg.APISecret)
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
