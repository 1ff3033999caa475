package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"VoiceOrder/internal/cache"
	"VoiceOrder/internal/config"
	"VoiceOrder/internal/hub"
	"VoiceOrder/internal/menu"
	"VoiceOrder/internal/nlu"
	"VoiceOrder/internal/order"
	"VoiceOrder/internal/orders"
	"VoiceOrder/internal/payment"
	"VoiceOrder/internal/pricing"
	"VoiceOrder/internal/server"
	"VoiceOrder/internal/session"
	"VoiceOrder/internal/telemetry"
	"VoiceOrder/internal/voiceorder"
)

func main() {
	cfg := config.Default()

	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "NLU backend (ollama|anthropic|openai)")
	flag.StringVar(&cfg.Model, "model", cfg.Model, "Model specification (e.g., llama3:latest)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.Float64Var(&cfg.TaxRate, "tax-rate", cfg.TaxRate, "Sales tax rate")
	flag.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Idle session lifetime (0 disables reaping)")
	flag.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "Realtime heartbeat ping interval")
	flag.DurationVar(&cfg.PongTimeout, "pong-timeout", cfg.PongTimeout, "Realtime client pong timeout")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.Parse()

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger, err := telemetry.InitLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	db, err := telemetry.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	catalog, err := menu.NewSQLCatalog(db, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize menu catalog: %w", err)
	}

	ordersStore, err := orders.NewStore(db, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize order store: %w", err)
	}

	sessions := session.NewStore(logger)
	machine := order.NewMachine(logger)
	pricingSvc := pricing.NewService(decimal.NewFromFloat(cfg.TaxRate))
	interp := nlu.NewLLMInterpreter(cfg, logger, tracer, meter)
	replies := cache.New(5 * time.Minute)
	h := hub.New(logger, ordersStore)
	h.PingInterval = cfg.PingInterval
	h.PongTimeout = cfg.PongTimeout

	svc := voiceorder.New(sessions, catalog, machine, pricingSvc, interp, replies, ordersStore, h, logger, tracer, meter)
	processor := payment.NewStripeProcessor(logger, tracer, meter)
	bridge := payment.NewBridge(sessions, pricingSvc, processor, ordersStore, logger)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(svc, bridge, ordersStore, h, logger).Handler(),
	}

	logger.Info("starting voiceorder",
		"listen", cfg.ListenAddr,
		"backend", cfg.Backend,
		"model", cfg.Model,
		"tax_rate", cfg.TaxRate)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		h.RunHeartbeat(ctx)
		return nil
	})

	g.Go(func() error {
		sessions.RunReaper(ctx, time.Minute, cfg.SessionTTL)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("voiceorder stopped")
	return nil
}
