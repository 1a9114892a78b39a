// Command strangler runs the end-of-day short strangle entry pipeline once
// across the configured symbols.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quaxel/eodstrangle/internal/calendar"
	"github.com/quaxel/eodstrangle/internal/config"
	"github.com/quaxel/eodstrangle/internal/dashboard"
	"github.com/quaxel/eodstrangle/internal/gateway"
	"github.com/quaxel/eodstrangle/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Optional .env for local secrets like the gateway api key.
	_ = godotenv.Load()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	client := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey).
		WithTimeout(cfg.GatewayTimeout())
	if d := cfg.GatewaySettleDelay(); d >= 0 {
		client.WithSettleDelay(d)
	}
	gw := gateway.NewCircuitBreakerGateway(client)

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		logger.Fatalf("Failed to open attempt log: %v", err)
	}

	cal := calendar.New(cfg.Location(), cfg.Schedule.Holidays,
		cfg.Schedule.FOMCDates, cfg.Schedule.CPIDates)

	pipeline := NewPipeline(cfg, gw, store, cal, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.NewServer(dashboard.Config{Addr: cfg.Dashboard.Addr},
			store, newLogrus(cfg.Environment.LogLevel))
		go func() {
			if err := dash.Start(); err != nil {
				logger.Printf("Dashboard stopped: %v", err)
			}
		}()
	}

	mode := "paper"
	if !cfg.IsPaperTrading() {
		mode = "live"
	}
	logger.Printf("Running strangle pipeline in %s mode across %d symbols", mode, len(cfg.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range cfg.Symbols {
		sym := sym
		g.Go(func() error {
			// One symbol failing must not cancel its siblings; failures
			// are logged and already sit in the attempt log.
			if err := pipeline.RunSymbol(gctx, sym); err != nil {
				logger.Printf("Entry failed: %v", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Printf("Pipeline error: %v", err)
	}

	if dash != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dash.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Dashboard shutdown: %v", err)
		}
	}
	logger.Printf("Done")
}

func newLogrus(level string) *logrus.Logger {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return l
}
