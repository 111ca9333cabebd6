package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/tmcferran/rangerider/Internal/broker"
	datafeed "github.com/tmcferran/rangerider/Internal/database"
	"github.com/tmcferran/rangerider/Internal/logger"
	"github.com/tmcferran/rangerider/Internal/marketdata"
	"github.com/tmcferran/rangerider/Internal/strategy/session"
	"github.com/tmcferran/rangerider/Internal/utils/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found, using environment as-is")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Setup(cfg.Logging)

	if err := datafeed.InitDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer datafeed.CloseDatabase()

	b, err := broker.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize broker: %v", err)
	}
	if _, err := b.Equity(); err != nil {
		log.Fatalf("Broker credential check failed: %v", err)
	}

	cache := marketdata.NewCache(time.Duration(cfg.Options.CacheTTLSecs) * time.Second)
	provider := marketdata.NewProvider(cache)

	stream := marketdata.NewStream([]string{cfg.Symbol})
	provider.AttachStream(stream)

	clock, err := session.NewClock(
		cfg.Session.Timezone,
		cfg.Session.Open,
		cfg.Session.RangeEnd,
		cfg.Session.EntryCutoff,
		cfg.Session.TightenAfter,
		cfg.Session.Close,
		cfg.Session.FlattenLeadMins,
	)
	if err != nil {
		log.Fatalf("Bad session configuration: %v", err)
	}

	runner := session.NewRunner(cfg, clock, provider, b, datafeed.NewStore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go stream.Run(ctx)

	go func() {
		addr := os.Getenv("METRICS_ADDR")
		if addr == "" {
			addr = ":9100"
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warnf("Metrics listener stopped: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.WithField("signal", s.String()).Info("Shutdown signal received")
		cancel()
	}()

	if err := runner.Run(ctx); err != nil {
		log.Fatalf("Session loop failed: %v", err)
	}
	log.Info("👋 Bot stopped")
}
