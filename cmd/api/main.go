package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/tmcferran/rangerider/Internal/broker"
	datafeed "github.com/tmcferran/rangerider/Internal/database"
	"github.com/tmcferran/rangerider/Internal/logger"
	"github.com/tmcferran/rangerider/Internal/utils/config"
	"github.com/tmcferran/rangerider/cmd/api/internal"
)

// Read-only dashboard over the trade ledger, plus a small set of
// token-protected controls. Runs alongside the trading process and
// shares its database.
func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../../.env")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Setup(cfg.Logging)

	if err := datafeed.InitDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer datafeed.CloseDatabase()

	// The API stays useful without broker credentials, it just loses
	// the equity readout and the manual close route.
	var b *broker.Broker
	b, err = broker.NewFromEnv()
	if err != nil {
		log.Warnf("Broker unavailable, manual close disabled: %v", err)
		b = nil
	}

	apiServer := &internal.API{
		Broker:     b,
		JWTManager: internal.NewJWTManager(),
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(internal.CorsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := datafeed.HealthCheck(); err != nil {
			internal.WriteError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		internal.WriteJSON(w, http.StatusOK, "healthy")
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// Public routes
	r.Get("/api/positions", apiServer.HandleGetPositions)
	r.Get("/api/trades", apiServer.HandleGetTrades)
	r.Get("/api/trades/{id}", apiServer.HandleGetTradeByID)
	r.Get("/api/stats", apiServer.HandleGetStats)
	r.Get("/api/signals/performance", apiServer.HandleSignalPerformance)
	r.Get("/api/risk", apiServer.HandleGetRiskStatus)
	r.Post("/api/token", apiServer.HandleGenerateToken)

	// Token-protected controls
	r.Group(func(r chi.Router) {
		r.Use(internal.JWTAuthMiddleware(apiServer.JWTManager))
		r.Post("/api/trades/{id}/stop", apiServer.HandleUpdateStop)
		r.Post("/api/flatten", apiServer.HandleFlatten)
		r.Delete("/api/positions/{contract}", apiServer.HandleClosePosition)
	})

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}

	log.Infof("Starting API server on :%s", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal(err)
	}
}
