package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ruralpay/ledger/internal/audit"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/database"
	"github.com/ruralpay/ledger/internal/handlers"
	"github.com/ruralpay/ledger/internal/ledger"
	"github.com/ruralpay/ledger/internal/logging"
	mW "github.com/ruralpay/ledger/internal/middleware"
	promcollector "github.com/ruralpay/ledger/internal/metrics/prometheus"
	"github.com/ruralpay/ledger/internal/services"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Metrics
	registry := prometheus.NewRegistry()
	collector := promcollector.NewPrometheusCollector("ledger")
	if err := collector.Register(registry); err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Storage
	var store ledger.Store
	var db *sql.DB
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory store; balances are lost on restart")
		store = database.NewMemoryStore()
	default:
		db, err = database.InitDB(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		logger.Info("Database connection established")
		store = database.NewPostgresStore(db)
	}
	store = database.NewResilientStore(cfg.Storage.Driver, store, cfg.Breaker, collector, logger)

	// Transfer feed
	var publisher services.TransferPublisher
	if cfg.Redis.Enabled {
		redisClient, err := database.InitRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("Redis connection failed, continuing without transfer feed", zap.Error(err))
		} else {
			defer redisClient.Close()
			publisher = database.NewRedisPublisher(redisClient, cfg.Redis.ListKey)
			logger.Info("Redis connection established")
		}
	}

	// Ledger services
	auditLogger := audit.NewAuditLogger(logger)
	ledgerService := services.NewLedgerService(
		services.NewAccountRegistry(store, auditLogger, collector),
		services.NewTransferEngine(store, cfg.Ledger.BankAccountID, auditLogger, collector, publisher, logger),
		services.NewBalanceProjector(store),
		services.NewHistoryAggregator(store, cfg.Ledger.HistoryDefaultLimit, cfg.Ledger.HistoryMaxLimit),
		cfg.Ledger,
		logger,
	)
	if err := ledgerService.Bootstrap(ctx); err != nil {
		logger.Fatal("Failed to bootstrap ledger", zap.Error(err))
	}
	ledgerHandler := handlers.NewLedgerHandler(ledgerService, logger)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy"}
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				status["status"] = "degraded"
			}
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Debug("failed to write health response", zap.Error(err))
		}
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", ledgerHandler.Routes)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
