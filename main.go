package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/smalcash/backend/src/cart"
	"github.com/smalcash/backend/src/catalog"
	"github.com/smalcash/backend/src/config"
	"github.com/smalcash/backend/src/database"
	"github.com/smalcash/backend/src/handlers"
	"github.com/smalcash/backend/src/ledger"
	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/remote"
	"github.com/smalcash/backend/src/security"
	"github.com/smalcash/backend/src/services"
	syncengine "github.com/smalcash/backend/src/sync"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("SmalCash register backend starting...",
		"vendorID", config.Cfg.VendorID, "registerID", config.Cfg.RegisterID)

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing services and handlers...")
	authService, err := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.AdminPIN)
	if err != nil {
		logger.L.Error("Failed to initialize auth service", "error", err)
		os.Exit(1)
	}
	alertService := services.NewAlertService()

	remoteClient := remote.NewClient(config.Cfg.RemoteBaseURL, config.Cfg.RemoteTimeout)
	saleLedger := ledger.New(database.DB)
	catalogService := catalog.NewService(database.DB, remoteClient, config.Cfg.CatalogCacheTTL)
	checkoutService := services.NewCheckoutService(saleLedger,
		config.Cfg.VendorID, config.Cfg.RegisterID, config.Cfg.OperatorName)

	engine := syncengine.NewEngine(saleLedger, remoteClient, alertService,
		config.Cfg.SyncInterval, config.Cfg.SyncBackoffMin, config.Cfg.SyncBackoffMax)

	registerCart := cart.New()

	adminHandler := handlers.NewAdminHandler(authService, config.Cfg.RegisterID)
	catalogHandler := handlers.NewCatalogHandler(catalogService, config.Cfg.VendorID)
	cartHandler := handlers.NewCartHandler(registerCart, catalogService, checkoutService,
		config.Cfg.VendorID, engine.TriggerNow)
	reportHandler := handlers.NewReportHandler(saleLedger, config.Cfg.VendorID)
	syncHandler := handlers.NewSyncHandler(engine, saleLedger)

	// First run on a disconnected kiosk still needs something to sell.
	if err := catalogService.Seed(config.Cfg.VendorID); err != nil {
		logger.L.Warn("Demo catalog seed failed", "error", err)
	}

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	adminOnly := handlers.AdminMiddleware(authService)

	apiRouter.HandleFunc("POST /api/admin/login", adminHandler.HandleAdminLogin)

	apiRouter.HandleFunc("GET /api/catalog", catalogHandler.HandleGetCatalog)
	apiRouter.HandleFunc("POST /api/catalog/refresh", catalogHandler.HandleRefreshCatalog)

	apiRouter.HandleFunc("GET /api/cart", cartHandler.HandleGetCart)
	apiRouter.HandleFunc("POST /api/cart/items", cartHandler.HandleAddItem)
	apiRouter.HandleFunc("DELETE /api/cart/items/{itemID}", cartHandler.HandleRemoveOne)
	apiRouter.HandleFunc("DELETE /api/cart", cartHandler.HandleClearCart)
	apiRouter.HandleFunc("POST /api/checkout", cartHandler.HandleCheckout)

	apiRouter.HandleFunc("GET /api/reports/daily",
		handlers.WithOptionalAdmin(authService, reportHandler.HandleGetDailyTotals))
	apiRouter.HandleFunc("GET /api/reports/items", adminOnly(reportHandler.HandleGetItemBreakdown))
	apiRouter.HandleFunc("GET /api/sales/rejected", adminOnly(reportHandler.HandleGetRejectedSales))

	apiRouter.HandleFunc("GET /api/sync/status", syncHandler.HandleGetStatus)
	apiRouter.HandleFunc("POST /api/sync/run", syncHandler.HandleRunNow)
	apiRouter.HandleFunc("GET /api/sync/unsynchronized/stream", syncHandler.HandleUnsyncedStream)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "SmalCash register backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go engine.Run(ctx)

	go func() {
		<-ctx.Done()
		logger.L.Info("Shutdown signal received, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.L.Error("Server shutdown failed", "error", err)
		}
	}()

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
