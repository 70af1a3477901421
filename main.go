package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/quantfolio/backend/src/config"
	"github.com/username/quantfolio/backend/src/database"
	"github.com/username/quantfolio/backend/src/handlers"
	"github.com/username/quantfolio/backend/src/logger"
	"github.com/username/quantfolio/backend/src/services"
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
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
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
	logger.L.Info("Quantfolio backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing report cache...")
	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	logger.L.Info("Report cache initialized.")

	logger.L.Info("Initializing services and handlers...")
	strategyService := services.NewLoaderService(config.Cfg, reportCache)
	portfolioService := services.NewPortfolioService(config.Cfg.TargetDrawdown)

	strategyHandler := handlers.NewStrategyHandler(strategyService)
	portfolioHandler := handlers.NewPortfolioHandler(strategyService, portfolioService)
	uploadHandler := handlers.NewUploadHandler(strategyService)
	reportHandler := handlers.NewReportHandler(config.Cfg.ReportHTMLPath)
	dbHandler := handlers.NewDBHandler()

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("GET /api/strategies", strategyHandler.HandleGetStrategies)
	apiRouter.HandleFunc("GET /api/strategies/{magicNumber}", strategyHandler.HandleGetStrategy)
	apiRouter.HandleFunc("POST /api/strategies/refresh", strategyHandler.HandleRefresh)
	apiRouter.HandleFunc("POST /api/strategies/{magicNumber}/name", uploadHandler.HandleSetStrategyName)

	apiRouter.HandleFunc("POST /api/portfolio", portfolioHandler.HandleAggregate)

	apiRouter.HandleFunc("POST /api/upload/backtest", uploadHandler.HandleUploadBacktest)
	apiRouter.HandleFunc("POST /api/upload/forward", uploadHandler.HandleUploadForward)
	apiRouter.HandleFunc("POST /api/upload/strategy", uploadHandler.HandleUploadStrategy)

	apiRouter.HandleFunc("GET /api/reports/{magicNumber}", reportHandler.HandleGetReport)
	apiRouter.HandleFunc("GET /api/reports/images/{filename}", reportHandler.HandleGetReportImage)

	apiRouter.HandleFunc("GET /api/db/strategies", dbHandler.HandleListSnapshots)
	apiRouter.HandleFunc("POST /api/db/strategies", dbHandler.HandleUpsertStrategyName)
	apiRouter.HandleFunc("DELETE /api/db/strategies/{id}", dbHandler.HandleDeleteSnapshot)
	apiRouter.HandleFunc("GET /api/db/portfolios", dbHandler.HandleListPortfolios)
	apiRouter.HandleFunc("POST /api/db/portfolios", dbHandler.HandleCreatePortfolio)
	apiRouter.HandleFunc("GET /api/db/portfolios/{id}", dbHandler.HandleGetPortfolio)
	apiRouter.HandleFunc("PUT /api/db/portfolios/{id}", dbHandler.HandleUpdatePortfolio)
	apiRouter.HandleFunc("DELETE /api/db/portfolios/{id}", dbHandler.HandleDeletePortfolio)
	apiRouter.HandleFunc("POST /api/db/portfolios/{id}/strategies", dbHandler.HandleSetPortfolioStrategies)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Quantfolio Backend is running"})
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

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
