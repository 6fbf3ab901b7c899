package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/config"
	"github.com/dafibh/fortuna/lending-backend/internal/handler"
	"github.com/dafibh/fortuna/lending-backend/internal/middleware"
	"github.com/dafibh/fortuna/lending-backend/internal/repository/postgres"
	"github.com/dafibh/fortuna/lending-backend/internal/service"
	"github.com/dafibh/fortuna/lending-backend/internal/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Connect to database; the pool size also bounds the refresh fan-out
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid DATABASE_URL")
	}
	poolConfig.MaxConns = cfg.DBMaxConns

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Int32("max_conns", cfg.DBMaxConns).Msg("Connected to database")

	store := postgres.NewStore(pool)

	// Event hub for contract notifications
	hub := websocket.NewHub()

	// Initialize services
	clock := service.NewClock(cfg.Location)
	contractService := service.NewContractService(store, clock, log.Logger)
	contractService.SetEventPublisher(hub)
	debtStatusService := service.NewDebtStatusService(store, contractService, log.Logger)

	worker, err := service.NewDebtStatusWorker(debtStatusService, log.Logger, service.DebtStatusWorkerConfig{
		Schedule:   cfg.DebtStatus.Cron,
		Location:   cfg.Location,
		RunOnStart: cfg.DebtStatus.RunOnStart,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create debt status worker")
	}

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	worker.Start(workerCtx)

	// Initialize handlers
	rateLimiter := middleware.NewRateLimiter(cfg.OpsRateLimitPerMinute, middleware.DefaultBurstSize)
	defer rateLimiter.Stop()

	healthHandler := handler.NewHealthHandler(store, worker)
	debtStatusHandler := handler.NewDebtStatusHandler(worker)
	wsHandler := handler.NewWebSocketHandler(hub, cfg.CORSOrigins)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestID())

	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		MaxAge:       86400,
	}))

	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	e.Use(middleware.RequestLogger())
	e.Use(echomiddleware.Recover())

	handler.RegisterRoutes(e, rateLimiter, healthHandler, debtStatusHandler, wsHandler)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Str("timezone", cfg.Timezone).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// let an in-flight refresh finish before the pool closes
	worker.Stop()
	hub.CloseAll()

	log.Info().Msg("Server exited")
}
