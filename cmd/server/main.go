package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/tradejournal/internal/auth"
	"github.com/ksred/tradejournal/internal/config"
	"github.com/ksred/tradejournal/internal/database"
	"github.com/ksred/tradejournal/internal/docstore"
	"github.com/ksred/tradejournal/internal/journal"
	"github.com/ksred/tradejournal/internal/types"
	"github.com/ksred/tradejournal/pkg/middleware"
)

// setupLogging configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func setupLogging(cfg *config.AppConfig) {
	if !cfg.IsProduction() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the journal API server with graceful shutdown support
// It opens both stores, sets up services and API routes, and starts the
// background session reaper
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize relational store (identities and sessions)
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize document store (trades)
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	docs, err := docstore.Connect(connectCtx, docstore.ConnectOptions{
		URI:      cfg.Docstore.URI,
		Database: cfg.Docstore.Database,
		Retries:  cfg.Docstore.ConnectRetries,
	})
	if err == nil {
		err = docstore.EnsureTenantIndex(connectCtx, docs, journal.TradesCollection)
	}
	connectCancel()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize document store")
	}

	// Initialize services and handlers
	authService := auth.NewService(db, auth.Options{
		JWTSecret:         cfg.Auth.JWTSecret,
		TokenTTL:          cfg.Auth.TokenTTL,
		SessionTTL:        cfg.Auth.SessionTTL,
		PasswordMinLength: cfg.Auth.PasswordMinLength,
	})
	authHandlers := auth.NewGinHandlers(authService, cfg.Auth.SecureCookies)

	trades := docstore.NewRepository[types.Trade](docs, journal.TradesCollection)
	journalService := journal.NewService(trades, journal.NewValidator(cfg.Vocabulary), nil)
	journalHandlers := journal.NewGinHandlers(journalService)

	// Background workers stop when the server shuts down
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go auth.NewSessionReaper(authService, cfg.Auth.SessionSweep).Start(workerCtx)
	go middleware.StartVisitorCleanup(workerCtx)

	// Initialize router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics())
	router.Use(middleware.SessionResolver(authService), middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, authHandlers, journalHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		zlog.Info().Str("port", cfg.Port).Msg("Starting journal server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")
	workerCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := docs.Close(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("Failed to close document store")
	}
	if err := database.Close(db); err != nil {
		zlog.Error().Err(err).Msg("Failed to close database")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: public registration, login and token endpoints
// - Profile and trade routes: require a session cookie or bearer token
// - Operational routes: health and metrics
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	journalHandlers *journal.GinHandlers,
) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", authHandlers.RegisterHandler())
			authRoutes.POST("/login", authHandlers.LoginHandler())
			authRoutes.POST("/logout", authHandlers.LogoutHandler())
			authRoutes.POST("/token", authHandlers.GenerateTokenHandler())
		}

		me := v1.Group("/auth/me")
		me.Use(middleware.RequireAuth())
		{
			me.GET("", authHandlers.MeHandler())
			me.PATCH("", authHandlers.UpdateProfileHandler())
		}

		// Trade routes
		trades := v1.Group("/trades")
		trades.Use(middleware.RequireAuth())
		{
			trades.POST("", journalHandlers.CreateTradeHandler())
			trades.GET("", journalHandlers.ListTradesHandler())
			trades.GET("/:trade_id", journalHandlers.GetTradeHandler())
			trades.PUT("/:trade_id", journalHandlers.UpdateTradeHandler())
			trades.DELETE("/:trade_id", journalHandlers.DeleteTradeHandler())
		}

		v1.GET("/vocabulary", journalHandlers.VocabularyHandler())
	}
}
