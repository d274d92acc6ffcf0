package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"price_digest/config"
	"price_digest/middleware"
	"price_digest/models"
	"price_digest/routes"
	"price_digest/scheduler"
	"price_digest/services/aggregator"
	"price_digest/services/archive"
	"price_digest/services/datafetcher"
	"price_digest/services/dispatcher"
	"price_digest/services/mailer"
	"price_digest/services/persister"
	"price_digest/services/report"
	"price_digest/services/roster"
	"price_digest/services/tokens"
)

// Unsubscribe links stay valid long enough to cover an inbox backlog
const unsubscribeTokenTTL = 90 * 24 * time.Hour

// runTimeout bounds a scheduled or -once digest run
const runTimeout = 30 * time.Minute

func main() {
	once := flag.Bool("once", false, "run a single digest and exit")
	backfill := flag.String("backfill", "", "comma-separated CoinGecko ids to backfill, then exit")
	days := flag.Int("days", 365, "days of history to backfill")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Logger error: %v", err)
	}
	defer logger.Sync()

	universe, err := config.LoadUniverse(cfg.UniverseFile)
	if err != nil {
		logger.Fatal("universe load failed", zap.Error(err))
	}

	db, err := config.InitDB()
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	if err := runMigrations(db); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}
	logger.Info("database ready", zap.String("driver", cfg.DBDriver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{}
	coinGecko := datafetcher.NewCoinGecko(datafetcher.CoinGeckoConfig{
		Endpoint: cfg.CoinGeckoEndpoint,
		APIKey:   cfg.CoinGeckoAPIKey,
		Timeout:  cfg.FetchTimeout,
	}, httpClient, logger)
	store := persister.New(db, logger)

	if *backfill != "" {
		ids := splitIDs(*backfill)
		if err := runBackfill(ctx, coinGecko, store, ids, *days, logger); err != nil {
			logger.Fatal("backfill failed", zap.Error(err))
		}
		return
	}

	tradingView, err := datafetcher.NewTradingView(datafetcher.TradingViewConfig{
		Endpoint: cfg.RapidAPIEndpoint,
		APIKey:   cfg.RapidAPIKey,
		Host:     cfg.RapidAPIHost,
		Columns:  universe.IndexColumns,
		Timeout:  cfg.FetchTimeout,
	}, universe.Indices, httpClient, logger)
	if err != nil {
		logger.Fatal("index source misconfigured", zap.Error(err))
	}

	agg := aggregator.New(aggregator.Options{
		Crypto:     coinGecko,
		Index:      tradingView,
		Global:     coinGecko,
		IndexDelay: cfg.IndexRequestDelay,
		Logger:     logger,
	})

	var signer *tokens.Signer
	if cfg.UnsubscribeSecret != "" {
		signer, err = tokens.NewSigner(cfg.UnsubscribeSecret, unsubscribeTokenTTL)
		if err != nil {
			logger.Fatal("unsubscribe signer failed", zap.Error(err))
		}
	} else {
		logger.Warn("UNSUBSCRIBE_SECRET not set, digests go out without one-click unsubscribe links")
	}

	builderCfg := report.Config{
		Benchmark:      universe.Benchmark,
		Indices:        universe.IndexIDs(),
		Aliases:        universe.Aliases,
		PreferencesURL: cfg.PreferencesURL,
	}
	if signer != nil {
		builderCfg.UnsubscribeURL = func(email string) (string, error) {
			token, err := signer.Sign(email)
			if err != nil {
				return "", err
			}
			return cfg.PublicBaseURL + "/unsubscribe?token=" + token, nil
		}
	}

	sender := mailer.NewSMTPMailer(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, logger)

	var runArchive *archive.RunArchive
	if cfg.MongoURI != "" {
		runArchive = archive.NewRunArchive(cfg.MongoURI, cfg.MongoDatabase, logger)
		if err := runArchive.Connect(ctx); err != nil {
			logger.Warn("run archive unavailable", zap.Error(err))
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			runArchive.Close(closeCtx)
		}()
	}

	dispatchOpts := dispatcher.Options{
		Universe:        universe,
		Aggregator:      agg,
		Store:           store,
		Roster:          buildRoster(cfg, db, httpClient, logger),
		Builder:         report.NewBuilder(builderCfg),
		Sender:          sender,
		MailConcurrency: cfg.MailConcurrency,
		Logger:          logger,
	}
	if runArchive != nil && runArchive.IsConfigured() {
		dispatchOpts.Recorder = runArchive
	}
	digest := dispatcher.New(dispatchOpts)

	if *once {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		defer cancel()
		summary, err := digest.Run(runCtx)
		if err != nil {
			logger.Error("digest run failed", zap.String("run_id", summary.RunID), zap.Error(err))
			os.Exit(1)
		}
		return
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	limiter := middleware.NewRateLimiter(5, 15*time.Minute, 15*time.Minute)
	limiter.StartCleanup(ctx, 5*time.Minute)

	deps := routes.Dependencies{
		DB:          db,
		Logger:      logger,
		FormLimiter: limiter,
		LastRun:     digest,
	}
	if signer != nil {
		deps.Tokens = signer
	}
	if runArchive != nil {
		deps.Runs = runArchive
		deps.Archive = runArchive
	}
	routes.SetupRoutes(router, deps)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	jobScheduler := scheduler.NewScheduler(digest, runTimeout, logger)
	if err := jobScheduler.Start(cfg.DigestTime); err != nil {
		logger.Fatal("scheduler failed", zap.Error(err))
	}

	<-ctx.Done()
	gracefulShutdown(server, jobScheduler, db, logger)
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB) error {
	if err := models.MigrateAssetModels(db); err != nil {
		return err
	}
	return models.MigrateSubscriberModels(db)
}

// buildRoster picks the subscriber source named by ROSTER_SOURCE
func buildRoster(cfg *config.Config, db *gorm.DB, client *http.Client, logger *zap.Logger) roster.Roster {
	if cfg.RosterSource == config.RosterSheety {
		return roster.NewSheetyRoster(cfg.SheetyUsersEndpoint, cfg.SheetyBearer, cfg.FetchTimeout, client, logger)
	}
	return roster.NewDBRoster(db)
}

func splitIDs(s string) []models.InstrumentID {
	var ids []models.InstrumentID
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, models.InstrumentID(strings.ToLower(id)))
		}
	}
	return ids
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler, db *gorm.DB, logger *zap.Logger) {
	logger.Info("shutting down")

	// Stop scheduler first
	jobScheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
		logger.Info("database connection closed")
	}

	logger.Info("server shutdown completed")
}
