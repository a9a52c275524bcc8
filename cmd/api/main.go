package main

// @title Brokerdesk API
// @version 1.0
// @description Lead intake and broker rotation for the brokerage site.

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/brokerdesk/config"
	apierrors "github.com/jordanlanch/brokerdesk/pkg/api/errors"
	"github.com/jordanlanch/brokerdesk/pkg/api/handlers"
	"github.com/jordanlanch/brokerdesk/pkg/cache"
	"github.com/jordanlanch/brokerdesk/pkg/database"
	"github.com/jordanlanch/brokerdesk/pkg/email"
	"github.com/jordanlanch/brokerdesk/pkg/jobs"
	"github.com/jordanlanch/brokerdesk/pkg/leadassignment"
	"github.com/jordanlanch/brokerdesk/pkg/leads"
	"github.com/jordanlanch/brokerdesk/pkg/ledger"
	"github.com/jordanlanch/brokerdesk/pkg/logger"
	"github.com/jordanlanch/brokerdesk/pkg/metrics"
	custommiddleware "github.com/jordanlanch/brokerdesk/pkg/middleware"
	"github.com/jordanlanch/brokerdesk/pkg/phone"
	"github.com/jordanlanch/brokerdesk/pkg/profiles"
	"github.com/jordanlanch/brokerdesk/pkg/roster"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	appLogger := logger.New(cfg.LogLevel)
	apierrors.SetLogger(appLogger)

	// Initialize Sentry for error tracking
	sentryEnabled := false
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 0.2,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			sentryEnabled = true
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	// Initialize database
	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Printf("✅ Database ready (driver: %s)", db.Dialect())

	// Redis is optional; without it the roster listing is read from the database
	var redisClient *cache.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Printf("✅ Redis cache connected")
	} else {
		log.Printf("ℹ️  Redis disabled (no REDIS_URL configured)")
	}

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New()
	log.Printf("✅ Prometheus metrics initialized")

	// Services
	profileService := profiles.NewService(db)
	rosterService := roster.NewService(db, profileService)
	rosterAdmin := roster.NewAdmin(rosterService, profileService, redisClient, prometheusMetrics, appLogger)
	ledgerService := ledger.NewService(db)
	leadService := leads.NewService(db, phone.NewNormalizer(cfg.DefaultPhoneRegion), prometheusMetrics, appLogger)
	emailService := email.NewService(cfg.EmailFrom, cfg.EmailFromName, cfg.FrontendURL, cfg.SendGridAPIKey, appLogger)

	// Assignment engine
	engine := leadassignment.NewService(
		leadassignment.NewSQLStore(db, cfg.AssignmentLockTimeout),
		prometheusMetrics,
		appLogger,
	)
	engine.OnAssigned(func(ctx context.Context, _ *leadassignment.Result) {
		rosterAdmin.Invalidate(ctx)
	})
	engine.OnAssigned(emailService.AssignmentHook(profileService, 10*time.Second))

	// Background assignment
	dispatcher := jobs.NewDispatcher(engine, jobs.DispatcherConfig{
		Workers:     cfg.DispatcherWorkers,
		QueueSize:   cfg.DispatcherQueueSize,
		MaxAttempts: cfg.DispatcherMaxAttempts,
		TaskTimeout: cfg.DispatcherTaskTimeout,
	}, prometheusMetrics, appLogger)
	dispatcher.Start()
	leadService.SetDispatcher(dispatcher)

	dispatchErrorsDone := make(chan struct{})
	go func() {
		defer close(dispatchErrorsDone)
		for dispatchErr := range dispatcher.Errors() {
			appLogger.Error("lead assignment failed", "lead_id", dispatchErr.LeadID,
				"attempts", dispatchErr.Attempts, "error", dispatchErr.Err)
			if sentryEnabled {
				sentry.CaptureException(dispatchErr)
			}
		}
	}()

	sweeper := jobs.NewSweeper(leadService, dispatcher, cfg.SweeperGracePeriod, prometheusMetrics, appLogger)
	if err := sweeper.Schedule(cfg.SweeperSchedule); err != nil {
		log.Fatalf("❌ Failed to schedule pending lead sweep: %v", err)
	}
	sweeper.Start()
	log.Printf("✅ Dispatcher (%d workers) and sweeper (%s) started", cfg.DispatcherWorkers, cfg.SweeperSchedule)

	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	go reportDBStats(statsCtx, db, prometheusMetrics)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	defer globalRateLimiter.Stop()
	intakeRateLimiter := custommiddleware.NewRateLimiter(cfg.LeadIntakeRateLimitPerMinute, cfg.LeadIntakeRateLimitBurst)
	defer intakeRateLimiter.Stop()

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			appLogger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if sentryEnabled {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.CORSAllowedOrigins)))
	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.SecurityHeadersConfig{}))
	e.Use(globalRateLimiter.Middleware())

	e.GET("/health", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		status := map[string]any{"status": "healthy", "database": "up"}
		if err := db.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "database": "down"})
		}
		if redisClient != nil {
			if err := redisClient.Redis.Ping(ctx).Err(); err != nil {
				// the cache is optional, so a down Redis only degrades
				status["status"] = "degraded"
				status["cache"] = "down"
			} else {
				status["cache"] = "up"
			}
		}
		return c.JSON(http.StatusOK, status)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	registerRoutes(e, routeHandlers{
		lead:       handlers.NewLeadHandler(leadService),
		assignment: handlers.NewLeadAssignmentHandler(engine, leadService, ledgerService),
		roster:     handlers.NewRosterHandler(rosterAdmin, ledgerService),
		ledger:     handlers.NewLedgerHandler(ledgerService, profileService),
		profile:    handlers.NewProfileHandler(rosterAdmin),
	}, cfg.JWTSecret, intakeRateLimiter)

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 Brokerdesk API starting on %s", address)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d), lead intake: %d req/min (burst: %d)",
		cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst, cfg.LeadIntakeRateLimitPerMinute, cfg.LeadIntakeRateLimitBurst)
	log.Printf("🔒 Assignment lock timeout: %s", cfg.AssignmentLockTimeout)

	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// stop intake first so no new tasks reach the dispatcher
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	<-sweeper.Stop().Done()
	log.Println("✅ Sweeper stopped")

	if err := dispatcher.Stop(ctx); err != nil {
		log.Printf("⚠️  Dispatcher stopped before draining: %v", err)
	}
	<-dispatchErrorsDone
	log.Println("✅ Dispatcher drained")

	log.Println("✅ Server gracefully stopped")
}

func openDatabase(cfg *config.Config) (*database.Client, error) {
	if cfg.DBDriver == "sqlite3" {
		return database.NewClient("sqlite3", database.BuildSQLiteDSN(cfg.DatabaseURL, cfg.AssignmentLockTimeout))
	}

	sslCfg := &database.SSLConfig{
		Mode:         cfg.DBSSLMode,
		CertPath:     cfg.DBSSLCertPath,
		KeyPath:      cfg.DBSSLKeyPath,
		RootCertPath: cfg.DBSSLRootCertPath,
	}
	return database.NewClientWithPoolAndSSL("postgres", cfg.DatabaseURL, database.DefaultPoolConfig(), sslCfg)
}

func reportDBStats(ctx context.Context, db *database.Client, m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateDBConnections(float64(db.Stats().OpenConnections))
		}
	}
}
