package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/auth"
	"github.com/velocityiq/velocityiq-engine/pkg/cache"
	"github.com/velocityiq/velocityiq-engine/pkg/config"
	"github.com/velocityiq/velocityiq-engine/pkg/database"
	"github.com/velocityiq/velocityiq-engine/pkg/forecaster"
	"github.com/velocityiq/velocityiq-engine/pkg/handlers"
	"github.com/velocityiq/velocityiq-engine/pkg/logging"
	"github.com/velocityiq/velocityiq-engine/pkg/middleware"
	"github.com/velocityiq/velocityiq-engine/pkg/notify"
	"github.com/velocityiq/velocityiq-engine/pkg/repositories"
	"github.com/velocityiq/velocityiq-engine/pkg/scheduler"
	"github.com/velocityiq/velocityiq-engine/pkg/services"
	"github.com/velocityiq/velocityiq-engine/ui"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if it exists (local development convenience)
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("pipeline_enabled", cfg.Forecaster.PipelineEnabled()),
		zap.Int("scheduler_interval_minutes", cfg.Scheduler.IntervalMinutes),
		zap.Bool("kafka_publishing", cfg.Kafka.PublishingEnabled()),
		zap.Bool("insights_digest", cfg.Insights.DigestEnabled()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to Postgres and bring the schema up to date
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Could not run migrations", zap.Error(err))
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	// Optional Redis response cache; a nil client always misses
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info("Connected to Redis", zap.String("host", cfg.Redis.Host))
	}
	responseCache := cache.New(redisClient, time.Duration(cfg.Dashboard.CacheTTLSeconds)*time.Second, logger)

	// Repositories
	productRepo := repositories.NewProductRepository(db)
	txnRepo := repositories.NewTransactionRepository(db)
	forecastRepo := repositories.NewForecastRepository(db)
	alertRepo := repositories.NewAlertRepository(db)

	// Inference client; without an endpoint the pipeline is disabled but the
	// dashboard still serves stored forecasts
	var forecastClient forecaster.ForecastClient
	if cfg.Forecaster.PipelineEnabled() {
		forecastClient, err = forecaster.NewClient(&cfg.Forecaster, logger)
		if err != nil {
			logger.Fatal("Could not create forecast client", zap.Error(err))
		}
	} else {
		logger.Warn("No forecast endpoint configured, pipeline disabled")
		forecastClient = forecaster.NewDisabled(cfg.Forecaster.ModelVersion)
	}

	// Event sinks: websocket hub always, Kafka when brokers are configured
	hub := handlers.NewHub(cfg.Dashboard.AllowedOrigins, logger)
	sinks := notify.Fanout{hub}
	kafkaPublisher, err := notify.NewKafkaPublisher(&cfg.Kafka, logger)
	if err != nil {
		logger.Fatal("Could not create Kafka publisher", zap.Error(err))
	}
	if kafkaPublisher != nil {
		sinks = append(sinks, kafkaPublisher)
		logger.Info("Connected to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// Services
	thresholds := services.ResolveThresholds(&cfg.Thresholds)
	alertEngine := services.NewAlertEngine(alertRepo, thresholds, logger)
	forecastService := services.NewForecastService(
		productRepo, txnRepo, forecastRepo, alertEngine,
		forecastClient, sinks, responseCache, &cfg.Forecaster, thresholds, logger)
	dashboardService := services.NewDashboardService(
		productRepo, txnRepo, forecastRepo, alertRepo, forecastService,
		sinks, responseCache, &cfg.Dashboard, &cfg.Scheduler, thresholds, logger)
	insightsService := services.NewInsightsService(dashboardService, &cfg.Insights, logger)

	// Scheduler drives the pipeline when an endpoint is configured
	sched := scheduler.NewScheduler(forecastService, time.Duration(cfg.Scheduler.IntervalMinutes)*time.Minute, logger)
	if cfg.Forecaster.PipelineEnabled() {
		sched.Start(ctx)
	}

	// Auth middleware
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Could not create JWKS client", zap.Error(err))
	}
	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewDashboardHandler(dashboardService, insightsService, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewForecastHandler(forecastService, logger).RegisterRoutes(mux, authMiddleware)
	hub.RegisterRoutes(mux, authMiddleware)

	// Serve the embedded dashboard UI
	distFS, err := fs.Sub(ui.DistFS(), "dist")
	if err != nil {
		logger.Fatal("Could not open embedded UI", zap.Error(err))
	}
	mux.Handle("GET /app/", http.StripPrefix("/app/", http.FileServer(http.FS(distFS))))

	handler := middleware.CORS(cfg.Dashboard.AllowedOrigins)(middleware.RequestLogger(logger)(mux))

	// No blanket read/write deadlines: the event stream holds its socket open
	// and a manual pipeline run can legitimately take minutes.
	srv := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("Starting velocityiq-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != ""))

		var serveErr error
		if cfg.TLSCertPath != "" {
			serveErr = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(serveErr))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop new work first, then drop long-lived websocket connections so
	// Shutdown only has to drain plain requests.
	sched.Stop()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	if kafkaPublisher != nil {
		kafkaPublisher.Close()
	}

	logger.Info("Server stopped")
}
