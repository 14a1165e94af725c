package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/funcgen/api/internal/archive"
	"github.com/funcgen/api/internal/config"
	"github.com/funcgen/api/internal/database"
	"github.com/funcgen/api/internal/eventbus"
	"github.com/funcgen/api/internal/handlers"
	"github.com/funcgen/api/internal/metrics"
	"github.com/funcgen/api/internal/middleware"
	"github.com/funcgen/api/internal/oracle"
	"github.com/funcgen/api/internal/orchestration"
	"github.com/funcgen/api/internal/pipeline"
	"github.com/funcgen/api/internal/telemetry"
	"github.com/funcgen/api/internal/verifier"

	_ "github.com/funcgen/api/docs" // Swagger docs
)

// @title Function Generation API
// @version 0.1.0
// @description Generates function implementations from a signature and description using an OpenAI-compatible completion service.
// @host localhost:8080
// @BasePath /
// @schemes http
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	ctx := context.Background()

	cfg := config.Load()

	logger, err := newLogger(cfg.IsProduction())
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger.Info("Function generation API starting...",
		zap.String("version", "0.1.0"),
		zap.String("environment", cfg.Environment),
		zap.String("archive_backend", cfg.ArchiveBackend),
	)

	logger.Info("Initializing telemetry...")
	shutdownTelemetry, err := telemetry.InitTracer(ctx, "funcgen-api", cfg.OTLPEndpoint)
	if err != nil {
		// collector might be down
		logger.Error("failed to initialize telemetry", zap.Error(err))
	} else {
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				logger.Error("failed to shutdown telemetry", zap.Error(err))
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	oracleClient := oracle.New(oracle.Config{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		Model:     cfg.OpenAIModel,
		MaxTokens: cfg.OpenAIMaxTokens,
		Timeout:   cfg.OpenAITimeout,
		RPS:       cfg.OpenAIRPS,
	}, logger)
	if !oracleClient.Configured() {
		logger.Error("OPENAI_API_KEY is not set, generation requests will fail")
	}

	validators := verifier.NewDefaultRegistry()
	logger.Info("Syntax validators registered", zap.Strings("languages", validators.Languages()))

	healthHandler := handlers.NewHealthHandler(oracleClient)

	var sinks []archive.Store
	switch cfg.ArchiveBackend {
	case config.ArchivePostgres:
		logger.Info("Initializing PostgreSQL archive...")
		if cfg.RunMigrations {
			if err := database.RunMigrations(cfg.DatabaseURL, logger); err != nil {
				logger.Error("failed to run migrations", zap.Error(err))
			}
		}
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database, archival disabled", zap.Error(err))
			break
		}
		defer db.Close()
		sinks = append(sinks, archive.NewPostgresStore(db.Pool()))
		healthHandler.AddCheck("database", db.Ping)

	case config.ArchiveSQLite:
		logger.Info("Initializing SQLite archive...", zap.String("path", cfg.SQLitePath))
		db, err := database.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			logger.Error("failed to open sqlite, archival disabled", zap.Error(err))
			break
		}
		defer db.Close() //nolint:errcheck
		sinks = append(sinks, archive.NewSQLiteStore(db))
		healthHandler.AddCheck("database", db.PingContext)

	case config.ArchiveTemporal:
		logger.Info("Initializing Temporal...")
		temporalClient, err := orchestration.InitTemporalClient(cfg.TemporalAddress, logger)
		if err != nil {
			// the API keeps serving when Temporal is down
			logger.Error("failed to connect to temporal, archival disabled", zap.Error(err))
			break
		}
		defer temporalClient.Close()
		sinks = append(sinks, orchestration.NewWorkflowArchiver(temporalClient, cfg.TemporalTaskQueue))
		healthHandler.AddCheck("temporal", func(ctx context.Context) error {
			_, err := temporalClient.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		})

	case config.ArchiveNone:
		logger.Info("Archival disabled")

	default:
		logger.Warn("unknown archive backend, archival disabled", zap.String("backend", cfg.ArchiveBackend))
	}

	if cfg.NATSURL != "" {
		logger.Info("Initializing NATS...")
		nc, err := eventbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", zap.Error(err))
		} else {
			defer func() {
				if err := nc.Drain(); err != nil {
					logger.Error("failed to drain NATS", zap.Error(err))
				}
			}()
			if err := eventbus.EnsureStream(nc.JetStream()); err != nil {
				logger.Error("failed to ensure JetStream stream", zap.Error(err))
			}
			sinks = append(sinks, eventbus.NewGenerationSink(nc.JetStream()))
			healthHandler.AddCheck("nats", func(context.Context) error { return nc.Healthy() })
			logger.Info("connected to NATS")
		}
	}

	dispatcher := archive.NewDispatcher(logger, m, cfg.ArchiveTimeout, sinks...)
	logger.Info("Archive sinks configured", zap.Strings("sinks", dispatcher.Sinks()))

	var limiter middleware.Limiter = middleware.NewPerMinuteLimiter(cfg.RateLimitPerMin)
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis, using in-process rate limiting", zap.Error(err))
		} else {
			defer rdb.Close() //nolint:errcheck
			limiter = middleware.NewRedisLimiter(rdb.Client(), cfg.RateLimitPerMin, time.Minute)
			healthHandler.AddCheck("redis", rdb.Ping)
		}
	}

	generator := pipeline.New(oracleClient, validators, dispatcher, m, logger)
	generatorHandler := handlers.NewGeneratorHandler(generator, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS())

	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", healthHandler.Health)
	router.GET("/health/deep", healthHandler.DeepHealth)
	router.GET("/metrics", m.Handler())

	api := router.Group("/api")
	api.Use(middleware.OptionalAuth(cfg.JWTSecret, logger))
	api.Use(middleware.RateLimit(limiter, logger))
	api.Any("/generator", generatorHandler.Generate)

	srv := newHTTPServer(cfg.Port, router, oracleClient.Timeout())

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("archive writes still in flight at shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}

// newLogger builds the JSON production logger, or the console development
// logger with debug output outside production
func newLogger(production bool) (*zap.Logger, error) {
	zapConfig := zap.NewDevelopmentConfig()
	if production {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	return zapConfig.Build()
}

// newHTTPServer sizes the write deadline from the completion timeout the
// gateway enforces, since a generation may wait that long
func newHTTPServer(port string, handler http.Handler, completionTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: completionTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
