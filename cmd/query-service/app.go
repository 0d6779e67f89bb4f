package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"

	"ratefeed/internal/config"
	"ratefeed/internal/constants"
	"ratefeed/internal/logger"
	"ratefeed/internal/rates"
	"ratefeed/pkg/bootstrap"
	"ratefeed/pkg/health"
	"ratefeed/pkg/metrics"
	"ratefeed/pkg/middleware"
	"ratefeed/pkg/ratelimit"
	"ratefeed/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	mongoClient    *mongo.Client
	tracerProvider *tracing.Provider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("query-service")
	}
	return &App{
		config: cfg,
		logger: log,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Setup(ctx, a.config.Tracing, "query-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	a.mongoClient, err = bootstrap.ConnectMongo(ctx, a.config.Database.MongoDB)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	a.logger.InfowCtx(ctx, "MongoDB connected")

	metrics.RegisterQueryMetrics()

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.buildRouter(),
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.Middleware("query-service"))
	}
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(a.logger))

	if rl := a.config.Query.RateLimit; rl.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			RPS:             rl.RPS,
			Burst:           rl.Burst,
			CleanupInterval: time.Duration(rl.CleanupIntervalSeconds) * time.Second,
			MaxAge:          time.Duration(rl.MaxAgeSeconds) * time.Second,
		})
		router.Use(limiter.Middleware())
		a.logger.Infow("Rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}

	dbName := a.config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	collection := a.config.Database.MongoDB.Collection
	if collection == "" {
		collection = constants.DefaultRatesCollection
	}

	repo := rates.NewRepository(a.mongoClient.Database(dbName), collection)
	handler := rates.NewHandler(repo, a.config.Database.MongoDB, a.logger)
	handler.RegisterRoutes(router)

	probes := health.NewRegistry()
	probes.Add("mongodb", health.MongoProbe(a.mongoClient))
	router.GET("/health", healthHandler(probes))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return router
}

func healthHandler(probes *health.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := probes.Run(c.Request.Context())
		status := http.StatusOK
		if report.Status == health.StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

// Run serves until ctx is canceled, then drains the server and releases the
// tracer and store connections before returning.
func (a *App) Run(ctx context.Context) error {
	serverDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.logger.ErrorwCtx(ctx, "Server drain failed", "error", err)
			}
		case <-serverDone:
		}
	}()

	a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
	err := a.server.ListenAndServe()
	close(serverDone)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return a.close(ctx)
}

func (a *App) close(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down")

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(closeCtx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	errs = append(errs, bootstrap.DisconnectMongo(closeCtx, a.mongoClient))

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}

	a.logger.InfowCtx(ctx, "Server exited cleanly")
	return nil
}
