package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"ratefeed/internal/broker"
	"ratefeed/internal/config"
	"ratefeed/internal/constants"
	"ratefeed/internal/logger"
	"ratefeed/internal/rates"
	"ratefeed/pkg/bootstrap"
	pkgerrors "ratefeed/pkg/errors"
	"ratefeed/pkg/health"
	"ratefeed/pkg/logging"
	"ratefeed/pkg/metrics"
	"ratefeed/pkg/migrations"
	"ratefeed/pkg/models"
	"ratefeed/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	mongoClient    *mongo.Client
	sink           *rates.Sink
	trigger        *rates.Trigger
	topic          string
	tracerProvider *tracing.Provider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("ingest-service")
	}
	return &App{
		Base: bootstrap.NewBase(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	a.topic = a.Config.Broker.Kafka.Topic
	if a.topic == "" {
		a.topic = constants.DefaultRatesTopic
	}

	if err := a.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := a.InitBroker("ingest-service"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	source := rates.NewHTTPSource(a.Config.Source)
	a.trigger = rates.NewTrigger(source, a.Producer, a.topic, a.Logger)

	tp, err := tracing.Setup(ctx, a.Config.Tracing, "ingest-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterIngestMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initStore(ctx context.Context) error {
	mongoClient, err := bootstrap.ConnectMongo(ctx, a.Config.Database.MongoDB)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient
	a.Logger.InfowCtx(ctx, "MongoDB connected")

	dbName := a.Config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	collection := a.Config.Database.MongoDB.Collection
	if collection == "" {
		collection = constants.DefaultRatesCollection
	}

	db := mongoClient.Database(dbName)
	if err := migrations.EnsureRateStore(ctx, db, collection); err != nil {
		return fmt.Errorf("failed to ensure rate store indexes: %w", err)
	}

	baseRepo := rates.NewRepository(db, collection)

	var repo rates.Repository
	if a.Config.CircuitBreaker.Enabled {
		repo = rates.NewCircuitBreakerRepository(baseRepo, a.Config.CircuitBreaker)
		initCtx := logging.WithServiceName(ctx, "ingest-service")
		a.Logger.InfowCtx(initCtx, "Circuit breaker enabled for rates repository")
	} else {
		repo = baseRepo
	}

	a.sink = rates.NewSink(repo, a.Logger)
	return nil
}

func (a *App) initHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	healthRegistry := health.NewRegistry()
	if a.mongoClient != nil {
		healthRegistry.Add("mongodb", health.MongoProbe(a.mongoClient))
	}
	if a.Config.Broker.Type == "kafka" {
		healthRegistry.Add("kafka", health.KafkaProbe(a.Config.Broker.Kafka.Brokers))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Run(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: mux,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		// ListenAndServe does not watch the group context, without this the
		// group would never unblock once the consumer stops.
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		// The startup publish is best effort. Its failure is logged and the
		// pipeline keeps consuming whatever is already on the topic.
		triggerCtx := logging.WithServiceName(gCtx, "ingest-service")
		if err := a.trigger.Run(triggerCtx); err != nil {
			a.Logger.WarnwCtx(triggerCtx, "Startup trigger failed, pipeline continues",
				"error", err,
			)
		}
		return nil
	})

	g.Go(func() error {
		return a.Consumer.Consume(gCtx, a.topic, a.handleSnapshot)
	})

	return g.Wait()
}

func (a *App) handleSnapshot(ctx context.Context, msg broker.Message) error {
	snapshot, err := models.DecodeSnapshot(msg.Value)
	if err != nil {
		metrics.SnapshotsConsumedTotal.WithLabelValues(metrics.ConsumeResultDecodeFailed).Inc()
		return pkgerrors.ErrDecode.WithCause(err)
	}

	if err := a.sink.Store(ctx, snapshot); err != nil {
		if pkgerrors.IsFatal(err) {
			metrics.SnapshotsConsumedTotal.WithLabelValues(metrics.ConsumeResultDropped).Inc()
		}
		return err
	}

	metrics.SnapshotsConsumedTotal.WithLabelValues(metrics.ConsumeResultStored).Inc()
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "ingest-service")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down ingest service")

	return a.Base.Shutdown(ctx, func(ctx context.Context) error {
		var errs []error

		if a.sink != nil {
			a.sink.Stop()
		}

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, bootstrap.DisconnectMongo(ctx, a.mongoClient))

		return errors.Join(errs...)
	})
}
