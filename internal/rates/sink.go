package rates

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"ratefeed/internal/constants"
	"ratefeed/internal/logger"
	pkgerrors "ratefeed/pkg/errors"
	"ratefeed/pkg/metrics"
	"ratefeed/pkg/models"
	"ratefeed/pkg/tracing"
)

// Mongo server error codes that mark a document the store will never accept.
const (
	mongoCodeBadValue          = 2
	mongoCodeDocValidationFail = 121
)

// Sink writes snapshots into the rates collection. Store is idempotent, the
// document _id is the snapshot identity key so redelivery replaces instead of
// duplicating.
type Sink struct {
	repo        Repository
	logger      logger.Logger
	cancelGauge context.CancelFunc
}

func NewSink(repo Repository, log logger.Logger) *Sink {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Sink{
		repo:        repo,
		logger:      log,
		cancelGauge: cancel,
	}

	go s.updateStoredSnapshotsGauge(ctx)

	return s
}

// Store upserts one snapshot. Nil means the message can be acknowledged;
// a returned error carries the retryable or terminal classification the
// consumer gates its commit on.
func (s *Sink) Store(ctx context.Context, snapshot *models.RateSnapshot) error {
	ctx, span := tracing.Tracer("rates-sink").Start(ctx, "sink.store")
	defer span.End()

	doc := NewRateDocument(snapshot)

	writeCtx, cancel := context.WithTimeout(ctx, constants.StoreWriteTimeout)
	defer cancel()

	start := time.Now()
	err := s.repo.Upsert(writeCtx, doc)
	duration := time.Since(start)

	if err != nil {
		classified := classifyStoreError(err)
		status := metrics.StoreStatusRetryable
		if pkgerrors.IsFatal(classified) {
			status = metrics.StoreStatusTerminal
		}
		metrics.SinkStoreTotal.WithLabelValues(status).Inc()
		metrics.ObserveSinkStoreDuration(duration, status)
		s.logger.ErrorwCtx(ctx, "Failed to store rate snapshot",
			"error", classified,
			"snapshot_key", doc.ID,
			"classification", status,
		)
		return classified
	}

	metrics.SinkStoreTotal.WithLabelValues(metrics.StoreStatusUpserted).Inc()
	metrics.ObserveSinkStoreDuration(duration, metrics.StoreStatusUpserted)
	s.logger.InfowCtx(ctx, "Rate snapshot stored",
		"snapshot_key", doc.ID,
		"base", doc.Base,
		"rates", len(doc.Rates),
	)

	return nil
}

// classifyStoreError splits store failures into retryable and terminal.
// Unknown errors stay retryable, wrongly dropping a message is worse than
// redelivering it.
func classifyStoreError(err error) error {
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return err
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return pkgerrors.ErrStoreUnavailable.WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.ErrStoreUnavailable.WithCause(err)
	}

	var marshalErr mongo.MarshalError
	if errors.As(err, &marshalErr) {
		return pkgerrors.ErrStoreRejected.WithCause(err)
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.HasErrorCode(mongoCodeBadValue) || serverErr.HasErrorCode(mongoCodeDocValidationFail) {
			return pkgerrors.ErrStoreRejected.WithCause(err)
		}
	}

	return pkgerrors.ErrStoreUnavailable.WithCause(err)
}

// updateStoredSnapshotsGauge periodically refreshes the stored-documents
// gauge from the collection count.
func (s *Sink) updateStoredSnapshotsGauge(ctx context.Context) {
	ticker := time.NewTicker(constants.DocumentGaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			countCtx, cancel := context.WithTimeout(ctx, constants.StoreQueryTimeout)
			count, err := s.repo.Count(countCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.DebugwCtx(ctx, "Failed to count stored snapshots for metrics",
					"error", err,
				)
				continue
			}
			metrics.SetStoredSnapshots(count)
		case <-ctx.Done():
			return
		}
	}
}

// Stop terminates the background gauge updater.
func (s *Sink) Stop() {
	s.cancelGauge()
}
