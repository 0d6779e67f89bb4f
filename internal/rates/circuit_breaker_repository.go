package rates

import (
	"context"

	"ratefeed/internal/config"
	"ratefeed/pkg/circuitbreaker"
	pkgerrors "ratefeed/pkg/errors"
)

// CircuitBreakerRepository gates the write path behind a breaker so a dying
// store sheds load instead of absorbing timed-out upserts. Reads bypass the
// breaker, they are not on the ingest path. A breaker-open rejection is
// retryable, the consumer keeps holding the offset until the store recovers.
type CircuitBreakerRepository struct {
	repo    Repository
	breaker *circuitbreaker.Breaker
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo}
	}

	settings := circuitbreaker.DefaultSettings("mongo-rates")
	if cfg.MaxRequests > 0 {
		settings.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		settings.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		settings.Timeout = cfg.Timeout
	}
	if cfg.MinRequests > 0 {
		settings.MinRequests = cfg.MinRequests
	}
	if cfg.FailureRatio > 0 {
		settings.FailureRatio = cfg.FailureRatio
	}

	return &CircuitBreakerRepository{
		repo:    repo,
		breaker: circuitbreaker.New(settings),
	}
}

func (r *CircuitBreakerRepository) Upsert(ctx context.Context, doc *RateDocument) error {
	if r.breaker == nil {
		return r.repo.Upsert(ctx, doc)
	}

	err := r.breaker.Do(ctx, func() error {
		return r.repo.Upsert(ctx, doc)
	})
	if err != nil && circuitbreaker.Rejected(err) {
		return pkgerrors.ErrStoreUnavailable.WithCause(err).WithDetail("message", "circuit breaker is open for mongo-rates")
	}
	return err
}

func (r *CircuitBreakerRepository) State() string {
	if r.breaker == nil {
		return "disabled"
	}
	return r.breaker.State()
}

func (r *CircuitBreakerRepository) IsOpen() bool {
	if r.breaker == nil {
		return false
	}
	return r.breaker.Open()
}

func (r *CircuitBreakerRepository) Get(ctx context.Context, id string) (*RateDocument, error) {
	return r.repo.Get(ctx, id)
}

func (r *CircuitBreakerRepository) List(ctx context.Context, limit, offset int) ([]RateDocument, error) {
	return r.repo.List(ctx, limit, offset)
}

func (r *CircuitBreakerRepository) Count(ctx context.Context) (int64, error) {
	return r.repo.Count(ctx)
}

func (r *CircuitBreakerRepository) Indexes(ctx context.Context) ([]IndexInfo, error) {
	return r.repo.Indexes(ctx)
}

func (r *CircuitBreakerRepository) Ping(ctx context.Context) error {
	return r.repo.Ping(ctx)
}
