package rates

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratefeed/internal/config"
	pkgerrors "ratefeed/pkg/errors"
)

func trippingBreakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  1,
	}
}

func TestCircuitBreakerRepositoryDisabledPassesThrough(t *testing.T) {
	inner := newFakeRepo()
	rawErr := stderrors.New("write failed")
	inner.upsertErrs = []error{rawErr}

	repo := NewCircuitBreakerRepository(inner, config.CircuitBreakerConfig{Enabled: false})

	err := repo.Upsert(context.Background(), &RateDocument{ID: "USD|2025-06-26|1719360000"})
	require.ErrorIs(t, err, rawErr)
	assert.Equal(t, "disabled", repo.State())
	assert.False(t, repo.IsOpen())

	require.NoError(t, repo.Upsert(context.Background(), &RateDocument{ID: "USD|2025-06-26|1719360000"}))
	assert.Equal(t, 2, inner.upserts)
}

func TestCircuitBreakerRepositoryOpensAfterFailures(t *testing.T) {
	inner := newFakeRepo()
	inner.upsertErrs = []error{stderrors.New("write failed")}

	repo := NewCircuitBreakerRepository(inner, trippingBreakerConfig())

	doc := &RateDocument{ID: "USD|2025-06-26|1719360000"}

	err := repo.Upsert(context.Background(), doc)
	require.Error(t, err)

	// The breaker tripped on the first failure, the store is no longer hit.
	err = repo.Upsert(context.Background(), doc)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrStoreUnavailable.Code))
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.True(t, repo.IsOpen())
	assert.Equal(t, 1, inner.upserts)
}

func TestCircuitBreakerRepositoryReadsBypassBreaker(t *testing.T) {
	inner := seededRepo()
	inner.upsertErrs = []error{stderrors.New("write failed")}

	repo := NewCircuitBreakerRepository(inner, trippingBreakerConfig())

	require.Error(t, repo.Upsert(context.Background(), &RateDocument{ID: "x"}))
	assert.True(t, repo.IsOpen())

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	doc, err := repo.Get(context.Background(), "USD|2025-06-26|1719360000")
	require.NoError(t, err)
	assert.Equal(t, "USD", doc.Base)
}
