package rates

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"ratefeed/internal/logger"
	pkgerrors "ratefeed/pkg/errors"
	"ratefeed/pkg/models"
)

type fakeRepo struct {
	mu         sync.Mutex
	docs       map[string]*RateDocument
	upserts    int
	upsertErrs []error
	listResult []RateDocument
	listErr    error
	countErr   error
	pingErr    error
	indexes    []IndexInfo
	indexErr   error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{docs: make(map[string]*RateDocument)}
}

func (f *fakeRepo) Upsert(ctx context.Context, doc *RateDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.upserts++
	if len(f.upsertErrs) > 0 {
		err := f.upsertErrs[0]
		f.upsertErrs = f.upsertErrs[1:]
		return err
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, id string) (*RateDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("rate snapshot '%s' not found", id))
	}
	return doc, nil
}

func (f *fakeRepo) List(ctx context.Context, limit, offset int) ([]RateDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listResult, nil
}

func (f *fakeRepo) Count(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.docs)), nil
}

func (f *fakeRepo) Indexes(ctx context.Context) ([]IndexInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.indexErr != nil {
		return nil, f.indexErr
	}
	return f.indexes, nil
}

func (f *fakeRepo) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pingErr
}

func usdSnapshot() *models.RateSnapshot {
	return &models.RateSnapshot{
		Base:            "USD",
		Date:            "2025-06-26",
		TimeLastUpdated: 1719360000,
		Rates:           map[string]float64{"EUR": 0.85, "GBP": 0.73},
	}
}

func TestSinkStoreIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	sink := NewSink(repo, logger.NopLogger())
	defer sink.Stop()

	snapshot := usdSnapshot()
	require.NoError(t, sink.Store(context.Background(), snapshot))
	require.NoError(t, sink.Store(context.Background(), snapshot))

	assert.Equal(t, 2, repo.upserts)
	assert.Len(t, repo.docs, 1)

	doc := repo.docs["USD|2025-06-26|1719360000"]
	require.NotNil(t, doc)
	assert.Equal(t, "USD", doc.Base)
	assert.Equal(t, "2025-06-26", doc.ObservedAt)
	assert.Equal(t, int64(1719360000), doc.FetchedAtEpoch)
	assert.InDelta(t, 0.85, doc.Rates["EUR"], 1e-9)
	assert.InDelta(t, 0.73, doc.Rates["GBP"], 1e-9)
}

func TestSinkClassifiesStoreFailures(t *testing.T) {
	tests := []struct {
		name      string
		repoErr   error
		wantCode  string
		wantFatal bool
	}{
		{
			name:     "context deadline is retryable",
			repoErr:  fmt.Errorf("failed to upsert rate document: %w", context.DeadlineExceeded),
			wantCode: pkgerrors.ErrStoreUnavailable.Code,
		},
		{
			name:      "document validation failure is terminal",
			repoErr:   mongo.CommandError{Code: 121, Message: "Document failed validation"},
			wantCode:  pkgerrors.ErrStoreRejected.Code,
			wantFatal: true,
		},
		{
			name: "bad value write error is terminal",
			repoErr: mongo.WriteException{
				WriteErrors: mongo.WriteErrors{{Code: 2, Message: "invalid field"}},
			},
			wantCode:  pkgerrors.ErrStoreRejected.Code,
			wantFatal: true,
		},
		{
			name: "other write errors stay retryable",
			repoErr: mongo.WriteException{
				WriteErrors: mongo.WriteErrors{{Code: 11600, Message: "interrupted"}},
			},
			wantCode: pkgerrors.ErrStoreUnavailable.Code,
		},
		{
			name:     "unknown errors stay retryable",
			repoErr:  stderrors.New("something went sideways"),
			wantCode: pkgerrors.ErrStoreUnavailable.Code,
		},
		{
			name:      "already classified errors pass through",
			repoErr:   pkgerrors.ErrStoreRejected.WithCause(stderrors.New("schema violation")),
			wantCode:  pkgerrors.ErrStoreRejected.Code,
			wantFatal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			repo.upsertErrs = []error{tt.repoErr}
			sink := NewSink(repo, logger.NopLogger())
			defer sink.Stop()

			err := sink.Store(context.Background(), usdSnapshot())

			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tt.wantCode))
			assert.Equal(t, tt.wantFatal, pkgerrors.IsFatal(err))
			assert.Empty(t, repo.docs)
		})
	}
}

func TestSinkStoreRecoversAfterRetryableFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.upsertErrs = []error{mongo.CommandError{Labels: []string{"NetworkError"}, Message: "connection reset"}}
	sink := NewSink(repo, logger.NopLogger())
	defer sink.Stop()

	snapshot := usdSnapshot()

	err := sink.Store(context.Background(), snapshot)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))

	require.NoError(t, sink.Store(context.Background(), snapshot))
	assert.Len(t, repo.docs, 1)
}
