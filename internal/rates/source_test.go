package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratefeed/internal/config"
	pkgerrors "ratefeed/pkg/errors"
)

func TestHTTPSourceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"base":"USD","date":"2025-06-26","time_last_updated":1719360000,"rates":{"EUR":0.85,"GBP":0.73}}`))
	}))
	defer srv.Close()

	source := NewHTTPSource(config.SourceConfig{URL: srv.URL, TimeoutSeconds: 5})
	snapshot, err := source.Fetch(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "USD|2025-06-26|1719360000", snapshot.IdentityKey())
	assert.InDelta(t, 0.85, snapshot.Rates["EUR"], 1e-9)
	assert.InDelta(t, 0.73, snapshot.Rates["GBP"], 1e-9)
}

func TestHTTPSourceFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "upstream error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"base": "USD", "rates": `))
			},
		},
		{
			name: "payload fails validation",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"base":"","date":"2025-06-26","time_last_updated":1719360000,"rates":{"EUR":0.85}}`))
			},
		},
		{
			name: "empty rates",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"base":"USD","date":"2025-06-26","time_last_updated":1719360000,"rates":{}}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			source := NewHTTPSource(config.SourceConfig{URL: srv.URL, TimeoutSeconds: 5})
			_, err := source.Fetch(context.Background())

			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrFetch.Code))
			assert.True(t, pkgerrors.IsRetryable(err))
		})
	}
}

func TestHTTPSourceFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	source := NewHTTPSource(config.SourceConfig{URL: srv.URL, TimeoutSeconds: 1})
	_, err := source.Fetch(context.Background())

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrFetch.Code))
}
