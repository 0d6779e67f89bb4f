package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ratefeed/internal/config"
	"ratefeed/internal/constants"
	"ratefeed/pkg/errors"
	"ratefeed/pkg/metrics"
	"ratefeed/pkg/models"
	"ratefeed/pkg/tracing"
)

// Source produces the current rate snapshot from the upstream feed.
type Source interface {
	Fetch(ctx context.Context) (*models.RateSnapshot, error)
}

type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(cfg config.SourceConfig) *HTTPSource {
	timeout := cfg.TimeoutSeconds * time.Second
	if timeout <= 0 {
		timeout = constants.DefaultFetchTimeout
	}

	return &HTTPSource{
		url: cfg.URL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: tracing.Transport(nil),
		},
	}
}

// Fetch performs one GET against the feed and validates the decoded payload.
// Every failure mode maps to FETCH_ERROR, callers log and move on.
func (s *HTTPSource) Fetch(ctx context.Context) (*models.RateSnapshot, error) {
	start := time.Now()
	snapshot, err := s.fetch(ctx)
	duration := time.Since(start)

	if err != nil {
		metrics.RatesFetchTotal.WithLabelValues("error").Inc()
		metrics.ObserveFetchDuration(duration, "error")
		return nil, err
	}

	metrics.RatesFetchTotal.WithLabelValues("success").Inc()
	metrics.ObserveFetchDuration(duration, "success")
	return snapshot, nil
}

func (s *HTTPSource) fetch(ctx context.Context) (*models.RateSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.ErrFetch.WithCause(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.ErrFetch.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, errors.ErrFetch.WithDetail("message", fmt.Sprintf("source returned status %d", resp.StatusCode))
	}

	var snapshot models.RateSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, errors.ErrFetch.WithCause(err)
	}

	if err := models.ValidateRateSnapshot(&snapshot); err != nil {
		return nil, errors.ErrFetch.WithCause(err)
	}

	return &snapshot, nil
}
