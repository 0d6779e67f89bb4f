package models

import (
	"fmt"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateRateSnapshot rejects snapshots that cannot be identified or carry
// no rates. A snapshot that fails here is malformed, not merely empty.
func ValidateRateSnapshot(s *RateSnapshot) error {
	if s == nil {
		return &ValidationError{
			Field:   "snapshot",
			Message: "rate snapshot cannot be nil",
		}
	}

	if s.Base == "" {
		return &ValidationError{
			Field:   "base",
			Message: "base currency is required",
		}
	}

	if _, err := time.Parse("2006-01-02", s.Date); err != nil {
		return &ValidationError{
			Field:   "date",
			Message: "date must be formatted as YYYY-MM-DD",
		}
	}

	if s.TimeLastUpdated <= 0 {
		return &ValidationError{
			Field:   "time_last_updated",
			Message: "time_last_updated must be a positive epoch timestamp",
		}
	}

	if len(s.Rates) == 0 {
		return &ValidationError{
			Field:   "rates",
			Message: "rates cannot be empty",
		}
	}

	return nil
}
