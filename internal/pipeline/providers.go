package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/MarcelCutts/home-finder-sub001/internal/models"
	"github.com/MarcelCutts/home-finder-sub001/internal/store"
)

// Scraper supplies one run's raw listings. Implementations own all
// platform-specific fetching and parsing.
type Scraper interface {
	Scrape(ctx context.Context) ([]models.RawListing, error)
}

// Enricher fetches the full detail page for a property. A nil error settles
// the axis; wrap transient failures with Retryable so the attempt stays
// pending, anything else marks the property permanently failed.
type Enricher interface {
	Enrich(ctx context.Context, p models.CanonicalProperty) (*store.Enrichment, error)
}

// Analyzer produces an opaque quality payload for a property. Errors degrade
// the property instead of blocking it.
type Analyzer interface {
	Analyze(ctx context.Context, p models.CanonicalProperty) (json.RawMessage, error)
}

// Notifier delivers one new-property notification.
type Notifier interface {
	Notify(ctx context.Context, p models.CanonicalProperty) error
}

// RetryableError marks an enrichment failure as transient.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps an error so the enrichment stage records a retryable
// attempt rather than a permanent failure.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err is marked transient.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
