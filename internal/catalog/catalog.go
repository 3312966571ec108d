// Package catalog holds the reference catalog backends used by the matcher.
package catalog

import (
	"context"
	"errors"
	"time"

	apperrors "card-scan-workers/internal/common/errors"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/common/metrics"
	"card-scan-workers/internal/models"
)

// Searcher is implemented by every backend in this package.
type Searcher interface {
	Search(ctx context.Context, query models.CatalogQuery) ([]models.CandidateRecord, error)
}

// Instrumented records latency and failures per backend and normalizes
// backend errors to StandardError.
type Instrumented struct {
	name  string
	inner Searcher
	log   logger.Logger
}

// Instrument wraps s with metrics and error normalization.
func Instrument(name string, s Searcher, log logger.Logger) *Instrumented {
	return &Instrumented{
		name:  name,
		inner: s,
		log:   log.WithFields(map[string]interface{}{"backend": name}),
	}
}

func (i *Instrumented) Search(ctx context.Context, query models.CatalogQuery) ([]models.CandidateRecord, error) {
	start := time.Now()
	records, err := i.inner.Search(ctx, query)
	metrics.CatalogSearchDuration.WithLabelValues(i.name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CatalogSearchFailures.WithLabelValues(i.name).Inc()
		err = i.normalize(err)
		i.log.Debug("catalog search failed", map[string]interface{}{
			"level": string(query.Level),
			"error": err.Error(),
		})
		return nil, err
	}
	return records, nil
}

func (i *Instrumented) normalize(err error) error {
	if _, ok := apperrors.AsStandardError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewSearchTimeoutError(i.name, err)
	}
	return apperrors.NewSearchUnavailableError(i.name, err)
}

func limitOr(limit, fallback int) int {
	if limit > 0 {
		return limit
	}
	return fallback
}
