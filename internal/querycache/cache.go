// Package querycache stores raw catalog search results keyed by normalized
// query. All caches are safe for concurrent use and hand out copies.
package querycache

import (
	"context"

	"card-scan-workers/internal/cardmatch"
	"card-scan-workers/internal/common/metrics"
	"card-scan-workers/internal/models"
)

var (
	_ cardmatch.QueryCache = (*MemoryCache)(nil)
	_ cardmatch.QueryCache = (*RedisCache)(nil)
	_ cardmatch.QueryCache = Noop{}
)

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]models.CandidateRecord, bool) { return nil, false }
func (Noop) Set(context.Context, string, []models.CandidateRecord)        {}

func clone(records []models.CandidateRecord) []models.CandidateRecord {
	if records == nil {
		return nil
	}
	out := make([]models.CandidateRecord, len(records))
	copy(out, records)
	for i := range out {
		if out[i].Price != nil {
			p := *out[i].Price
			out[i].Price = &p
		}
	}
	return out
}

func recordLookup(backend string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	metrics.QueryCacheLookups.WithLabelValues(backend, result).Inc()
}
