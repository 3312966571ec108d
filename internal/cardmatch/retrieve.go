package cardmatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/common/metrics"
	"card-scan-workers/internal/models"
)

const (
	defaultSearchTimeout = 5 * time.Second
	defaultMaxCandidates = 250
)

// CatalogSearcher returns catalog records matching the non-empty fields of
// a query. Implementations bound the result size.
type CatalogSearcher interface {
	Search(ctx context.Context, query models.CatalogQuery) ([]models.CandidateRecord, error)
}

// QueryCache stores raw search results by query key. Implementations must be
// safe for concurrent use and must not share slices with callers.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]models.CandidateRecord, bool)
	Set(ctx context.Context, key string, records []models.CandidateRecord)
}

// Options tunes a Retriever. Zero values select defaults.
type Options struct {
	Levels              []models.QueryLevel
	Thresholds          Thresholds
	SearchTimeout       time.Duration
	MaxCandidates       int
	MinNumberOnlyLength int
}

// LevelTrace records one attempted or skipped level.
type LevelTrace struct {
	Level       models.QueryLevel
	Skipped     bool
	FromCache   bool
	SearchError string
	Retrieved   int
	Verdict     Verdict
}

// Result is the outcome of one retrieval. Level is the accepting level, or
// the last attempted level on rejection. It is empty when every level was
// skipped.
type Result struct {
	Verdict Verdict
	Level   models.QueryLevel
	Trace   []LevelTrace
}

// Retriever runs the progressive query relaxation loop.
type Retriever struct {
	searcher CatalogSearcher
	cache    QueryCache
	opts     Options
	log      logger.Logger
	tracer   trace.Tracer
}

// NewRetriever builds a Retriever. A nil cache disables caching.
func NewRetriever(searcher CatalogSearcher, cache QueryCache, opts Options, log logger.Logger) *Retriever {
	if len(opts.Levels) == 0 {
		opts.Levels = append([]models.QueryLevel(nil), models.DefaultQueryLevels...)
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = defaultSearchTimeout
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = defaultMaxCandidates
	}
	if opts.MinNumberOnlyLength <= 0 {
		opts.MinNumberOnlyLength = 1
	}
	opts.Thresholds = opts.Thresholds.withDefaults()
	if cache == nil {
		cache = noCache{}
	}

	return &Retriever{
		searcher: searcher,
		cache:    cache,
		opts:     opts,
		log:      log.WithFields(map[string]interface{}{"component": "retriever"}),
		tracer:   otel.Tracer("card-scan-workers/cardmatch"),
	}
}

// Thresholds returns the effective acceptance rules.
func (r *Retriever) Thresholds() Thresholds {
	return r.opts.Thresholds
}

// Levels returns the effective level order.
func (r *Retriever) Levels() []models.QueryLevel {
	return append([]models.QueryLevel(nil), r.opts.Levels...)
}

// Retrieve tries each configured level in order and stops at the first
// accepted verdict. Search failures degrade a level to no candidates. The
// only error returned is the context error when the caller cancels.
func (r *Retriever) Retrieve(ctx context.Context, extraction models.RawExtraction) (Result, error) {
	extraction = extraction.Trimmed()
	var (
		trail     []LevelTrace
		attempted = -1
	)

	for _, level := range r.opts.Levels {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		query, ok := r.buildQuery(level, extraction)
		if !ok {
			trail = append(trail, LevelTrace{
				Level:   level,
				Skipped: true,
				Verdict: reject(ReasonNoCandidates, nil, r.opts.Thresholds.DebugTopN, "required fields missing"),
			})
			r.log.Debug("query level skipped", map[string]interface{}{"level": string(level)})
			continue
		}

		lt, err := r.runLevel(ctx, query, extraction)
		if err != nil {
			return Result{}, err
		}
		trail = append(trail, lt)
		attempted = len(trail) - 1
		metrics.LevelVerdicts.WithLabelValues(string(level), verdictLabel(lt.Verdict)).Inc()

		if lt.Verdict.Accepted {
			r.log.Info("card accepted", map[string]interface{}{
				"level":  string(level),
				"cardId": lt.Verdict.Candidate.CardID,
				"score":  lt.Verdict.TotalScore,
			})
			return Result{Verdict: lt.Verdict, Level: level, Trace: trail}, nil
		}
	}

	if attempted < 0 {
		r.log.Info("no query level could run", map[string]interface{}{"levels": len(trail)})
		return Result{
			Verdict: reject(ReasonNoCandidates, nil, r.opts.Thresholds.DebugTopN, "every level skipped: required fields missing"),
			Trace:   trail,
		}, nil
	}

	last := trail[attempted]
	r.log.Info("card rejected", map[string]interface{}{
		"level":     string(last.Level),
		"reason":    string(last.Verdict.Reason),
		"bestScore": last.Verdict.BestScore(),
	})
	return Result{Verdict: last.Verdict, Level: last.Level, Trace: trail}, nil
}

func (r *Retriever) runLevel(ctx context.Context, query models.CatalogQuery, extraction models.RawExtraction) (LevelTrace, error) {
	ctx, span := r.tracer.Start(ctx, "cardmatch.level", trace.WithAttributes(
		attribute.String("level", string(query.Level)),
	))
	defer span.End()

	lt := LevelTrace{Level: query.Level}
	records, fromCache, err := r.fetch(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, "cancelled")
			return LevelTrace{}, ctxErr
		}
		span.RecordError(err)
		r.log.Warn("catalog search failed", map[string]interface{}{
			"level": string(query.Level),
			"error": err.Error(),
		})
		lt.SearchError = err.Error()
		lt.Verdict = reject(ReasonNoCandidates, nil, r.opts.Thresholds.DebugTopN, "search unavailable: "+err.Error())
		return lt, nil
	}

	lt.FromCache = fromCache
	lt.Retrieved = len(records)
	lt.Verdict = Validate(Rank(extraction, records), extraction, r.opts.Thresholds)

	span.SetAttributes(
		attribute.Int("candidates", len(records)),
		attribute.Bool("cache_hit", fromCache),
		attribute.String("verdict", verdictLabel(lt.Verdict)),
	)
	r.log.Debug("query level evaluated", map[string]interface{}{
		"level":      string(query.Level),
		"candidates": len(records),
		"fromCache":  fromCache,
		"verdict":    verdictLabel(lt.Verdict),
		"bestScore":  lt.Verdict.BestScore(),
	})
	return lt, nil
}

func (r *Retriever) fetch(ctx context.Context, query models.CatalogQuery) ([]models.CandidateRecord, bool, error) {
	key := query.Key()
	if records, ok := r.cache.Get(ctx, key); ok {
		return records, true, nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
	defer cancel()

	records, err := r.searcher.Search(searchCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, false, fmt.Errorf("search timed out after %s: %w", r.opts.SearchTimeout, err)
		}
		return nil, false, err
	}
	if len(records) > r.opts.MaxCandidates {
		records = records[:r.opts.MaxCandidates]
	}

	r.cache.Set(ctx, key, records)
	return records, false, nil
}

// buildQuery returns the query for level, or false when the extraction lacks
// a field the level requires.
func (r *Retriever) buildQuery(level models.QueryLevel, ext models.RawExtraction) (models.CatalogQuery, bool) {
	q := models.CatalogQuery{Level: level, Limit: r.opts.MaxCandidates}
	hasName := ext.Name != ""
	hasNumber := ext.CardNumber != ""
	hasSet := ext.SetName != ""

	switch level {
	case models.QueryLevelFull:
		if !hasName || !hasNumber || !hasSet {
			return q, false
		}
		q.Name, q.CardNumber, q.SetName = ext.Name, ext.CardNumber, ext.SetName
	case models.QueryLevelNoSet:
		if !hasName || !hasNumber {
			return q, false
		}
		q.Name, q.CardNumber = ext.Name, ext.CardNumber
	case models.QueryLevelNumberOnly:
		if len([]rune(NormalizeNumber(ext.CardNumber))) < r.opts.MinNumberOnlyLength {
			return q, false
		}
		q.CardNumber = ext.CardNumber
	case models.QueryLevelNameSet:
		if !hasName || !hasSet {
			return q, false
		}
		q.Name, q.SetName = ext.Name, ext.SetName
	case models.QueryLevelNameOnly:
		if !hasName {
			return q, false
		}
		q.Name = ext.Name
	default:
		return q, false
	}
	return q, true
}

func verdictLabel(v Verdict) string {
	if v.Accepted {
		return "accepted"
	}
	return string(v.Reason)
}

type noCache struct{}

func (noCache) Get(context.Context, string) ([]models.CandidateRecord, bool) { return nil, false }
func (noCache) Set(context.Context, string, []models.CandidateRecord)        {}

// LevelSummary renders one trace entry as a single debug line.
func LevelSummary(lt LevelTrace) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: ", lt.Level)
	switch {
	case lt.Skipped:
		b.WriteString("skipped, required fields missing")
	case lt.Verdict.Accepted:
		fmt.Fprintf(&b, "accepted %s with score %d", lt.Verdict.Candidate.CardID, lt.Verdict.TotalScore)
	default:
		fmt.Fprintf(&b, "%s, best score %d", lt.Verdict.Reason, lt.Verdict.BestScore())
		if lt.Verdict.Detail != "" {
			fmt.Fprintf(&b, " (%s)", lt.Verdict.Detail)
		}
	}
	return b.String()
}
