package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"card-scan-workers/internal/cardmatch"
	"card-scan-workers/internal/catalog"
	"card-scan-workers/internal/common/config"
	"card-scan-workers/internal/common/database"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/models"
	"card-scan-workers/internal/querycache"
	"card-scan-workers/internal/vision"
)

// Backends holds the catalog searcher and query cache built from config
// together with the connections they own.
type Backends struct {
	Searcher cardmatch.CatalogSearcher
	Cache    cardmatch.QueryCache
	closers  []io.Closer
	checks   map[string]func(context.Context) error
}

// Close releases every connection opened by BuildBackends.
func (b *Backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Check pings every backend and returns the failures by name.
func (b *Backends) Check(ctx context.Context) map[string]string {
	failures := map[string]string{}
	for name, check := range b.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}

// BuildBackends connects the configured catalog backend and query cache.
func BuildBackends(cfg *config.Config, log logger.Logger) (*Backends, error) {
	b := &Backends{checks: map[string]func(context.Context) error{}}

	searcher, err := b.buildSearcher(cfg, log)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Searcher = catalog.Instrument(cfg.Catalog.Backend, searcher, log)

	cache, err := b.buildCache(cfg, log)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Cache = cache
	return b, nil
}

func (b *Backends) buildSearcher(cfg *config.Config, log logger.Logger) (catalog.Searcher, error) {
	switch cfg.Catalog.Backend {
	case config.CatalogElasticsearch:
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, err
		}
		index := cfg.Catalog.Elasticsearch.Index
		b.checks["elasticsearch"] = func(ctx context.Context) error {
			ok, err := es.IndexExists(ctx, index)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("index %q not found", index)
			}
			return nil
		}
		return catalog.NewElasticsearchSearcher(es.Client, index, log), nil

	case config.CatalogPostgres:
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pg)
		b.checks["postgres"] = pg.Ping
		return catalog.NewPostgresSearcher(pg.DB, cfg.Catalog.Postgres.Table, log)

	case config.CatalogFile:
		return catalog.LoadFileSearcher(cfg.Catalog.File.Path, log)

	case config.CatalogTCG:
		tcg := cfg.Catalog.TCG
		return catalog.NewTCGSearcher(catalog.TCGConfig{
			BaseURL:   tcg.BaseURL,
			APIKey:    tcg.APIKey,
			PageSize:  tcg.PageSize,
			Timeout:   config.GetDuration(tcg.Timeout),
			RateLimit: tcg.RateLimit,
			Burst:     tcg.Burst,
		}, log), nil

	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}

func (b *Backends) buildCache(cfg *config.Config, log logger.Logger) (cardmatch.QueryCache, error) {
	ttl := config.GetDuration(cfg.Cache.TTL)
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		rdb, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, rdb)
		b.checks["redis"] = rdb.Ping
		return querycache.NewRedisCache(rdb.Client, ttl, cfg.Cache.KeyPrefix, log), nil
	case config.CacheMemory:
		return querycache.NewMemoryCache(ttl, config.GetDuration(cfg.Cache.CleanupInterval)), nil
	case config.CacheNone, "":
		return querycache.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// RetrieverOptions converts the matching section into retriever options.
func RetrieverOptions(m config.MatchingConfig) (cardmatch.Options, error) {
	levels := make([]models.QueryLevel, 0, len(m.Levels))
	for _, name := range m.Levels {
		level, err := models.ParseQueryLevel(name)
		if err != nil {
			return cardmatch.Options{}, err
		}
		levels = append(levels, level)
	}

	return cardmatch.Options{
		Levels: levels,
		Thresholds: cardmatch.Thresholds{
			MinScore:            ruleThreshold(m.MinScore),
			VerifiedScore:       m.VerifiedScore,
			NameSimilarityFloor: ruleThreshold(m.NameSimilarityFloor),
			AmbiguityGap:        ruleThreshold(m.AmbiguityGap),
			DebugTopN:           m.DebugTopN,
		},
		SearchTimeout:       config.GetDuration(m.SearchTimeout),
		MaxCandidates:       m.MaxCandidates,
		MinNumberOnlyLength: m.MinNumberOnlyLength,
	}, nil
}

func ruleThreshold(v int) int {
	if v == config.ThresholdDisabled {
		return cardmatch.Disabled
	}
	return v
}

// VisionConfig converts the vision section into extractor settings.
func VisionConfig(v config.VisionConfig) vision.Config {
	return vision.Config{
		BaseURL:   v.BaseURL,
		APIKey:    v.APIKey,
		Model:     v.Model,
		MaxTokens: v.MaxTokens,
		Detail:    v.Detail,
		Timeout:   time.Duration(v.Timeout) * time.Millisecond,
	}
}
