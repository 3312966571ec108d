package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "card-scan-workers/internal/common/errors"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/common/metrics"
	"card-scan-workers/internal/models"
)

const DefaultKeyPrefix = "cardscan:query:"

// RedisCache shares query results between worker instances. Redis failures
// are logged and treated as misses so a cache outage never fails a scan.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration, prefix string, log logger.Logger) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{"cache": "redis"}),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]models.CandidateRecord, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.fail("get", key, err)
		}
		recordLookup("redis", false)
		return nil, false
	}

	var records []models.CandidateRecord
	if err := json.Unmarshal(data, &records); err != nil {
		c.fail("decode", key, err)
		recordLookup("redis", false)
		return nil, false
	}
	recordLookup("redis", true)
	return records, true
}

func (c *RedisCache) Set(ctx context.Context, key string, records []models.CandidateRecord) {
	if records == nil {
		records = []models.CandidateRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		c.fail("encode", key, err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.fail("set", key, err)
	}
}

func (c *RedisCache) fail(op, key string, err error) {
	metrics.QueryCacheLookups.WithLabelValues("redis", "error").Inc()
	c.logger.Warn("query cache "+op+" failed", map[string]interface{}{
		"key":   key,
		"code":  string(apperrors.ErrCodeCacheUnavailable),
		"error": err.Error(),
	})
}
