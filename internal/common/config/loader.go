// internal/common/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on
// top, expands ${VAR} placeholders and applies env overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	markDisabledThresholds(v, &cfg)
	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads the first .env found from the working directory upwards
// to the module root. Missing files are not an error.
func loadEnvFile() string {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		switch val := v.Get(key).(type) {
		case string:
			if expanded := expandValue(val); expanded != val {
				v.Set(key, expanded)
			}
		case []interface{}:
			out := make([]string, 0, len(val))
			changed := false
			for _, item := range val {
				s := fmt.Sprint(item)
				expanded := expandValue(s)
				changed = changed || expanded != s
				out = append(out, expanded)
			}
			if changed {
				v.Set(key, out)
			}
		}
	}
}

func expandValue(s string) string {
	if strings.Contains(s, "${") || (strings.HasPrefix(s, "$") && len(s) > 1) {
		return os.ExpandEnv(s)
	}
	return s
}

// overrideEmptyConfig fills secrets left empty by the files from the
// environment.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty := func(dst *string, env string) {
		if *dst == "" {
			if val := os.Getenv(env); val != "" {
				*dst = val
			}
		}
	}

	setIfEmpty(&cfg.Vision.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&cfg.Catalog.TCG.APIKey, "TCG_API_KEY")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	setIfEmpty(&cfg.Camunda.BrokerAddress, "ZEEBE_ADDRESS")
}

// markDisabledThresholds tells an explicit 0 apart from an omitted key, which
// applyDefaults would otherwise fill.
func markDisabledThresholds(v *viper.Viper, cfg *Config) {
	rules := map[string]*int{
		"matching.min_score":             &cfg.Matching.MinScore,
		"matching.name_similarity_floor": &cfg.Matching.NameSimilarityFloor,
		"matching.ambiguity_gap":         &cfg.Matching.AmbiguityGap,
	}
	for key, field := range rules {
		if *field == 0 && v.IsSet(key) && strings.TrimSpace(v.GetString(key)) != "" {
			*field = ThresholdDisabled
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "card-scan-workers"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "2.0-strict"
	}

	if cfg.Camunda.BrokerAddress == "" {
		cfg.Camunda.BrokerAddress = "localhost:26500"
	}
	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.Catalog.Backend == "" {
		cfg.Catalog.Backend = CatalogTCG
	}
	if cfg.Catalog.Elasticsearch.Index == "" {
		cfg.Catalog.Elasticsearch.Index = "cards"
	}
	if cfg.Catalog.Postgres.Table == "" {
		cfg.Catalog.Postgres.Table = "cards"
	}
	if cfg.Catalog.TCG.BaseURL == "" {
		cfg.Catalog.TCG.BaseURL = "https://api.pokemontcg.io/v2"
	}
	if cfg.Catalog.TCG.Timeout == 0 {
		cfg.Catalog.TCG.Timeout = 30000
	}
	if cfg.Catalog.TCG.PageSize == 0 {
		cfg.Catalog.TCG.PageSize = 20
	}
	if cfg.Catalog.TCG.RateLimit == 0 {
		cfg.Catalog.TCG.RateLimit = 5
	}
	if cfg.Catalog.TCG.Burst == 0 {
		cfg.Catalog.TCG.Burst = 5
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheMemory
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 3600000
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = 600000
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "cardscan:query:"
	}

	if len(cfg.Matching.Levels) == 0 {
		cfg.Matching.Levels = []string{"full", "no_set", "number_only"}
	}
	if cfg.Matching.SearchTimeout == 0 {
		cfg.Matching.SearchTimeout = 30000
	}
	if cfg.Matching.MaxCandidates == 0 {
		cfg.Matching.MaxCandidates = 250
	}
	if cfg.Matching.MinNumberOnlyLength == 0 {
		cfg.Matching.MinNumberOnlyLength = 1
	}
	if cfg.Matching.MinScore == 0 {
		cfg.Matching.MinScore = 70
	}
	if cfg.Matching.VerifiedScore == 0 {
		cfg.Matching.VerifiedScore = 80
	}
	if cfg.Matching.NameSimilarityFloor == 0 {
		cfg.Matching.NameSimilarityFloor = 85
	}
	if cfg.Matching.AmbiguityGap == 0 {
		cfg.Matching.AmbiguityGap = 15
	}
	if cfg.Matching.DebugTopN == 0 {
		cfg.Matching.DebugTopN = 5
	}

	if cfg.Vision.Model == "" {
		cfg.Vision.Model = "gpt-4o-mini"
	}
	if cfg.Vision.MaxTokens == 0 {
		cfg.Vision.MaxTokens = 400
	}
	if cfg.Vision.Detail == "" {
		cfg.Vision.Detail = "high"
	}
	if cfg.Vision.Timeout == 0 {
		cfg.Vision.Timeout = 60000
	}

	if cfg.Scanner.BatchConcurrency == 0 {
		cfg.Scanner.BatchConcurrency = 4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	switch cfg.Catalog.Backend {
	case CatalogElasticsearch:
		if cfg.Database.Elasticsearch.GetURL() == "" {
			return fmt.Errorf("database.elasticsearch.addresses or url is required for the elasticsearch catalog")
		}
	case CatalogPostgres:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required for the postgres catalog")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required for the postgres catalog")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required for the postgres catalog")
		}
	case CatalogTCG:
		if cfg.Catalog.TCG.BaseURL == "" {
			return fmt.Errorf("catalog.tcg.base_url is required")
		}
	case CatalogFile:
		if cfg.Catalog.File.Path == "" {
			return fmt.Errorf("catalog.file.path is required for the file catalog")
		}
	default:
		return fmt.Errorf("unknown catalog.backend %q", cfg.Catalog.Backend)
	}

	switch cfg.Cache.Backend {
	case CacheRedis:
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis cache")
		}
	case CacheMemory, CacheNone:
	default:
		return fmt.Errorf("unknown cache.backend %q", cfg.Cache.Backend)
	}

	m := cfg.Matching
	if m.MinScore > 100 || m.VerifiedScore > 100 || m.NameSimilarityFloor > 100 {
		return fmt.Errorf("matching scores must not exceed 100")
	}
	for key, val := range map[string]int{
		"min_score":             m.MinScore,
		"name_similarity_floor": m.NameSimilarityFloor,
		"ambiguity_gap":         m.AmbiguityGap,
	} {
		if val < ThresholdDisabled {
			return fmt.Errorf("matching.%s must be >= 0, got %d", key, val)
		}
	}
	if m.VerifiedScore < m.MinScore {
		return fmt.Errorf("matching.verified_score (%d) must be >= matching.min_score (%d)", m.VerifiedScore, m.MinScore)
	}

	if cfg.Tracing.Enabled && cfg.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("tracing.jaeger_endpoint is required when tracing is enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
