// internal/common/config/config.go
package config

import "fmt"

// Catalog backends.
const (
	CatalogElasticsearch = "elasticsearch"
	CatalogTCG           = "tcg"
	CatalogPostgres      = "postgres"
	CatalogFile          = "file"
)

// Query cache backends.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// ThresholdDisabled is what an explicit 0 for min_score,
// name_similarity_floor or ambiguity_gap loads as. The rule is then skipped.
const ThresholdDisabled = -1

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Catalog  CatalogConfig           `mapstructure:"catalog"`
	Cache    CacheConfig             `mapstructure:"cache"`
	Matching MatchingConfig          `mapstructure:"matching"`
	Vision   VisionConfig            `mapstructure:"vision"`
	Scanner  ScannerConfig           `mapstructure:"scanner"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Tracing  TracingConfig           `mapstructure:"tracing"`
	Server   ServerConfig            `mapstructure:"server"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	UsePlaintext   bool   `mapstructure:"use_plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the URL field or the first address.
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CatalogConfig selects and tunes the reference catalog backend.
type CatalogConfig struct {
	Backend       string `mapstructure:"backend"`
	Elasticsearch struct {
		Index string `mapstructure:"index"`
	} `mapstructure:"elasticsearch"`
	Postgres struct {
		Table string `mapstructure:"table"`
	} `mapstructure:"postgres"`
	TCG  TCGConfig `mapstructure:"tcg"`
	File struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"file"`
}

// TCGConfig points at the public Pokémon TCG API.
type TCGConfig struct {
	BaseURL   string  `mapstructure:"base_url"`
	APIKey    string  `mapstructure:"api_key"`
	Timeout   int     `mapstructure:"timeout"` // milliseconds
	PageSize  int     `mapstructure:"page_size"`
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second
	Burst     int     `mapstructure:"burst"`
}

// CacheConfig selects the query result cache.
type CacheConfig struct {
	Backend         string `mapstructure:"backend"`
	TTL             int    `mapstructure:"ttl"`              // milliseconds
	CleanupInterval int    `mapstructure:"cleanup_interval"` // milliseconds
	KeyPrefix       string `mapstructure:"key_prefix"`
}

// MatchingConfig holds the retrieval order and the acceptance rules.
type MatchingConfig struct {
	Levels              []string `mapstructure:"levels"`
	SearchTimeout       int      `mapstructure:"search_timeout"` // milliseconds
	MaxCandidates       int      `mapstructure:"max_candidates"`
	MinNumberOnlyLength int      `mapstructure:"min_number_only_length"`
	MinScore            int      `mapstructure:"min_score"`
	VerifiedScore       int      `mapstructure:"verified_score"`
	NameSimilarityFloor int      `mapstructure:"name_similarity_floor"`
	AmbiguityGap        int      `mapstructure:"ambiguity_gap"`
	DebugTopN           int      `mapstructure:"debug_top_n"`
}

// VisionConfig configures the OpenAI-compatible vision model used for text
// extraction.
type VisionConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	Detail    string `mapstructure:"detail"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
}

type ScannerConfig struct {
	BatchConcurrency int `mapstructure:"batch_concurrency"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}
