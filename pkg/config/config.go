// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Storage, Kafka, Redis, Indexer, Search, Crawler, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Redis   RedisConfig   `yaml:"redis"`
	Indexer IndexerConfig `yaml:"indexer"`
	Search  SearchConfig  `yaml:"search"`
	Crawler CrawlerConfig `yaml:"crawler"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	IngestPort      int           `yaml:"ingestPort"`
	AnalyticsPort   int           `yaml:"analyticsPort"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimitRPS caps requests per second per client on the search API;
	// zero disables limiting.
	RateLimitRPS   float64  `yaml:"rateLimitRPS"`
	RateLimitBurst int      `yaml:"rateLimitBurst"`
	CORSOrigins    []string `yaml:"corsOrigins"`
}

// StorageConfig selects the relational engine behind the index.
type StorageConfig struct {
	Driver          string         `yaml:"driver"`
	SQLitePath      string         `yaml:"sqlitePath"`
	BusyTimeout     time.Duration  `yaml:"busyTimeout"`
	Postgres        PostgresConfig `yaml:"postgres"`
	MaxOpenConns    int            `yaml:"maxOpenConns"`
	MaxIdleConns    int            `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration  `yaml:"connMaxLifetime"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslMode"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. An empty broker list
// disables every Kafka integration.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest  string `yaml:"documentIngest"`
	IndexComplete   string `yaml:"indexComplete"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`

	// BreakerThreshold consecutive Redis failures stop cache traffic for
	// BreakerCooldown.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

// IndexerConfig controls incremental indexing runs.
type IndexerConfig struct {
	BatchSize     int           `yaml:"batchSize"`
	WatchInterval time.Duration `yaml:"watchInterval"`
}

// RankingConfig holds the BM25 tunables.
type RankingConfig struct {
	K1         float64 `yaml:"k1"`
	B          float64 `yaml:"b"`
	TitleBoost float64 `yaml:"titleBoost"`
}

// SearchConfig controls tokenization, ranking and result paging.
type SearchConfig struct {
	Ranking         RankingConfig `yaml:"ranking"`
	MinTokenLen     int           `yaml:"minTokenLen"`
	SnippetLength   int           `yaml:"snippetLength"`
	OverFetchFactor int           `yaml:"overFetchFactor"`
	DefaultK        int           `yaml:"defaultK"`
	MaxK            int           `yaml:"maxK"`
	DefaultPageSize int           `yaml:"defaultPageSize"`
	MaxPageSize     int           `yaml:"maxPageSize"`
}

// CrawlerConfig controls the polite crawler.
type CrawlerConfig struct {
	UserAgent        string        `yaml:"userAgent"`
	CrawlDelay       time.Duration `yaml:"crawlDelay"`
	HTTPTimeout      time.Duration `yaml:"httpTimeout"`
	MaxResponseBytes int64         `yaml:"maxResponseBytes"`
	MaxPages         int           `yaml:"maxPages"`
	MaxDepth         int           `yaml:"maxDepth"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config suitable for local development against an
// embedded SQLite database.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			IngestPort:      8001,
			AnalyticsPort:   8002,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
		},
		Storage: StorageConfig{
			Driver:      DriverSQLite,
			SQLitePath:  "./data/astra.db",
			BusyTimeout: 5 * time.Second,
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "astra",
				User:     "astra",
				Password: "localdev",
				SSLMode:  "disable",
			},
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "astra-group",
			Topics: KafkaTopics{
				DocumentIngest:  "document-ingest",
				IndexComplete:   "index-complete",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize:         10,
			CacheTTL:         60 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  10 * time.Second,
		},
		Indexer: IndexerConfig{
			BatchSize:     200,
			WatchInterval: 30 * time.Second,
		},
		Search: SearchConfig{
			Ranking: RankingConfig{
				K1:         1.2,
				B:          0.75,
				TitleBoost: 2.0,
			},
			MinTokenLen:     2,
			SnippetLength:   220,
			OverFetchFactor: 5,
			DefaultK:        10,
			MaxK:            1000,
			DefaultPageSize: 10,
			MaxPageSize:     100,
		},
		Crawler: CrawlerConfig{
			UserAgent:        "AstraSearchBot/1.0",
			CrawlDelay:       time.Second,
			HTTPTimeout:      10 * time.Second,
			MaxResponseBytes: 2_000_000,
			MaxPages:         200,
			MaxDepth:         3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlitePath is required for driver %q", DriverSQLite)
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	r := c.Search.Ranking
	if r.K1 <= 0 {
		return fmt.Errorf("search.ranking.k1 must be positive, got %v", r.K1)
	}
	if r.B < 0 || r.B > 1 {
		return fmt.Errorf("search.ranking.b must be within [0,1], got %v", r.B)
	}
	if r.TitleBoost < 0 {
		return fmt.Errorf("search.ranking.titleBoost must not be negative, got %v", r.TitleBoost)
	}
	if c.Search.MinTokenLen < 1 {
		return fmt.Errorf("search.minTokenLen must be at least 1, got %d", c.Search.MinTokenLen)
	}
	if c.Search.SnippetLength < 1 {
		return fmt.Errorf("search.snippetLength must be at least 1, got %d", c.Search.SnippetLength)
	}
	if c.Search.OverFetchFactor < 1 {
		return fmt.Errorf("search.overFetchFactor must be at least 1, got %d", c.Search.OverFetchFactor)
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("server.rateLimitBurst must be at least 1 when rate limiting is on, got %d", c.Server.RateLimitBurst)
	}
	if c.Redis.BreakerThreshold < 0 || c.Redis.BreakerCooldown < 0 {
		return fmt.Errorf("redis breaker settings must not be negative, got threshold %d cooldown %v",
			c.Redis.BreakerThreshold, c.Redis.BreakerCooldown)
	}
	if c.Indexer.BatchSize < 0 {
		return fmt.Errorf("indexer.batchSize must not be negative, got %d", c.Indexer.BatchSize)
	}
	return nil
}

// applyEnvOverrides reads ASTRA_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ASTRA_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ASTRA_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimitRPS = f
		}
	}
	if v := os.Getenv("ASTRA_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("ASTRA_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("ASTRA_DB_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("ASTRA_POSTGRES_HOST"); v != "" {
		cfg.Storage.Postgres.Host = v
	}
	if v := os.Getenv("ASTRA_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Storage.Postgres.Port = port
		}
	}
	if v := os.Getenv("ASTRA_POSTGRES_DATABASE"); v != "" {
		cfg.Storage.Postgres.Database = v
	}
	if v := os.Getenv("ASTRA_POSTGRES_USER"); v != "" {
		cfg.Storage.Postgres.User = v
	}
	if v := os.Getenv("ASTRA_POSTGRES_PASSWORD"); v != "" {
		cfg.Storage.Postgres.Password = v
	}
	if v := os.Getenv("ASTRA_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ASTRA_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("ASTRA_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ASTRA_TITLE_BOOST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Ranking.TitleBoost = f
		}
	}
	if v := os.Getenv("ASTRA_K1"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Ranking.K1 = f
		}
	}
	if v := os.Getenv("ASTRA_B"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.Ranking.B = f
		}
	}
	if v := os.Getenv("ASTRA_MIN_TOKEN_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MinTokenLen = n
		}
	}
	if v := os.Getenv("ASTRA_USER_AGENT"); v != "" {
		cfg.Crawler.UserAgent = v
	}
	if v := os.Getenv("ASTRA_CRAWL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Crawler.CrawlDelay = d
		}
	}
	if v := os.Getenv("ASTRA_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ASTRA_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
