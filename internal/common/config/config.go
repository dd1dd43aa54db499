// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Engine        EngineConfig            `mapstructure:"engine"`
	Profile       ProfileConfig           `mapstructure:"profile"`
	Catalog       CatalogConfig           `mapstructure:"catalog"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig is the health/readiness/metrics listener.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
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
	PoolSize int    `mapstructure:"pool_size"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Recommendation engine ---

// EngineConfig tunes scoring, ranking and caching.
type EngineConfig struct {
	CacheBackend       string           `mapstructure:"cache_backend"` // redis | memory
	CacheTTL           int              `mapstructure:"cache_ttl"`     // milliseconds
	FetchTimeout       int              `mapstructure:"fetch_timeout"` // milliseconds
	ScoringConcurrency int              `mapstructure:"scoring_concurrency"`
	DefaultLimit       int              `mapstructure:"default_limit"`
	MaxLimit           int              `mapstructure:"max_limit"`
	Weights            WeightsConfig    `mapstructure:"weights"`
	Thresholds         ThresholdsConfig `mapstructure:"thresholds"`
}

// WeightsConfig are the relevance weights; they must sum to 1.
type WeightsConfig struct {
	Eligibility  float64 `mapstructure:"eligibility"`
	Benefit      float64 `mapstructure:"benefit"`
	Deadline     float64 `mapstructure:"deadline"`
	Popularity   float64 `mapstructure:"popularity"`
	Completeness float64 `mapstructure:"completeness"`
}

func (w WeightsConfig) Sum() float64 {
	return w.Eligibility + w.Benefit + w.Deadline + w.Popularity + w.Completeness
}

// ThresholdsConfig are the status and priority band boundaries.
type ThresholdsConfig struct {
	PartialMatch   float64 `mapstructure:"partial_match"`
	HighPriority   float64 `mapstructure:"high_priority"`
	MediumPriority float64 `mapstructure:"medium_priority"`
}

// ProfileConfig selects and configures the profile collaborator.
type ProfileConfig struct {
	Source  string `mapstructure:"source"` // postgres | http
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
	Breaker struct {
		MaxFailures uint32 `mapstructure:"max_failures"`
		OpenTimeout int    `mapstructure:"open_timeout"` // milliseconds
	} `mapstructure:"breaker"`
}

// CatalogConfig selects and configures the scheme catalog.
type CatalogConfig struct {
	Source   string `mapstructure:"source"` // postgres | elasticsearch
	Index    string `mapstructure:"index"`
	CacheTTL int    `mapstructure:"cache_ttl"` // milliseconds, 0 disables the catalog cache
}

// NotificationConfig holds the refreshed-recommendations publisher settings.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
		TopN     int    `mapstructure:"top_n"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
