// internal/common/config/loader.go
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	SourcePostgres      = "postgres"
	SourceElasticsearch = "elasticsearch"
	SourceHTTP          = "http"
	BackendRedis        = "redis"
	BackendMemory       = "memory"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top,
// applies environment overrides and defaults, then validates.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
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

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
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

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Database.Redis.Password == "" {
		cfg.Database.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
	if cfg.Notifications.SNS.TopicARN == "" {
		cfg.Notifications.SNS.TopicARN = os.Getenv("RECOMMENDATIONS_TOPIC_ARN")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "welfare-recommender"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
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
	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 10
	}

	applyEngineDefaults(&cfg.Engine)

	if cfg.Profile.Source == "" {
		cfg.Profile.Source = SourcePostgres
	}
	if cfg.Profile.Timeout == 0 {
		cfg.Profile.Timeout = 2000
	}
	if cfg.Profile.Breaker.MaxFailures == 0 {
		cfg.Profile.Breaker.MaxFailures = 5
	}
	if cfg.Profile.Breaker.OpenTimeout == 0 {
		cfg.Profile.Breaker.OpenTimeout = 30000
	}

	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = SourcePostgres
	}
	if cfg.Catalog.Index == "" {
		cfg.Catalog.Index = "schemes"
	}

	if cfg.Notifications.SNS.TopN == 0 {
		cfg.Notifications.SNS.TopN = 5
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
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

func applyEngineDefaults(e *EngineConfig) {
	if e.CacheBackend == "" {
		e.CacheBackend = BackendRedis
	}
	if e.CacheTTL == 0 {
		e.CacheTTL = 6 * 60 * 60 * 1000
	}
	if e.FetchTimeout == 0 {
		e.FetchTimeout = 3000
	}
	if e.DefaultLimit == 0 {
		e.DefaultLimit = 20
	}
	if e.MaxLimit == 0 {
		e.MaxLimit = 100
	}
	if e.Weights == (WeightsConfig{}) {
		e.Weights = WeightsConfig{
			Eligibility:  0.50,
			Benefit:      0.20,
			Deadline:     0.15,
			Popularity:   0.10,
			Completeness: 0.05,
		}
	}
	if e.Thresholds == (ThresholdsConfig{}) {
		e.Thresholds = ThresholdsConfig{PartialMatch: 40, HighPriority: 70, MediumPriority: 40}
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	needsPostgres := cfg.Profile.Source == SourcePostgres || cfg.Catalog.Source == SourcePostgres
	if needsPostgres {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}

	switch cfg.Profile.Source {
	case SourcePostgres:
	case SourceHTTP:
		if cfg.Profile.BaseURL == "" {
			return fmt.Errorf("profile.base_url is required for the http profile source")
		}
	default:
		return fmt.Errorf("profile.source %q is not supported", cfg.Profile.Source)
	}

	switch cfg.Catalog.Source {
	case SourcePostgres:
	case SourceElasticsearch:
		if cfg.Database.Elasticsearch.GetURL() == "" {
			return fmt.Errorf("database.elasticsearch.addresses or url is required")
		}
	default:
		return fmt.Errorf("catalog.source %q is not supported", cfg.Catalog.Source)
	}

	needsRedis := cfg.Engine.CacheBackend == BackendRedis || cfg.Catalog.CacheTTL > 0
	if needsRedis && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Engine.CacheBackend != BackendRedis && cfg.Engine.CacheBackend != BackendMemory {
		return fmt.Errorf("engine.cache_backend %q is not supported", cfg.Engine.CacheBackend)
	}

	return validateEngine(cfg.Engine)
}

func validateEngine(e EngineConfig) error {
	if math.Abs(e.Weights.Sum()-1) > 1e-6 {
		return fmt.Errorf("engine.weights must sum to 1, got %.4f", e.Weights.Sum())
	}
	t := e.Thresholds
	if t.MediumPriority < 0 || t.MediumPriority > t.HighPriority || t.HighPriority > 100 {
		return fmt.Errorf("engine.thresholds require 0 <= medium_priority <= high_priority <= 100")
	}
	if t.PartialMatch < 0 || t.PartialMatch > 100 {
		return fmt.Errorf("engine.thresholds.partial_match must be within [0,100]")
	}
	if e.DefaultLimit > e.MaxLimit {
		return fmt.Errorf("engine.default_limit must not exceed engine.max_limit")
	}
	if e.ScoringConcurrency < 0 {
		return fmt.Errorf("engine.scoring_concurrency must not be negative")
	}
	return nil
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
