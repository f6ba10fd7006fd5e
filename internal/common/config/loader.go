// internal/common/config/loader.go
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const weightSumTolerance = 1e-6

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// RECOMMENDER_CACHE_TTL overrides recommender.cache_ttl and so on
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// config.<env>.yaml is optional
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
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
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // tests in test/e2e/
	}
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

// Find project root by looking for go.mod
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
			break
		}
		dir = parent
	}
	return ""
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

// Direct override if secrets are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	setIfEmpty(&cfg.Auth.Keycloak.ClientSecret, "KEYCLOAK_CLIENT_SECRET")
	setIfEmpty(&cfg.Integrations.AWS.SNS.FeedbackTopicARN, "FEEDBACK_TOPIC_ARN")
}

func setIfEmpty(field *string, envKey string) {
	if *field != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "project-recommender"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 5000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15000
	}
	if cfg.Server.FeedbackRateLimit == 0 {
		cfg.Server.FeedbackRateLimit = 120
	}

	// Database defaults
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

	// Store defaults
	if cfg.Stores.Catalog.Backend == "" {
		cfg.Stores.Catalog.Backend = BackendPostgres
	}
	if cfg.Stores.Catalog.MaxCandidates == 0 {
		cfg.Stores.Catalog.MaxCandidates = 500
	}
	if cfg.Stores.Catalog.Index == "" {
		cfg.Stores.Catalog.Index = "projects"
	}
	if cfg.Stores.Profile.Backend == "" {
		cfg.Stores.Profile.Backend = BackendPostgres
	}
	if cfg.Stores.Profile.Timeout == 0 {
		cfg.Stores.Profile.Timeout = 2000
	}
	if cfg.Stores.Breaker.FailureThreshold == 0 {
		cfg.Stores.Breaker.FailureThreshold = 5
	}
	if cfg.Stores.Breaker.OpenTimeout == 0 {
		cfg.Stores.Breaker.OpenTimeout = 10000
	}

	// Recommender defaults. Weight vectors left at zero keep the engine's own.
	if cfg.Recommender.RequestTimeout == 0 {
		cfg.Recommender.RequestTimeout = 250
	}
	if cfg.Recommender.DefaultLimit == 0 {
		cfg.Recommender.DefaultLimit = 10
	}
	if cfg.Recommender.MaxLimit == 0 {
		cfg.Recommender.MaxLimit = 100
	}

	// Cache defaults
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 60000
	}
	if cfg.Cache.DegradedTTL == 0 {
		cfg.Cache.DegradedTTL = 5000
	}
	if cfg.Cache.MaxStale == 0 {
		cfg.Cache.MaxStale = 300000
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 10000
	}
	if cfg.Cache.Shards == 0 {
		cfg.Cache.Shards = 16
	}
	if cfg.Cache.ComputeTimeout == 0 {
		cfg.Cache.ComputeTimeout = 2000
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = 30000
	}
	if cfg.Cache.RemotePrefix == "" {
		cfg.Cache.RemotePrefix = "rec:"
	}

	// Feedback defaults
	if cfg.Feedback.CooldownTTL == 0 {
		cfg.Feedback.CooldownTTL = 24 * 60 * 60 * 1000
	}

	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthModeHeader
	}
	if cfg.Auth.Keycloak.Timeout == 0 {
		cfg.Auth.Keycloak.Timeout = 3000
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	switch cfg.Stores.Catalog.Backend {
	case BackendPostgres:
	case BackendElasticsearch:
		if cfg.Database.Elasticsearch.GetURL() == "" {
			return fmt.Errorf("database.elasticsearch.addresses or url is required")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("stores.catalog.backend %q is not one of postgres, elasticsearch, memory", cfg.Stores.Catalog.Backend)
	}

	switch cfg.Stores.Profile.Backend {
	case BackendPostgres:
	case BackendRemote:
		if cfg.Stores.Profile.RemoteURL == "" {
			return fmt.Errorf("stores.profile.remote_url is required for the remote backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("stores.profile.backend %q is not one of postgres, remote, memory", cfg.Stores.Profile.Backend)
	}

	if cfg.UsesPostgres() {
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

	if cfg.UsesRedis() && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if err := validateRecommender(&cfg.Recommender); err != nil {
		return err
	}

	switch cfg.Auth.Mode {
	case AuthModeHeader:
	case AuthModeKeycloak:
		if cfg.Auth.Keycloak.URL == "" || cfg.Auth.Keycloak.Realm == "" || cfg.Auth.Keycloak.ClientID == "" {
			return fmt.Errorf("auth.keycloak url, realm and client_id are required in keycloak mode")
		}
	default:
		return fmt.Errorf("auth.mode %q is not one of header, keycloak", cfg.Auth.Mode)
	}

	if sns := cfg.Integrations.AWS.SNS; sns.Enabled {
		if cfg.Integrations.AWS.Region == "" || sns.FeedbackTopicARN == "" {
			return fmt.Errorf("integrations.aws.region and sns.feedback_topic_arn are required when sns is enabled")
		}
	}
	return nil
}

func validateRecommender(r *RecommenderConfig) error {
	if r.RequestTimeout < 0 {
		return fmt.Errorf("recommender.request_timeout must be positive")
	}
	if r.DefaultLimit < 1 || r.DefaultLimit > r.MaxLimit {
		return fmt.Errorf("recommender.default_limit must be in [1, max_limit]")
	}

	for name, w := range map[string]WeightsConfig{"user_weights": r.UserWeights, "project_weights": r.ProjectWeights} {
		if w.IsZero() {
			continue
		}
		for component, value := range w.values() {
			if value < 0 || value > 1 {
				return fmt.Errorf("recommender.%s.%s=%v out of [0,1]", name, component, value)
			}
		}
		if math.Abs(w.Sum()-1) > weightSumTolerance {
			return fmt.Errorf("recommender.%s must sum to 1, got %v", name, w.Sum())
		}
	}
	if r.ProjectWeights.Popularity != 0 {
		return fmt.Errorf("recommender.project_weights.popularity must be 0")
	}

	if h := r.Hybrid; !h.IsZero() {
		for _, value := range []float64{h.User, h.Similarity, h.Popularity} {
			if value < 0 || value > 1 {
				return fmt.Errorf("recommender.hybrid weights must be in [0,1]")
			}
		}
		if math.Abs(h.User+h.Similarity+h.Popularity-1) > weightSumTolerance {
			return fmt.Errorf("recommender.hybrid must sum to 1")
		}
	}
	return nil
}

// UsesPostgres reports whether any configured component needs Postgres.
func (c *Config) UsesPostgres() bool {
	return c.Feedback.Persist ||
		c.Stores.Catalog.Backend == BackendPostgres ||
		c.Stores.Profile.Backend == BackendPostgres
}

// UsesRedis reports whether any configured component needs Redis.
func (c *Config) UsesRedis() bool {
	if c.Cache.RemoteEnabled {
		return true
	}
	return c.Stores.Profile.Backend == BackendPostgres && c.Stores.Profile.CacheTTL > 0
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
