// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig         `mapstructure:"app"`
	Server       ServerConfig      `mapstructure:"server"`
	Database     DatabaseConfig    `mapstructure:"database"`
	Stores       StoresConfig      `mapstructure:"stores"`
	Recommender  RecommenderConfig `mapstructure:"recommender"`
	Cache        CacheConfig       `mapstructure:"cache"`
	Feedback     FeedbackConfig    `mapstructure:"feedback"`
	Auth         AuthConfig        `mapstructure:"auth"`
	Integrations IntegrationConfig `mapstructure:"integrations"`
	Logging      LoggingConfig     `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ReadTimeout     int `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int `mapstructure:"shutdown_timeout"` // milliseconds
	// FeedbackRateLimit is requests per minute per client on the feedback endpoint.
	FeedbackRateLimit int `mapstructure:"feedback_rate_limit"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
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
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
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

// --- Stores ---

const (
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
	BackendRemote        = "remote"
	BackendMemory        = "memory"
)

type StoresConfig struct {
	Catalog CatalogStoreConfig `mapstructure:"catalog"`
	Profile ProfileStoreConfig `mapstructure:"profile"`
	Breaker BreakerConfig      `mapstructure:"breaker"`
}

type CatalogStoreConfig struct {
	Backend       string `mapstructure:"backend"` // postgres, elasticsearch or memory
	SeedPath      string `mapstructure:"seed_path"`
	MaxCandidates int    `mapstructure:"max_candidates"`
	Index         string `mapstructure:"index"`
}

type ProfileStoreConfig struct {
	Backend   string `mapstructure:"backend"` // postgres, remote or memory
	SeedPath  string `mapstructure:"seed_path"`
	RemoteURL string `mapstructure:"remote_url"`
	Timeout   int    `mapstructure:"timeout"`   // milliseconds
	CacheTTL  int    `mapstructure:"cache_ttl"` // milliseconds; 0 disables the redis profile cache
}

type BreakerConfig struct {
	FailureThreshold uint32 `mapstructure:"failure_threshold"`
	OpenTimeout      int    `mapstructure:"open_timeout"` // milliseconds
}

// --- Recommender ---

// WeightsConfig is one scoring weight vector. An all-zero vector keeps the
// built-in defaults.
type WeightsConfig struct {
	Skill          float64 `mapstructure:"skill"`
	Experience     float64 `mapstructure:"experience"`
	Budget         float64 `mapstructure:"budget"`
	Location       float64 `mapstructure:"location"`
	WorkType       float64 `mapstructure:"work_type"`
	Category       float64 `mapstructure:"category"`
	Similarity     float64 `mapstructure:"similarity"`
	Popularity     float64 `mapstructure:"popularity"`
	RecentActivity float64 `mapstructure:"recent_activity"`
}

func (w WeightsConfig) values() map[string]float64 {
	return map[string]float64{
		"skill":           w.Skill,
		"experience":      w.Experience,
		"budget":          w.Budget,
		"location":        w.Location,
		"work_type":       w.WorkType,
		"category":        w.Category,
		"similarity":      w.Similarity,
		"popularity":      w.Popularity,
		"recent_activity": w.RecentActivity,
	}
}

func (w WeightsConfig) IsZero() bool {
	return w == WeightsConfig{}
}

func (w WeightsConfig) Sum() float64 {
	sum := 0.0
	for _, v := range w.values() {
		sum += v
	}
	return sum
}

type HybridWeightsConfig struct {
	User       float64 `mapstructure:"user"`
	Similarity float64 `mapstructure:"similarity"`
	Popularity float64 `mapstructure:"popularity"`
}

func (h HybridWeightsConfig) IsZero() bool {
	return h == HybridWeightsConfig{}
}

type RecommenderConfig struct {
	RequestTimeout int `mapstructure:"request_timeout"` // milliseconds
	DefaultLimit   int `mapstructure:"default_limit"`
	MaxLimit       int `mapstructure:"max_limit"`
	MaxPerCategory int `mapstructure:"max_per_category"`
	ScoringWorkers int `mapstructure:"scoring_workers"`

	UserWeights    WeightsConfig       `mapstructure:"user_weights"`
	ProjectWeights WeightsConfig       `mapstructure:"project_weights"`
	Hybrid         HybridWeightsConfig `mapstructure:"hybrid"`

	PopularityHalfLifeDays float64 `mapstructure:"popularity_half_life_days"`
	MaxReasons             int     `mapstructure:"max_reasons"`
}

type CacheConfig struct {
	TTL            int    `mapstructure:"ttl"`          // milliseconds
	DegradedTTL    int    `mapstructure:"degraded_ttl"` // milliseconds
	MaxStale       int    `mapstructure:"max_stale"`    // milliseconds
	Capacity       int    `mapstructure:"capacity"`
	Shards         int    `mapstructure:"shards"`
	ComputeTimeout int    `mapstructure:"compute_timeout"` // milliseconds
	SweepInterval  int    `mapstructure:"sweep_interval"`  // milliseconds
	RemoteEnabled  bool   `mapstructure:"remote_enabled"`
	RemotePrefix   string `mapstructure:"remote_prefix"`
}

type FeedbackConfig struct {
	CooldownTTL  int     `mapstructure:"cooldown_ttl"` // milliseconds
	LearningRate float64 `mapstructure:"learning_rate"`
	Workers      int     `mapstructure:"workers"`
	QueueSize    int     `mapstructure:"queue_size"`
	// Persist appends every accepted event to the Postgres feedback log.
	Persist bool `mapstructure:"persist"`
}

// --- Auth ---

const (
	AuthModeHeader   = "header"
	AuthModeKeycloak = "keycloak"
)

type AuthConfig struct {
	// Mode is "header" (trusted X-User-ID from the gateway) or "keycloak".
	Mode     string `mapstructure:"mode"`
	Keycloak struct {
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		Timeout      int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"keycloak"`
}

// IntegrationConfig holds settings for external services.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SNS    struct {
			Enabled          bool   `mapstructure:"enabled"`
			FeedbackTopicARN string `mapstructure:"feedback_topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
