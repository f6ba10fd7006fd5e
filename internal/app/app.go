// Package app assembles the recommendation engine from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"

	"project-recommender/internal/api"
	"project-recommender/internal/common/auth"
	"project-recommender/internal/common/config"
	"project-recommender/internal/common/database"
	commonhttp "project-recommender/internal/common/http"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/common/observability"
	"project-recommender/internal/recommender/cache"
	"project-recommender/internal/recommender/explain"
	"project-recommender/internal/recommender/feedback"
	"project-recommender/internal/recommender/popularity"
	"project-recommender/internal/recommender/scoring"
	"project-recommender/internal/recommender/service"
	"project-recommender/internal/stores/catalog"
	"project-recommender/internal/stores/profile"
)

// App is a fully wired engine. Run starts the background loops and Close
// releases them.
type App struct {
	Service *service.Service
	Handler http.Handler

	cache     *cache.Layer
	collector *feedback.Collector
	obs       *observability.Observability
	logger    logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Connections are the backends main dialed for the configured stores. Any of
// them may be nil when the configuration does not need it.
type Connections struct {
	Postgres      *database.PostgresClient
	Elasticsearch *database.ElasticsearchClient
	Redis         *database.RedisClient
}

type options struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	publisher  feedback.Publisher
	validator  api.TokenValidator
}

type Option func(*options)

// WithRegistry exports metrics through reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = reg
	}
}

// WithPublisher sends accepted feedback events downstream.
func WithPublisher(p feedback.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithTokenValidator overrides the Keycloak client used in keycloak auth mode.
func WithTokenValidator(v api.TokenValidator) Option {
	return func(o *options) { o.validator = v }
}

func New(cfg *config.Config, conns Connections, log logger.Logger, opts ...Option) (*App, error) {
	o := &options{registerer: prometheus.DefaultRegisterer, gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(o)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	catalogStore, err := buildCatalog(cfg, conns, log)
	if err != nil {
		return nil, err
	}
	profileStore, err := buildProfiles(cfg, conns, log)
	if err != nil {
		return nil, err
	}

	popConfig := popularity.LoadConfig()
	if cfg.Recommender.PopularityHalfLifeDays > 0 {
		popConfig.HalfLifeDays = cfg.Recommender.PopularityHalfLifeDays
	}
	explainConfig := explain.LoadConfig()
	if cfg.Recommender.MaxReasons > 0 {
		explainConfig.MaxReasons = cfg.Recommender.MaxReasons
	}

	orch, err := scoring.NewOrchestrator(
		scoringConfig(cfg.Recommender),
		catalogStore,
		profileStore,
		popularity.NewTracker(popConfig),
		explain.NewGenerator(explainConfig),
		log,
	)
	if err != nil {
		return nil, err
	}

	var cacheOpts []cache.Option
	if cfg.Cache.RemoteEnabled {
		if conns.Redis == nil {
			return nil, fmt.Errorf("remote cache is enabled but no redis connection was provided")
		}
		indexTTL := config.GetDuration(cfg.Cache.TTL + cfg.Cache.MaxStale)
		cacheOpts = append(cacheOpts, cache.WithRemote(cache.NewRedisStore(conns.Redis.Client, cfg.Cache.RemotePrefix, indexTTL)))
	}
	layer, err := cache.NewLayer(cacheConfig(cfg.Cache), log, cacheOpts...)
	if err != nil {
		return nil, err
	}

	var feedbackOpts []feedback.Option
	if cfg.Feedback.Persist {
		if conns.Postgres == nil {
			return nil, fmt.Errorf("feedback persistence is enabled but no postgres connection was provided")
		}
		feedbackOpts = append(feedbackOpts, feedback.WithSink(feedback.NewPostgresLog(conns.Postgres.DB)))
	}
	if o.publisher != nil {
		feedbackOpts = append(feedbackOpts, feedback.WithPublisher(o.publisher))
	}
	collector := feedback.NewCollector(feedbackConfig(cfg.Feedback), orch.Config().UserWeights, layer, log, feedbackOpts...)
	orch.SetFeedback(collector, collector)

	svc, err := service.New(&service.Config{
		RequestTimeout: config.GetDuration(cfg.Recommender.RequestTimeout),
		DefaultLimit:   cfg.Recommender.DefaultLimit,
		MaxLimit:       cfg.Recommender.MaxLimit,
	}, orch, layer, collector, log)
	if err != nil {
		collector.Close()
		return nil, err
	}

	identity, err := buildIdentity(cfg, o.validator)
	if err != nil {
		collector.Close()
		return nil, err
	}

	obs := observability.New(cfg.App.Name, log, otelprom.WithRegisterer(o.registerer))

	apiConfig := api.LoadConfig()
	apiConfig.ServiceName = cfg.App.Name
	apiConfig.ServiceVersion = cfg.App.Version
	if cfg.Server.FeedbackRateLimit > 0 {
		apiConfig.FeedbackRateLimit = cfg.Server.FeedbackRateLimit
	}

	serverOpts := []api.Option{
		api.WithObservability(obs),
		api.WithMetricsHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})),
	}
	serverOpts = append(serverOpts, readinessChecks(conns)...)
	server := api.NewServer(apiConfig, svc, identity, log, serverOpts...)

	return &App{
		Service:   svc,
		Handler:   server.Routes(),
		cache:     layer,
		collector: collector,
		obs:       obs,
		logger:    logger.ForComponent(log, "app"),
	}, nil
}

// Run starts the cache sweeper and the feedback maintenance loop. They stop
// when ctx ends or Close is called.
func (a *App) Run(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.cache.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.collector.Run(ctx)
	}()
	a.logger.Info("background loops started", nil)
}

func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.collector.Close()
	a.obs.Shutdown()
}

func buildCatalog(cfg *config.Config, conns Connections, log logger.Logger) (catalog.Store, error) {
	sc := cfg.Stores.Catalog
	storeConfig := catalog.LoadConfig()
	if sc.MaxCandidates > 0 {
		storeConfig.MaxCandidates = sc.MaxCandidates
	}
	if sc.Index != "" {
		storeConfig.Index = sc.Index
	}

	var store catalog.Store
	switch sc.Backend {
	case config.BackendMemory:
		if sc.SeedPath == "" {
			store = catalog.NewMemoryStore(storeConfig)
			break
		}
		mem, err := catalog.LoadMemoryStore(storeConfig, sc.SeedPath)
		if err != nil {
			return nil, fmt.Errorf("load catalog seed: %w", err)
		}
		store = mem
	case config.BackendPostgres:
		if conns.Postgres == nil {
			return nil, fmt.Errorf("catalog backend postgres needs a postgres connection")
		}
		store = catalog.NewPostgresStore(storeConfig, conns.Postgres.DB, log)
	case config.BackendElasticsearch:
		if conns.Elasticsearch == nil {
			return nil, fmt.Errorf("catalog backend elasticsearch needs an elasticsearch connection")
		}
		store = catalog.NewElasticsearchStore(storeConfig, conns.Elasticsearch.Client, log)
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", sc.Backend)
	}

	if sc.Backend == config.BackendMemory {
		return store, nil
	}
	bc := catalog.LoadBreakerConfig()
	applyBreaker(&bc.FailureThreshold, &bc.Timeout, cfg.Stores.Breaker)
	return catalog.NewBreaker(bc, store, log), nil
}

func buildProfiles(cfg *config.Config, conns Connections, log logger.Logger) (profile.Store, error) {
	pc := cfg.Stores.Profile
	storeConfig := profile.LoadConfig()
	if pc.CacheTTL > 0 {
		storeConfig.CacheTTL = config.GetDuration(pc.CacheTTL)
	}

	var store profile.Store
	switch pc.Backend {
	case config.BackendMemory:
		if pc.SeedPath == "" {
			return profile.NewMemoryStore(), nil
		}
		mem, err := profile.LoadMemoryStore(pc.SeedPath)
		if err != nil {
			return nil, fmt.Errorf("load profile seed: %w", err)
		}
		return mem, nil
	case config.BackendPostgres:
		if conns.Postgres == nil {
			return nil, fmt.Errorf("profile backend postgres needs a postgres connection")
		}
		// cache_ttl 0 turns the redis read-through off
		var rc *redis.Client
		if conns.Redis != nil && pc.CacheTTL > 0 {
			rc = conns.Redis.Client
		}
		store = profile.NewPostgresStore(storeConfig, conns.Postgres.DB, rc, log)
	case config.BackendRemote:
		client := commonhttp.NewClient(pc.RemoteURL, config.GetDuration(pc.Timeout))
		store = profile.NewRemoteStore(storeConfig, client)
	default:
		return nil, fmt.Errorf("unknown profile backend %q", pc.Backend)
	}

	bc := profile.LoadBreakerConfig()
	applyBreaker(&bc.FailureThreshold, &bc.Timeout, cfg.Stores.Breaker)
	return profile.NewBreaker(bc, store, log), nil
}

func applyBreaker(threshold *uint32, timeout *time.Duration, bc config.BreakerConfig) {
	if bc.FailureThreshold > 0 {
		*threshold = bc.FailureThreshold
	}
	if bc.OpenTimeout > 0 {
		*timeout = config.GetDuration(bc.OpenTimeout)
	}
}

func buildIdentity(cfg *config.Config, validator api.TokenValidator) (api.Identifier, error) {
	switch cfg.Auth.Mode {
	case "", config.AuthModeHeader:
		return api.HeaderIdentity{Header: api.LoadConfig().UserHeader}, nil
	case config.AuthModeKeycloak:
		if validator == nil {
			kc := cfg.Auth.Keycloak
			validator = auth.NewKeycloakClient(kc.URL, kc.Realm, kc.ClientID, kc.ClientSecret, config.GetDuration(kc.Timeout))
		}
		return api.TokenIdentity{Validator: validator}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

func readinessChecks(conns Connections) []api.Option {
	var opts []api.Option
	if conns.Postgres != nil {
		opts = append(opts, api.WithReadinessCheck("postgres", conns.Postgres.Ping))
	}
	if conns.Elasticsearch != nil {
		opts = append(opts, api.WithReadinessCheck("elasticsearch", conns.Elasticsearch.Ping))
	}
	if conns.Redis != nil {
		opts = append(opts, api.WithReadinessCheck("redis", conns.Redis.Ping))
	}
	return opts
}
