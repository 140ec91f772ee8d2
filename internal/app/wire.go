package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/gridshare/platform/internal/cache"
	"github.com/gridshare/platform/internal/credential"
	"github.com/gridshare/platform/internal/dataneed"
	"github.com/gridshare/platform/internal/eventbus"
	"github.com/gridshare/platform/internal/eventstore"
	"github.com/gridshare/platform/internal/guard"
	"github.com/gridshare/platform/internal/handler"
	"github.com/gridshare/platform/internal/infra"
	"github.com/gridshare/platform/internal/outbox"
	"github.com/gridshare/platform/internal/permission"
	"github.com/gridshare/platform/internal/provider"
	"github.com/gridshare/platform/internal/reactor"
	"github.com/gridshare/platform/internal/region"
	"github.com/gridshare/platform/internal/repository"
	"github.com/gridshare/platform/internal/sweep"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// LogStore is the event log with the read paths the engine needs.
type LogStore interface {
	eventstore.Store
	eventstore.StatusIndex
	eventstore.Publications
}

// EngineDeps holds the connections NewEngine assembles the engine on.
type EngineDeps struct {
	Config  *infra.Config
	Pool    *pgxpool.Pool // nil with the memory backend
	Redis   *redis.Client // nil keeps credentials in process memory
	Metrics *infra.Metrics
	Logger  *slog.Logger
}

// Engine is the assembled permission engine.
type Engine struct {
	Store    LogStore
	Registry *eventstore.Registry
	Bus      *eventbus.Bus
	Outbox   *outbox.Outbox
	Repo     *permission.Repository
	Service  *permission.Service
	Client   *provider.RegionClient
	Poller   *reactor.AsyncPoller
	Sweeper  *sweep.Sweeper
	Verifier *provider.CallbackVerifier
	Health   map[string]infra.Pinger
}

// NewEngine wires the store, bus, outbox, region handlers and collaborators.
// Background fetches stop when ctx is cancelled.
func NewEngine(ctx context.Context, deps EngineDeps) (*Engine, error) {
	cfg, logger := deps.Config, deps.Logger
	e := &Engine{
		Registry: eventstore.NewRegistry(),
		Health:   make(map[string]infra.Pinger),
	}

	switch cfg.StoreBackend {
	case "memory":
		e.Store = eventstore.NewMemoryStore(e.Registry)
	default:
		if deps.Pool == nil {
			return nil, fmt.Errorf("postgres store backend without a pool")
		}
		e.Store = eventstore.NewPostgresStore(deps.Pool, repository.NewPermissionEventRepository(), repository.NewPublicationRepository(), e.Registry)
		e.Health["postgres"] = deps.Pool
	}

	var kv cache.Store = cache.NewInMemoryStore()
	if deps.Redis != nil {
		rs := cache.NewRedisStore(deps.Redis, "gridshare:")
		e.Health["redis"] = rs
		kv = rs
	}
	tokens := credential.NewTokenStore(kv, cfg.CredentialTTL)

	profile, err := dataneed.LoadProfile(cfg.RegionProfile)
	if err != nil {
		return nil, err
	}
	if profile.Region.ID != cfg.RegionID {
		return nil, fmt.Errorf("region profile %s does not match REGION_ID %s", profile.Region.ID, cfg.RegionID)
	}
	catalog, err := dataneed.LoadCatalog(cfg.DataNeedsFile)
	if err != nil {
		return nil, err
	}
	calc := dataneed.NewCalculator(profile.Region, profile.Rules, catalog, dataneed.WithLogger(logger))

	e.Bus = eventbus.New(logger, deps.Metrics)
	e.Outbox = outbox.New(e.Store, e.Bus, logger, deps.Metrics)
	e.Repo = permission.NewRepository(e.Store)
	e.Service = permission.NewService(e.Repo, e.Outbox, calc, logger)

	e.Client, err = provider.NewRegionClient(clientConfig(cfg), tokens, logger)
	if err != nil {
		return nil, err
	}
	e.Poller = reactor.NewAsyncPoller(ctx, e.Client, e.Outbox, cfg.FetchTimeout, logger)

	err = region.Register(e.Registry, e.Bus, region.NewCommon(cfg.RegionID, region.CommonDeps{
		Repo:        e.Repo,
		Outbox:      e.Outbox,
		Sender:      e.Client,
		Poller:      e.Poller,
		Terminator:  e.Client,
		Credentials: tokens,
		Dedupe:      guard.NewIdempotencyGuard(cfg.AcceptedDedupeTTL),
		Logger:      logger,
	}))
	if err != nil {
		return nil, err
	}

	resender := reactor.NewSendHandler(e.Repo, e.Client, e.Outbox, logger)
	e.Sweeper = sweep.New(e.Store, e.Service, resender, sweep.Config{
		Interval:    cfg.SweepInterval,
		StaleAfter:  cfg.SweepStaleAfter,
		ResendAfter: cfg.SweepResendAfter,
	}, logger, deps.Metrics)
	e.Verifier = provider.NewCallbackVerifier(cfg.CallbackSecret, cfg.CallbackTolerance)

	logger.Info("permission engine assembled",
		"region", cfg.RegionID,
		"store", cfg.StoreBackend,
		"data_needs", catalog.Len(),
	)
	return e, nil
}

func clientConfig(cfg *infra.Config) provider.ClientConfig {
	cc := provider.ClientConfig{
		RegionID:        cfg.RegionID,
		BaseURL:         cfg.RegionBaseURL,
		Timeout:         cfg.RegionTimeout,
		RPS:             cfg.RegionRPS,
		Burst:           cfg.RegionBurst,
		BreakerFailures: cfg.BreakerFails,
		BreakerReset:    cfg.BreakerTimeout,
	}
	if cfg.OAuthClientID != "" {
		cc.App = &clientcredentials.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			TokenURL:     cfg.OAuthTokenURL,
		}
		cc.Customer = &oauth2.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.OAuthAuthURL,
				TokenURL: cfg.OAuthTokenURL,
			},
		}
	}
	return cc
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(e *Engine, gatherer prometheus.Gatherer, metrics *infra.Metrics, logger *slog.Logger) chi.Router {
	permissionHandler := handler.NewPermissionHandler(e.Service, e.Repo, logger)
	callbackHandler := handler.NewCallbackHandler(e.Verifier, e.Service, logger)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger, metrics))
	r.Use(handler.JSONContentType)

	r.Get("/health", handler.HealthHandler(e.Health))
	r.Method("GET", "/metrics", infra.MetricsHandler(gatherer))

	r.Route("/permission-requests", func(r chi.Router) {
		r.Post("/", permissionHandler.Create)
		r.Get("/{id}", permissionHandler.Get)
		r.Get("/{id}/events", permissionHandler.Events)
	})

	// Raw body required for signature verification
	r.Post("/region/callbacks", callbackHandler.Handle)

	return r
}
