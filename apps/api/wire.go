package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	collectionsservice "github.com/zenGate-Global/palmyra-agri-admin/domains/collections/be/service"
	membershipsrepo "github.com/zenGate-Global/palmyra-agri-admin/domains/memberships/be/repo"
	tenantsrepo "github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/palmyra-agri-admin/domains/tenants/be/service"
	platformauth "github.com/zenGate-Global/palmyra-agri-admin/platform/go/auth"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/orchestrator"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/scopeddb"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/security"
	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
	tenantcache "github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant/cache"
)

// eventStore is the security sink that can also list recent events.
type eventStore interface {
	security.Sink
	Recent(ctx context.Context, filter security.EventFilter) ([]security.Event, error)
}

// backends are the storage implementations selected by configuration.
type backends struct {
	tenants     tenantsservice.Repository
	lookup      tenant.Store
	memberships security.MembershipReader
	admins      security.AdminRoleReader
	selections  tenant.SelectionStore
	events      eventStore
	collections scopeddb.Store
	ready       func(ctx context.Context) error
	close       func()
}

// app is the wired API.
type app struct {
	backends  backends
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	validator *security.Validator
	cache     tenant.Cache
	resolver  *tenant.Resolver
	orch      *orchestrator.Orchestrator
	functions collectionsservice.Invoker
	gateway   *scopeddb.Gateway
	redis     *redis.Client

	// session is the service credential of function calls; nil without FUNCTIONS_BASE_URL.
	session     *platformauth.SessionStore
	unsubscribe func()
}

func (a *app) Close() {
	if a.session != nil {
		a.unsubscribe()
		a.session.Close()
	}
	a.resolver.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.backends.close()
}

func buildBackends(ctx context.Context, cfg config, logger *zap.Logger) (backends, error) {
	if cfg.inMemory() {
		logger.Warn("DATABASE_URL not set; using in-memory stores, data is lost on restart")
		store := scopeddb.NewMemoryStore(append(collectionsservice.Names(), membershipsrepo.Collection)...)
		dir := devDirectory{store: store}
		tenants := tenantsrepo.NewMemoryRepository()
		return backends{
			tenants:     tenants,
			lookup:      tenants,
			memberships: dir,
			admins:      dir,
			selections:  tenant.NewMemorySelections(),
			events:      security.NewMemorySink(),
			collections: store,
			ready:       func(context.Context) error { return nil },
			close:       func() {},
		}, nil
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		return backends{}, fmt.Errorf("init postgres pool: %w", err)
	}
	if cfg.Bootstrap {
		if err := persistence.Bootstrap(ctx, pool, cfg.DBSchema); err != nil {
			persistence.ClosePool(pool)
			return backends{}, fmt.Errorf("bootstrap schema: %w", err)
		}
		logger.Info("database schema bootstrapped", zap.String("schema", cfg.DBSchema))
	}

	db := persistence.NewDB(persistence.DBConfig{Pool: pool, Schema: cfg.DBSchema})
	tenants := persistence.NewTenantStore(db)
	return backends{
		tenants:     tenantsrepo.NewPostgresRepository(tenants),
		lookup:      tenants,
		memberships: persistence.NewMembershipStore(db),
		admins:      persistence.NewAdminStore(db),
		selections:  persistence.NewSelectionStore(db),
		events:      persistence.NewSecurityEventStore(db),
		collections: persistence.NewCollectionStore(db),
		ready:       pool.Ping,
		close:       func() { persistence.ClosePool(pool) },
	}, nil
}

func buildApp(ctx context.Context, cfg config, logger *zap.Logger) (*app, error) {
	b, err := buildBackends(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{backends: b, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)
	clk := clock.New()

	a.validator = security.NewValidator(security.Config{
		Memberships:         b.memberships,
		Admins:              b.admins,
		Sink:                b.events,
		Clock:               clk,
		Logger:              logger.Named("security"),
		Metrics:             a.metrics,
		SuspiciousThreshold: cfg.SuspiciousThreshold,
		SuspiciousWindow:    cfg.SuspiciousWindow,
		BlockSuspicious:     cfg.BlockSuspicious,
		RecordGrants:        cfg.RecordGrants,
	})

	var (
		cache   tenant.Cache
		limiter orchestrator.Limiter
	)
	if cfg.CacheBackend == "redis" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup; cache misses and limiter fail open", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cache = tenantcache.NewRedis(a.redis, cfg.CacheTTL, logger.Named("tenant-cache"))
		limiter = orchestrator.NewRedisLimiter(a.redis, cfg.RateLimitWindow, cfg.RateLimitMax)
	} else {
		cache = tenantcache.NewMemory(clk, cfg.CacheTTL)
		limiter = orchestrator.NewMemoryLimiter(clk, cfg.RateLimitWindow, cfg.RateLimitMax)
	}

	a.cache = cache
	a.resolver = tenant.NewResolver(tenant.ResolverConfig{
		Store:       b.lookup,
		Validator:   a.validator,
		Memberships: b.memberships,
		Cache:       cache,
		Selections:  b.selections,
		Logger:      logger.Named("tenant-resolver"),
		Metrics:     a.metrics,
		BaseDomain:  cfg.BaseDomain,
	})

	retries := cfg.Retries
	orchCfg := orchestrator.Config{
		Limiter:  limiter,
		Recorder: a.validator,
		Clock:    clk,
		Logger:   logger.Named("orchestrator"),
		Metrics:  a.metrics,
		Retries:  &retries,
		Timeout:  cfg.CallTimeout,
	}
	a.orch = orchestrator.New(orchCfg)

	if cfg.FunctionsBaseURL != "" {
		if err := a.wireFunctions(ctx, cfg, orchCfg, clk, logger); err != nil {
			a.Close()
			return nil, err
		}
	}

	schemas := scopeddb.NewSchemas()
	if err := collectionsservice.RegisterSchemas(schemas); err != nil {
		a.Close()
		return nil, err
	}
	a.gateway = scopeddb.NewGateway(scopeddb.Config{
		Store:     b.collections,
		Validator: a.validator,
		Schemas:   schemas,
		Logger:    logger.Named("scopeddb"),
		Metrics:   a.metrics,
	})

	return a, nil
}

// wireFunctions builds the function invoker on an orchestrator that carries
// the service session. A rejected session is refreshed once per call; one
// that still fails is cleared so the next call mints a new one. Every
// session change evicts the resolver's tenant snapshots.
func (a *app) wireFunctions(ctx context.Context, cfg config, orchCfg orchestrator.Config, clk clock.Clock, logger *zap.Logger) error {
	session, err := buildServiceSession(ctx, cfg, clk, logger.Named("service-session"))
	if err != nil {
		return err
	}
	a.session = session
	a.unsubscribe = session.OnSessionChange(func(platformauth.Session) {
		a.resolver.InvalidateAll(context.Background())
	})

	fnLogger := logger.Named("functions")
	orchCfg.Logger = fnLogger
	orchCfg.Tokens = session
	orchCfg.OnAuthFailure = func(ctx context.Context, callName string) {
		fnLogger.Warn("service session rejected after refresh", zap.String("call", callName), zap.String("service_user", cfg.FunctionsServiceUser))
		session.Clear()
	}

	a.functions = orchestrator.NewFunctionInvoker(orchestrator.New(orchCfg), orchestrator.FunctionsConfig{
		BaseURL:  cfg.FunctionsBaseURL,
		Client:   &http.Client{},
		Recorder: a.validator,
	})
	return nil
}
