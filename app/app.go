// Package app wires configuration into a running service: the tenant directory and
// its source, the invalidation bus, the SQL store, the scheduler and the HTTP server
// with its site and admin route groups.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/observability"
	"github.com/hyvewellness/tenantgate/scheduler"
	"github.com/hyvewellness/tenantgate/server"
	"github.com/hyvewellness/tenantgate/store"
	"github.com/hyvewellness/tenantgate/store/mongostore"
	"github.com/hyvewellness/tenantgate/tenant"
	"github.com/hyvewellness/tenantgate/tenant/invalidation"
)

const (
	SitePrefix  = "/api/v1"
	AdminPrefix = "/admin"
)

// App is the assembled service.
type App struct {
	cfg *config.Config
	log logger.Logger

	provider  observability.Provider
	db        database.Interface
	ownsDB    bool
	mongo     *mongostore.Source
	bus       invalidation.Bus
	tenants   *store.TenantRepository
	directory *tenant.CachedDirectory
	chain     *tenant.Chain
	scheduler *scheduler.Scheduler
	server    *server.Server
	registry  *ModuleRegistry

	site  *echo.Group
	admin *echo.Group

	// cancels the bus subscription
	stop         context.CancelFunc
	shutdownOnce sync.Once
}

// New builds the service from cfg.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	return NewWithOptions(ctx, cfg, log, nil)
}

// NewWithOptions builds the service, preferring the dependencies set in opts. On
// error every resource opened so far is released.
func NewWithOptions(ctx context.Context, cfg *config.Config, log logger.Logger, opts *Options) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts == nil {
		opts = &Options{}
	}

	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.release(context.Background())
		}
	}()

	if a.provider, err = observability.NewProvider(cfg, log); err != nil {
		return nil, fmt.Errorf("app: observability: %w", err)
	}

	if err = a.openDatabase(ctx, opts); err != nil {
		return nil, err
	}

	if a.bus, err = a.buildBus(ctx, opts); err != nil {
		return nil, fmt.Errorf("app: invalidation bus: %w", err)
	}
	if a.db != nil {
		a.tenants = store.NewTenantRepository(a.db, a.bus, log)
	}

	source, err := a.buildSource(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("app: tenant source: %w", err)
	}
	dirCfg := cfg.Tenancy.Directory
	a.directory = tenant.NewCachedDirectory(source,
		tenant.WithTTL(dirCfg.TTL),
		tenant.WithStaleGracePeriod(dirCfg.StaleGrace),
		tenant.WithReservedHosts(cfg.Tenancy.ReservedHosts),
		tenant.WithLogger(log),
	)

	var subCtx context.Context
	subCtx, a.stop = context.WithCancel(context.Background())
	if err = invalidation.InvalidateOn(subCtx, a.bus, a.directory, log); err != nil {
		return nil, fmt.Errorf("app: subscribe directory: %w", err)
	}

	a.scheduler = scheduler.New(log)
	if dirCfg.Refresh > 0 {
		if err = a.scheduler.Every(scheduler.DirectoryRefreshJobID, dirCfg.Refresh, scheduler.RefreshJob(a.directory)); err != nil {
			return nil, err
		}
	}

	a.chain = tenant.NewChain(a.directory, tenant.ChainConfig{
		Header:              cfg.Tenancy.Header,
		ForwardedHostHeader: cfg.Tenancy.ForwardedHost.Header,
		QueryParam:          cfg.Tenancy.QueryFallback.Param,
		IgnoreForwardedHost: !cfg.Tenancy.ForwardedHost.Enabled,
		QueryFallback:       cfg.Tenancy.QueryFallback.Enabled,
	}, log)
	log.Info().Strs("strategies", a.chain.Strategies()).Msg("Tenant resolution chain configured")

	if a.server, err = server.New(cfg, log); err != nil {
		return nil, err
	}
	a.addReadinessChecks()

	a.site = a.server.Group(SitePrefix,
		server.TenantMiddleware(a.chain, log),
		server.RateLimit(cfg.App.Rate),
	)
	a.admin = a.server.Group(AdminPrefix,
		server.AdminAccess(cfg.Admin.AllowCIDRs, cfg.Admin.TrustedProxies),
		server.RateLimit(cfg.App.Rate),
	)
	a.scheduler.RegisterRoutes(server.NewHandlerRegistry(cfg), a.admin)

	a.registry = NewModuleRegistry(&ModuleDeps{
		Logger:    log,
		Config:    cfg,
		DB:        a.db,
		Tenants:   a.tenants,
		Directory: a.directory,
		Scheduler: a.scheduler,
	}, Routes{Site: a.site, Admin: a.admin})
	return a, nil
}

func (a *App) openDatabase(ctx context.Context, opts *Options) error {
	switch {
	case opts.Database != nil:
		a.db = opts.Database
	case config.IsDatabaseConfigured(&a.cfg.Database):
		conn, err := database.Open(ctx, &a.cfg.Database, a.log)
		if err != nil {
			return fmt.Errorf("app: database: %w", err)
		}
		a.db = conn
		a.ownsDB = true
	default:
		a.log.Info().Msg("No database configured, tenant-owned routes are disabled")
		return nil
	}

	if a.cfg.Database.Migrate {
		if err := store.Migrate(ctx, a.db, a.log); err != nil {
			return fmt.Errorf("app: migrate: %w", err)
		}
	}
	return nil
}

func (a *App) addReadinessChecks() {
	a.server.AddReadinessCheck("directory", a.directory.Ready)
	if a.db != nil {
		a.server.AddReadinessCheck("database", a.db.Health)
	}
	if a.mongo != nil {
		a.server.AddReadinessCheck("mongo", a.mongo.Health)
	}
}

// RegisterModule initializes m and mounts its routes.
func (a *App) RegisterModule(m Module) error {
	if err := a.registry.Register(m); err != nil {
		return fmt.Errorf("app: module %s: %w", m.Name(), err)
	}
	return nil
}

// Server returns the HTTP server.
func (a *App) Server() *server.Server { return a.server }

// Directory returns the cached tenant directory.
func (a *App) Directory() *tenant.CachedDirectory { return a.directory }

// Bus returns the invalidation bus.
func (a *App) Bus() invalidation.Bus { return a.bus }

// Scheduler returns the job scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }
