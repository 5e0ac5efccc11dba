package app

import (
	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/scheduler"
	"github.com/hyvewellness/tenantgate/server"
	"github.com/hyvewellness/tenantgate/store"
	"github.com/hyvewellness/tenantgate/tenant"
)

// Module is a feature that contributes routes and owns its own resources.
type Module interface {
	Name() string
	Init(deps *ModuleDeps) error
	RegisterRoutes(hr *server.HandlerRegistry, r Routes)
	Shutdown() error
}

// Routes are the two route groups a module may mount on. Site routes run behind
// tenant resolution; admin routes behind the admin address allowlist.
type Routes struct {
	Site  server.Router
	Admin server.Router
}

// ModuleDeps are the shared services injected into every module. DB and Tenants are
// nil when no database is configured.
type ModuleDeps struct {
	Logger    logger.Logger
	Config    *config.Config
	DB        database.Interface
	Tenants   *store.TenantRepository
	Directory *tenant.CachedDirectory
	Scheduler *scheduler.Scheduler
}

// ModuleRegistry initializes modules, mounts their routes and shuts them down in
// registration order.
type ModuleRegistry struct {
	modules []Module
	deps    *ModuleDeps
	routes  Routes
	hr      *server.HandlerRegistry
	logger  logger.Logger
}

func NewModuleRegistry(deps *ModuleDeps, routes Routes) *ModuleRegistry {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &ModuleRegistry{
		deps:   deps,
		routes: routes,
		hr:     server.NewHandlerRegistry(deps.Config),
		logger: log,
	}
}

// Register initializes module and mounts its routes. A module whose Init fails is
// not kept.
func (r *ModuleRegistry) Register(module Module) error {
	r.logger.Info().Str("module", module.Name()).Msg("Registering module")
	if err := module.Init(r.deps); err != nil {
		return err
	}
	r.modules = append(r.modules, module)

	r.logger.Info().Str("module", module.Name()).Msg("Registering module routes")
	module.RegisterRoutes(r.hr, r.routes)
	return nil
}

// Modules returns the registered modules in registration order.
func (r *ModuleRegistry) Modules() []Module {
	return append([]Module(nil), r.modules...)
}

// Shutdown shuts every module down; failures are logged and do not stop the others.
func (r *ModuleRegistry) Shutdown() error {
	for _, module := range r.modules {
		r.logger.Info().Str("module", module.Name()).Msg("Shutting down module")
		if err := module.Shutdown(); err != nil {
			r.logger.Error().Err(err).Str("module", module.Name()).Msg("Failed to shutdown module")
		}
	}
	return nil
}
