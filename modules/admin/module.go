// Package admin serves the operator API under the admin prefix: tenant lifecycle,
// directory inspection and cross-tenant page copies. The routes sit behind the admin
// address allowlist, never behind tenant resolution.
package admin

import (
	"github.com/hyvewellness/tenantgate/app"
	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/modules"
	"github.com/hyvewellness/tenantgate/server"
	"github.com/hyvewellness/tenantgate/store"
	"github.com/hyvewellness/tenantgate/tenant"
)

type Module struct {
	log       logger.Logger
	directory *tenant.CachedDirectory
	tenants   *store.TenantRepository
	pages     *store.PageRepository
}

func NewModule() *Module {
	return &Module{}
}

func (m *Module) Name() string {
	return "admin"
}

func (m *Module) Init(deps *app.ModuleDeps) error {
	m.log = deps.Logger
	m.directory = deps.Directory
	m.tenants = deps.Tenants
	if deps.DB != nil {
		m.pages = store.NewPageRepository(deps.DB, deps.Logger)
	}
	return nil
}

// RegisterRoutes mounts the directory routes always. Tenant and page routes need the
// database.
func (m *Module) RegisterRoutes(hr *server.HandlerRegistry, r app.Routes) {
	server.GET(hr, r.Admin, "/directory", m.directoryStatus)
	server.POST(hr, r.Admin, "/directory/refresh", m.refreshDirectory)

	if m.tenants == nil {
		return
	}
	server.GET(hr, r.Admin, "/tenants", m.listTenants)
	server.POST(hr, r.Admin, "/tenants", m.createTenant)
	server.GET(hr, r.Admin, "/tenants/:id", m.getTenant)
	server.PUT(hr, r.Admin, "/tenants/:id", m.updateTenant)
	server.POST(hr, r.Admin, "/tenants/:id/deactivate", m.deactivateTenant)
	if m.pages != nil {
		server.POST(hr, r.Admin, "/tenants/:id/pages/copy", m.copyPages)
	}
}

func (m *Module) Shutdown() error {
	return nil
}

type EmptyRequest struct{}

type DirectoryResponse struct {
	Tenants   int               `json:"tenants"`
	Conflicts []tenant.Conflict `json:"conflicts"`
}

type ListTenantsRequest struct {
	Active bool `query:"active"`
}

type ListTenantsResponse struct {
	Tenants []tenant.Tenant `json:"tenants"`
}

type TenantIDParam struct {
	ID int64 `param:"id" validate:"required,gt=0"`
}

// TenantRequest is the writable part of a tenant. IsActive defaults to true on
// create and to the stored value on update.
type TenantRequest struct {
	Slug       string         `json:"slug" validate:"required,max=63,tenantslug"`
	Name       string         `json:"name" validate:"required,max=200"`
	Domain     string         `json:"domain" validate:"omitempty,tenantdomain"`
	Domains    []string       `json:"domains" validate:"omitempty,dive,tenantdomain=wildcard"`
	TemplateID *int64         `json:"template_id" validate:"omitempty,gt=0"`
	Settings   map[string]any `json:"settings"`
	IsActive   *bool          `json:"is_active"`
}

type CreateTenantRequest struct {
	TenantRequest
}

type UpdateTenantRequest struct {
	ID int64 `param:"id" validate:"required,gt=0"`
	TenantRequest
}

type CopyPagesRequest struct {
	ID     int64  `param:"id" validate:"required,gt=0"`
	From   int64  `json:"from" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=200"`
}

type CopyPagesResponse struct {
	From   int64 `json:"from"`
	To     int64 `json:"to"`
	Copied int   `json:"copied"`
}

func (m *Module) directoryStatus(_ EmptyRequest, ctx server.HandlerContext) (DirectoryResponse, server.IAPIError) {
	idx, err := m.directory.Snapshot(ctx.Echo.Request().Context())
	if err != nil {
		m.log.Warn().Err(err).Msg("Tenant directory unavailable")
		return DirectoryResponse{}, server.NewServiceUnavailableError("Tenant directory unavailable")
	}
	conflicts := idx.Conflicts()
	if conflicts == nil {
		conflicts = []tenant.Conflict{}
	}
	return DirectoryResponse{Tenants: idx.Len(), Conflicts: conflicts}, nil
}

// refreshDirectory reloads this instance's directory from its source. Other instances
// pick the change up from the invalidation bus or their own TTL.
func (m *Module) refreshDirectory(_ EmptyRequest, ctx server.HandlerContext) (DirectoryResponse, server.IAPIError) {
	if err := m.directory.Refresh(ctx.Echo.Request().Context()); err != nil {
		m.log.Warn().Err(err).Msg("Tenant directory refresh failed")
		return DirectoryResponse{}, server.NewServiceUnavailableError("Tenant directory refresh failed")
	}
	return m.directoryStatus(EmptyRequest{}, ctx)
}

func (m *Module) listTenants(req ListTenantsRequest, ctx server.HandlerContext) (ListTenantsResponse, server.IAPIError) {
	list := m.tenants.Tenants
	if req.Active {
		list = m.tenants.ListActive
	}
	tenants, err := list(ctx.Echo.Request().Context())
	if err != nil {
		return ListTenantsResponse{}, modules.StoreError(m.log, err, "tenant")
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	return ListTenantsResponse{Tenants: tenants}, nil
}

func (m *Module) getTenant(req TenantIDParam, ctx server.HandlerContext) (*tenant.Tenant, server.IAPIError) {
	t, err := m.tenants.Get(ctx.Echo.Request().Context(), req.ID)
	if err != nil {
		return nil, modules.StoreError(m.log, err, "tenant")
	}
	return t, nil
}

func (m *Module) createTenant(req CreateTenantRequest, ctx server.HandlerContext) (server.Result[*tenant.Tenant], server.IAPIError) {
	t := &tenant.Tenant{IsActive: true}
	req.apply(t)

	if err := m.tenants.Create(ctx.Echo.Request().Context(), t); err != nil {
		return server.Result[*tenant.Tenant]{}, modules.StoreError(m.log, err, "tenant")
	}
	m.log.Info().Int64("tenant_id", t.ID).Str("slug", t.Slug).Msg("Tenant created")
	return server.Created(t), nil
}

func (m *Module) updateTenant(req UpdateTenantRequest, ctx server.HandlerContext) (*tenant.Tenant, server.IAPIError) {
	c := ctx.Echo.Request().Context()
	t, err := m.tenants.Get(c, req.ID)
	if err != nil {
		return nil, modules.StoreError(m.log, err, "tenant")
	}
	req.apply(t)

	if err := m.tenants.Update(c, t); err != nil {
		return nil, modules.StoreError(m.log, err, "tenant")
	}
	m.log.Info().Int64("tenant_id", t.ID).Bool("active", t.IsActive).Msg("Tenant updated")
	return t, nil
}

func (m *Module) deactivateTenant(req TenantIDParam, ctx server.HandlerContext) (server.NoContentResult, server.IAPIError) {
	if err := m.tenants.Deactivate(ctx.Echo.Request().Context(), req.ID); err != nil {
		return server.NoContentResult{}, modules.StoreError(m.log, err, "tenant")
	}
	m.log.Info().Int64("tenant_id", req.ID).Msg("Tenant deactivated")
	return server.NoContent(), nil
}

// copyPages copies pages from req.From into the tenant in the path. It is the only
// route that touches two tenants, so it runs under an admin scope naming both.
func (m *Module) copyPages(req CopyPagesRequest, ctx server.HandlerContext) (CopyPagesResponse, server.IAPIError) {
	c := ctx.Echo.Request().Context()
	for _, id := range []int64{req.From, req.ID} {
		if _, err := m.tenants.Get(c, id); err != nil {
			return CopyPagesResponse{}, modules.StoreError(m.log, err, "tenant")
		}
	}

	admin, err := database.NewAdminScope(req.Reason, req.From, req.ID)
	if err != nil {
		return CopyPagesResponse{}, server.NewBadRequestError(err.Error())
	}
	copied, err := m.pages.CopyPages(c, admin, req.From, req.ID)
	if err != nil {
		return CopyPagesResponse{}, modules.StoreError(m.log, err, "page")
	}
	return CopyPagesResponse{From: req.From, To: req.ID, Copied: copied}, nil
}

func (r TenantRequest) apply(t *tenant.Tenant) {
	t.Slug = r.Slug
	t.Name = r.Name
	t.Domain = r.Domain
	t.Domains = r.Domains
	t.TemplateID = r.TemplateID
	t.Settings = r.Settings
	if r.IsActive != nil {
		t.IsActive = *r.IsActive
	}
}
