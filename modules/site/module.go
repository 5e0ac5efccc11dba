// Package site serves the tenant-scoped API: the resolved tenant, its published pages
// and its settings. Every route runs behind tenant resolution, and every query is
// scoped to the resolved tenant.
package site

import (
	"github.com/hyvewellness/tenantgate/app"
	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/modules"
	"github.com/hyvewellness/tenantgate/server"
	"github.com/hyvewellness/tenantgate/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type Module struct {
	log      logger.Logger
	cfg      *config.Config
	pages    *store.PageRepository
	settings *store.SettingRepository
}

func NewModule() *Module {
	return &Module{}
}

func (m *Module) Name() string {
	return "site"
}

func (m *Module) Init(deps *app.ModuleDeps) error {
	m.log = deps.Logger
	m.cfg = deps.Config
	if deps.DB != nil {
		m.pages = store.NewPageRepository(deps.DB, deps.Logger)
		m.settings = store.NewSettingRepository(deps.DB)
	}
	return nil
}

// RegisterRoutes mounts GET /tenant always, and the page and setting routes only
// when a database is configured.
func (m *Module) RegisterRoutes(hr *server.HandlerRegistry, r app.Routes) {
	server.GET(hr, r.Site, "/tenant", m.currentTenant)

	if m.pages == nil {
		return
	}
	server.GET(hr, r.Site, "/pages", m.listPages)
	server.GET(hr, r.Site, "/pages/:slug", m.getPage)
	server.GET(hr, r.Site, "/settings", m.listSettings)
	server.PUT(hr, r.Site, "/settings/:key", m.putSetting)
}

func (m *Module) Shutdown() error {
	return nil
}

type EmptyRequest struct{}

// TenantResponse is the public view of the resolved tenant.
type TenantResponse struct {
	ID         int64          `json:"id"`
	Slug       string         `json:"slug"`
	Name       string         `json:"name"`
	Domain     string         `json:"domain,omitempty"`
	TemplateID *int64         `json:"template_id,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
	Strategy   string         `json:"strategy"`
}

type ListPagesRequest struct {
	Limit  int `query:"limit" validate:"min=0"`
	Offset int `query:"offset" validate:"min=0"`
}

type ListPagesResponse struct {
	Pages  []store.Page `json:"pages"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

type GetPageRequest struct {
	Slug string `param:"slug" validate:"required,tenantslug"`
}

type SettingsResponse struct {
	Settings map[string]string `json:"settings"`
}

type PutSettingRequest struct {
	Key   string `param:"key" validate:"required,max=100"`
	Value string `json:"value" validate:"max=65535"`
}

type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (m *Module) currentTenant(_ EmptyRequest, ctx server.HandlerContext) (TenantResponse, server.IAPIError) {
	res, ok := ctx.Resolution()
	if !ok || res.Tenant == nil {
		return TenantResponse{}, server.NewTenantNotFoundError(nil)
	}
	t := res.Tenant
	return TenantResponse{
		ID:         t.ID,
		Slug:       t.Slug,
		Name:       t.Name,
		Domain:     t.Domain,
		TemplateID: t.TemplateID,
		Settings:   t.Settings,
		Strategy:   res.Strategy,
	}, nil
}

func (m *Module) listPages(req ListPagesRequest, ctx server.HandlerContext) (ListPagesResponse, server.IAPIError) {
	scope, apiErr := m.scope(ctx)
	if apiErr != nil {
		return ListPagesResponse{}, apiErr
	}
	if req.Limit == 0 {
		req.Limit = defaultPageLimit
	}
	req.Limit = min(req.Limit, maxPageLimit)

	pages, err := m.pages.List(ctx.Echo.Request().Context(), scope, store.ListOptions{
		Limit:         req.Limit,
		Offset:        req.Offset,
		PublishedOnly: true,
	})
	if err != nil {
		return ListPagesResponse{}, modules.StoreError(m.log, err, "page")
	}
	if pages == nil {
		pages = []store.Page{}
	}
	return ListPagesResponse{Pages: pages, Limit: req.Limit, Offset: req.Offset}, nil
}

// getPage hides drafts behind the same 404 as a missing slug.
func (m *Module) getPage(req GetPageRequest, ctx server.HandlerContext) (*store.Page, server.IAPIError) {
	scope, apiErr := m.scope(ctx)
	if apiErr != nil {
		return nil, apiErr
	}
	page, err := m.pages.GetBySlug(ctx.Echo.Request().Context(), scope, req.Slug)
	if err != nil {
		return nil, modules.StoreError(m.log, err, "page")
	}
	if !page.IsPublished {
		return nil, server.NewNotFoundError("page")
	}
	return page, nil
}

func (m *Module) listSettings(_ EmptyRequest, ctx server.HandlerContext) (SettingsResponse, server.IAPIError) {
	scope, apiErr := m.scope(ctx)
	if apiErr != nil {
		return SettingsResponse{}, apiErr
	}
	settings, err := m.settings.All(ctx.Echo.Request().Context(), scope)
	if err != nil {
		return SettingsResponse{}, modules.StoreError(m.log, err, "setting")
	}
	return SettingsResponse{Settings: settings}, nil
}

func (m *Module) putSetting(req PutSettingRequest, ctx server.HandlerContext) (SettingResponse, server.IAPIError) {
	scope, apiErr := m.scope(ctx)
	if apiErr != nil {
		return SettingResponse{}, apiErr
	}
	if err := m.settings.Put(ctx.Echo.Request().Context(), scope, req.Key, req.Value); err != nil {
		return SettingResponse{}, modules.StoreError(m.log, err, "setting")
	}
	return SettingResponse{Key: req.Key, Value: req.Value}, nil
}

func (m *Module) scope(ctx server.HandlerContext) (database.Scope, server.IAPIError) {
	scope, err := database.ScopeFromContext(ctx.Echo.Request().Context())
	if err != nil {
		return database.Scope{}, modules.StoreError(m.log, err, "tenant")
	}
	return scope, nil
}
