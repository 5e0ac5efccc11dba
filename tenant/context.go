package tenant

import "context"

// ctxKey ensures tenant context keys do not collide with external packages.
type ctxKey string

const (
	resolutionKey ctxKey = "tenant_resolution"
	idKey         ctxKey = "tenant_id"
)

// WithResolution attaches a successful resolution to ctx: the full record for handlers
// and the bare id for scoping filters. A nil resolution leaves ctx unchanged.
func WithResolution(ctx context.Context, res *Resolution) context.Context {
	if res == nil || res.Tenant == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, resolutionKey, res)
	return context.WithValue(ctx, idKey, res.Tenant.ID)
}

// WithTenant attaches a tenant that was chosen explicitly rather than resolved from a
// request, e.g. by a maintenance job acting on a named tenant.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	if t == nil {
		return ctx
	}
	return WithResolution(ctx, &Resolution{Tenant: t, Strategy: StrategyExplicit})
}

// ResolutionFromContext returns the resolution attached by WithResolution.
func ResolutionFromContext(ctx context.Context) (*Resolution, bool) {
	if ctx == nil {
		return nil, false
	}
	res, ok := ctx.Value(resolutionKey).(*Resolution)
	if !ok || res == nil || res.Tenant == nil {
		return nil, false
	}
	return res, true
}

// FromContext returns the resolved tenant.
func FromContext(ctx context.Context) (*Tenant, bool) {
	res, ok := ResolutionFromContext(ctx)
	if !ok {
		return nil, false
	}
	return res.Tenant, true
}

// IDFromContext returns the resolved tenant id.
func IDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(idKey).(int64)
	return id, ok
}

// MustFromContext is FromContext for code that only runs behind the tenant middleware.
// It panics with ErrNoTenantInContext otherwise.
func MustFromContext(ctx context.Context) *Tenant {
	t, ok := FromContext(ctx)
	if !ok {
		panic(ErrNoTenantInContext)
	}
	return t
}
