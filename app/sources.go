package app

import (
	"context"
	"fmt"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/store/mongostore"
	"github.com/hyvewellness/tenantgate/tenant"
	"github.com/hyvewellness/tenantgate/tenant/invalidation"
)

// staticTenants converts tenancy.tenants into a directory source.
func staticTenants(tenants []config.TenantConfig) tenant.StaticSource {
	out := make(tenant.StaticSource, 0, len(tenants))
	for _, tc := range tenants {
		t := tenant.Tenant{
			ID:       tc.ID,
			Slug:     tc.Slug,
			Name:     tc.Name,
			Domain:   tc.Domain,
			Domains:  append([]string(nil), tc.Domains...),
			IsActive: tc.IsActive(),
			Settings: tc.Settings,
		}
		if tc.Template > 0 {
			id := tc.Template
			t.TemplateID = &id
		}
		if t.Name == "" {
			t.Name = t.Slug
		}
		out = append(out, t)
	}
	return out
}

func (a *App) buildSource(ctx context.Context, opts *Options) (tenant.Source, error) {
	if opts.Source != nil {
		return opts.Source, nil
	}

	switch a.cfg.Tenancy.Source {
	case config.SourceDatabase:
		if a.tenants == nil {
			return nil, fmt.Errorf("app: tenancy.source %q requires a database", config.SourceDatabase)
		}
		return a.tenants, nil
	case config.SourceMongo:
		src, err := mongostore.Connect(ctx, a.cfg.Mongo, a.log)
		if err != nil {
			return nil, err
		}
		a.mongo = src
		if err := src.EnsureIndexes(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Failed to ensure MongoDB tenant indexes")
		}
		return src, nil
	default:
		a.log.Info().Int("tenants", len(a.cfg.Tenancy.Tenants)).Msg("Using static tenant source")
		return staticTenants(a.cfg.Tenancy.Tenants), nil
	}
}

func (a *App) buildBus(ctx context.Context, opts *Options) (invalidation.Bus, error) {
	if opts.Bus != nil {
		return opts.Bus, nil
	}

	cfg := a.cfg.Invalidation
	switch cfg.Transport {
	case config.TransportRedis:
		return invalidation.DialRedis(ctx, invalidation.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			Database: cfg.Redis.Database,
			Channel:  cfg.Redis.Channel,
		}, a.log)
	case config.TransportAMQP:
		return invalidation.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, a.log)
	default:
		return invalidation.NewLocal(), nil
	}
}
