package tenant

import (
	"context"
	"net/http"
	"strings"
)

// Strategy names, also used as metric and log attributes.
const (
	StrategyHeader        = "header"
	StrategyForwardedHost = "forwarded_host"
	StrategyOrigin        = "origin"
	StrategyHost          = "host"
	StrategyQuery         = "query"
	StrategyExplicit      = "explicit"
)

// Default request signal names.
const (
	DefaultHeader              = "X-Tenant-ID"
	DefaultForwardedHostHeader = "X-Forwarded-Host"
	DefaultQueryParam          = "tenant"
)

// Strategy turns one request signal into a tenant.
type Strategy interface {
	// Name identifies the strategy in diagnostics.
	Name() string
	// Extract returns the signal, or false when the request does not carry it.
	Extract(r *http.Request) (string, bool)
	// Lookup resolves an extracted signal against the directory.
	Lookup(ctx context.Context, dir Directory, signal string) (*Tenant, Rule, error)
}

// identifierStrategy resolves an explicit id or slug.
type identifierStrategy struct {
	name    string
	extract func(*http.Request) string
}

func (s identifierStrategy) Name() string { return s.name }

func (s identifierStrategy) Extract(r *http.Request) (string, bool) {
	v := strings.TrimSpace(s.extract(r))
	return v, v != ""
}

func (s identifierStrategy) Lookup(ctx context.Context, dir Directory, signal string) (*Tenant, Rule, error) {
	return dir.ByIdentifier(ctx, signal)
}

// domainStrategy resolves a host through the domain matcher.
type domainStrategy struct {
	name    string
	extract func(*http.Request) string
}

func (s domainStrategy) Name() string { return s.name }

func (s domainStrategy) Extract(r *http.Request) (string, bool) {
	v := s.extract(r)
	return v, v != ""
}

func (s domainStrategy) Lookup(ctx context.Context, dir Directory, signal string) (*Tenant, Rule, error) {
	return dir.ByDomain(ctx, signal)
}

// HeaderStrategy reads a tenant id or slug from a trusted header.
func HeaderStrategy(header string) Strategy {
	if header == "" {
		header = DefaultHeader
	}
	return identifierStrategy{
		name:    StrategyHeader,
		extract: func(r *http.Request) string { return r.Header.Get(header) },
	}
}

// ForwardedHostStrategy matches the first host of a proxy forwarded-host header.
func ForwardedHostStrategy(header string) Strategy {
	if header == "" {
		header = DefaultForwardedHostHeader
	}
	return domainStrategy{
		name:    StrategyForwardedHost,
		extract: func(r *http.Request) string { return FirstForwardedHost(r.Header.Get(header)) },
	}
}

// OriginStrategy matches the host portion of the Origin header.
func OriginStrategy() Strategy {
	return domainStrategy{
		name:    StrategyOrigin,
		extract: func(r *http.Request) string { return HostFromOrigin(r.Header.Get("Origin")) },
	}
}

// HostStrategy matches the request's own host.
func HostStrategy() Strategy {
	return domainStrategy{
		name: StrategyHost,
		extract: func(r *http.Request) string {
			if r.Host != "" {
				return NormalizeDomain(r.Host)
			}
			if r.URL != nil {
				return NormalizeDomain(r.URL.Host)
			}
			return ""
		},
	}
}

// QueryStrategy reads a tenant id or slug from a query parameter. Any client can set it,
// so it belongs in development and staging chains only.
func QueryStrategy(param string) Strategy {
	if param == "" {
		param = DefaultQueryParam
	}
	return identifierStrategy{
		name: StrategyQuery,
		extract: func(r *http.Request) string {
			if r.URL == nil {
				return ""
			}
			return r.URL.Query().Get(param)
		},
	}
}
