package tenant

import (
	"context"
	"maps"
	"slices"
	"strings"
)

// WildcardPrefix marks an additional domain as a wildcard pattern.
const WildcardPrefix = "*."

// Tenant is an independent branded site sharing the platform.
type Tenant struct {
	ID         int64          `json:"id"`
	Slug       string         `json:"slug"`
	Name       string         `json:"name"`
	Domain     string         `json:"domain,omitempty"`
	Domains    []string       `json:"domains,omitempty"`
	IsActive   bool           `json:"is_active"`
	TemplateID *int64         `json:"template_id,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
}

// Clone returns a deep copy so callers can never mutate a cached tenant.
func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	c.Domains = slices.Clone(t.Domains)
	c.Settings = maps.Clone(t.Settings)
	if t.TemplateID != nil {
		id := *t.TemplateID
		c.TemplateID = &id
	}
	return &c
}

// WildcardBases returns the suffixes of the tenant's wildcard patterns, normalized.
// "*.hyve.com" yields "hyve.com".
func (t *Tenant) WildcardBases() []string {
	var bases []string
	for _, d := range t.Domains {
		d = strings.TrimSpace(d)
		if !strings.HasPrefix(d, WildcardPrefix) {
			continue
		}
		if base := NormalizeDomain(strings.TrimPrefix(d, WildcardPrefix)); base != "" {
			bases = append(bases, base)
		}
	}
	return bases
}

// Source loads tenant records, active or not, from the system of record.
type Source interface {
	Tenants(ctx context.Context) ([]Tenant, error)
}

// SourceFunc adapts an ordinary function to a Source.
type SourceFunc func(ctx context.Context) ([]Tenant, error)

// Tenants calls f.
func (f SourceFunc) Tenants(ctx context.Context) ([]Tenant, error) {
	return f(ctx)
}

// StaticSource serves a fixed tenant list, typically loaded from configuration.
type StaticSource []Tenant

// Tenants implements Source.
func (s StaticSource) Tenants(_ context.Context) ([]Tenant, error) {
	out := make([]Tenant, len(s))
	for i := range s {
		out[i] = *s[i].Clone()
	}
	return out, nil
}
