package tenant

import (
	"cmp"
	"errors"
	"slices"
	"strconv"
	"strings"
)

// Rule names the lookup that produced a tenant.
type Rule string

const (
	RuleExact         Rule = "exact"
	RuleWildcard      Rule = "wildcard"
	RuleSubdomainSlug Rule = "subdomain_slug"
	RuleSlug          Rule = "slug"
	RuleID            Rule = "id"
)

// Conflict records a key dropped while building an index because a tenant with a lower
// id already owns it.
type Conflict struct {
	Field    string `json:"field"` // id, slug, domain, wildcard
	Value    string `json:"value"`
	TenantID int64  `json:"tenant_id"`
	OwnerID  int64  `json:"owner_id"`
}

type wildcard struct {
	base   string
	tenant *Tenant
}

// Index is an immutable lookup table over one snapshot of the tenant source.
// Only active tenants are resolvable; inactive ones are remembered so lookups can
// report ErrTenantInactive.
type Index struct {
	byID      map[int64]*Tenant
	bySlug    map[string]*Tenant
	byPrimary map[string]*Tenant
	wildcards []wildcard

	inactiveIDs     map[int64]struct{}
	inactiveSlugs   map[string]struct{}
	inactiveDomains map[string]struct{}

	reserved  []string
	conflicts []Conflict
}

// BuildIndex indexes tenants in ascending id order. When two active tenants claim the
// same slug or domain the lower id keeps it and the other claim becomes a Conflict.
// Reserved hosts are never indexed as domains. A nil reserved list means
// DefaultReservedHosts.
func BuildIndex(tenants []Tenant, reserved []string) *Index {
	if reserved == nil {
		reserved = DefaultReservedHosts
	}
	idx := &Index{
		byID:            make(map[int64]*Tenant),
		bySlug:          make(map[string]*Tenant),
		byPrimary:       make(map[string]*Tenant),
		inactiveIDs:     make(map[int64]struct{}),
		inactiveSlugs:   make(map[string]struct{}),
		inactiveDomains: make(map[string]struct{}),
		reserved:        slices.Clone(reserved),
	}

	sorted := make([]*Tenant, 0, len(tenants))
	for i := range tenants {
		sorted = append(sorted, tenants[i].Clone())
	}
	slices.SortStableFunc(sorted, func(a, b *Tenant) int { return cmp.Compare(a.ID, b.ID) })

	for _, t := range sorted {
		slug := strings.ToLower(strings.TrimSpace(t.Slug))
		if !t.IsActive {
			idx.addInactive(t, slug)
			continue
		}
		if _, dup := idx.byID[t.ID]; dup {
			idx.conflicts = append(idx.conflicts, Conflict{Field: "id", Value: strconv.FormatInt(t.ID, 10), TenantID: t.ID, OwnerID: t.ID})
			continue
		}
		idx.byID[t.ID] = t

		if slug != "" {
			idx.claim(idx.bySlug, "slug", slug, t)
		}
		if d := NormalizeDomain(t.Domain); d != "" && !IsReservedHost(d, idx.reserved) {
			idx.claim(idx.byPrimary, "domain", d, t)
		}
	}

	// Only wildcard patterns among the additional domains take part in matching; a plain
	// additional domain is kept on the record but never indexed.
	for _, t := range sorted {
		if !t.IsActive || idx.byID[t.ID] != t {
			continue
		}
		for _, base := range t.WildcardBases() {
			if IsReservedHost(base, idx.reserved) {
				continue
			}
			if owner := idx.wildcardOwner(base); owner != nil {
				if owner.ID != t.ID {
					idx.conflicts = append(idx.conflicts, Conflict{Field: "wildcard", Value: base, TenantID: t.ID, OwnerID: owner.ID})
				}
				continue
			}
			idx.wildcards = append(idx.wildcards, wildcard{base: base, tenant: t})
		}
	}
	return idx
}

func (idx *Index) addInactive(t *Tenant, slug string) {
	idx.inactiveIDs[t.ID] = struct{}{}
	if slug != "" {
		idx.inactiveSlugs[slug] = struct{}{}
	}
	if d := NormalizeDomain(t.Domain); d != "" {
		idx.inactiveDomains[d] = struct{}{}
	}
}

func (idx *Index) claim(m map[string]*Tenant, field, key string, t *Tenant) {
	if owner, ok := m[key]; ok {
		idx.conflicts = append(idx.conflicts, Conflict{Field: field, Value: key, TenantID: t.ID, OwnerID: owner.ID})
		return
	}
	m[key] = t
}

func (idx *Index) wildcardOwner(base string) *Tenant {
	for _, w := range idx.wildcards {
		if w.base == base {
			return w.tenant
		}
	}
	return nil
}

// Len returns the number of resolvable (active) tenants.
func (idx *Index) Len() int {
	return len(idx.byID)
}

// Conflicts lists the claims dropped while building the index.
func (idx *Index) Conflicts() []Conflict {
	return slices.Clone(idx.conflicts)
}

// Active returns copies of the active tenants ordered by id.
func (idx *Index) Active() []Tenant {
	out := make([]Tenant, 0, len(idx.byID))
	for _, t := range idx.byID {
		out = append(out, *t.Clone())
	}
	slices.SortFunc(out, func(a, b Tenant) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// BySlug finds the active tenant with the given slug, compared case-insensitively.
func (idx *Index) BySlug(slug string) (*Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, ErrTenantNotFound
	}
	if t, ok := idx.bySlug[slug]; ok {
		return t.Clone(), nil
	}
	if _, ok := idx.inactiveSlugs[slug]; ok {
		return nil, ErrTenantInactive
	}
	return nil, ErrTenantNotFound
}

// ByID finds the active tenant with the given id.
func (idx *Index) ByID(id int64) (*Tenant, error) {
	if t, ok := idx.byID[id]; ok {
		return t.Clone(), nil
	}
	if _, ok := idx.inactiveIDs[id]; ok {
		return nil, ErrTenantInactive
	}
	return nil, ErrTenantNotFound
}

// ByIdentifier treats identifier as a slug first and, failing that, as a numeric id.
// A purely numeric slug therefore shadows the tenant whose id has the same digits.
func (idx *Index) ByIdentifier(identifier string) (*Tenant, Rule, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, "", ErrTenantNotFound
	}

	t, slugErr := idx.BySlug(identifier)
	if slugErr == nil {
		return t, RuleSlug, nil
	}

	id, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return nil, "", slugErr
	}
	t, idErr := idx.ByID(id)
	if idErr == nil {
		return t, RuleID, nil
	}
	if errors.Is(slugErr, ErrTenantInactive) || errors.Is(idErr, ErrTenantInactive) {
		return nil, "", ErrTenantInactive
	}
	return nil, "", ErrTenantNotFound
}
