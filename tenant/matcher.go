package tenant

import "strings"

// Match finds the active tenant for a domain. Rules run in a fixed order and the first
// hit wins:
//
//  1. exact: the primary domain of any tenant
//  2. wildcard: "*.base" matches "base" and any host ending in ".base"
//  3. subdomain_slug: the first DNS label equals a tenant slug
//
// The domain is normalized first. Reserved hosts and empty input never match.
// A miss is reported as ErrTenantNotFound (or ErrTenantInactive when the domain
// belongs to a deactivated tenant); it is a normal outcome, not a failure.
func (idx *Index) Match(domain string) (*Tenant, Rule, error) {
	domain = NormalizeDomain(domain)
	if domain == "" {
		return nil, "", ErrTenantNotFound
	}
	if IsReservedHost(domain, idx.reserved) {
		return nil, "", ErrReservedHost
	}

	if t, ok := idx.byPrimary[domain]; ok {
		return t.Clone(), RuleExact, nil
	}

	for _, w := range idx.wildcards {
		if domain == w.base || strings.HasSuffix(domain, "."+w.base) {
			return w.tenant.Clone(), RuleWildcard, nil
		}
	}

	label, _, _ := strings.Cut(domain, ".")
	if t, ok := idx.bySlug[label]; ok {
		return t.Clone(), RuleSubdomainSlug, nil
	}

	if _, ok := idx.inactiveDomains[domain]; ok {
		return nil, "", ErrTenantInactive
	}
	return nil, "", ErrTenantNotFound
}
