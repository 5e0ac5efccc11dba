// Package tenant resolves which tenant an HTTP request belongs to and carries the
// result through the request context.
//
// Resolution walks an ordered Chain of strategies (explicit header, forwarded host,
// origin, host, query parameter). Identifier strategies look a tenant up by slug or id;
// domain strategies normalize the host and run it through the domain matcher, which
// tries exact domains, then wildcard patterns (*.example.com), then the first DNS label
// as a slug. The first strategy that yields an active tenant wins.
//
// Tenants come from a Source and are served from a CachedDirectory, an immutable
// Index rebuilt on TTL expiry or explicit invalidation. Inactive tenants are never
// resolvable.
//
// The resolved tenant lives only in the request context:
//
//	res, err := chain.Resolve(ctx, req)
//	if err != nil {
//	    // reject the request, never fall back to a default tenant
//	}
//	ctx = tenant.WithResolution(ctx, res)
//	id, _ := tenant.IDFromContext(ctx)
package tenant
