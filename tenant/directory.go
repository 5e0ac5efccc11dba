package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyvewellness/tenantgate/logger"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultDirectoryTTL     = 5 * time.Minute
	DefaultStaleGracePeriod = 30 * time.Minute

	// bounds a shared load; it no longer follows the request that started it
	loadTimeout = 30 * time.Second

	loadKey = "directory"
)

// Directory is the lookup surface the resolution chain depends on.
type Directory interface {
	// ByIdentifier looks up an active tenant by slug, then by numeric id.
	ByIdentifier(ctx context.Context, identifier string) (*Tenant, Rule, error)
	// ByDomain runs the domain matcher.
	ByDomain(ctx context.Context, domain string) (*Tenant, Rule, error)
}

// DirectoryOption configures a CachedDirectory.
type DirectoryOption func(*directoryConfig)

type directoryConfig struct {
	ttl              time.Duration
	staleGracePeriod time.Duration // how long past expiry a snapshot may be served when the source fails
	reserved         []string
	log              logger.Logger
	now              func() time.Time
}

// WithTTL sets how long a snapshot is served before the source is read again.
func WithTTL(ttl time.Duration) DirectoryOption {
	return func(c *directoryConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithStaleGracePeriod sets how long an expired snapshot may still be served while the
// source is failing. Zero disables stale serving.
func WithStaleGracePeriod(d time.Duration) DirectoryOption {
	return func(c *directoryConfig) {
		if d >= 0 {
			c.staleGracePeriod = d
		}
	}
}

// WithReservedHosts replaces DefaultReservedHosts.
func WithReservedHosts(hosts []string) DirectoryOption {
	return func(c *directoryConfig) {
		normalized := make([]string, 0, len(hosts))
		for _, h := range hosts {
			if h = NormalizeDomain(h); h != "" {
				normalized = append(normalized, h)
			}
		}
		c.reserved = normalized
	}
}

// WithLogger sets the logger used for load failures and index conflicts.
func WithLogger(log logger.Logger) DirectoryOption {
	return func(c *directoryConfig) {
		if log != nil {
			c.log = log
		}
	}
}

type snapshot struct {
	index    *Index
	loadedAt time.Time
	// invalidated snapshots are reloaded on next use and are never served stale
	invalidated bool
}

// CachedDirectory serves lookups from an immutable Index built from a Source. The index
// is rebuilt when its TTL expires or after Invalidate; concurrent rebuilds collapse into
// one source read.
type CachedDirectory struct {
	source Source
	cfg    directoryConfig

	mu         sync.RWMutex
	current    *snapshot
	generation uint64
	sf         singleflight.Group
}

// NewCachedDirectory creates a directory over source. Nothing is loaded until the first
// lookup or Refresh.
func NewCachedDirectory(source Source, opts ...DirectoryOption) *CachedDirectory {
	cfg := directoryConfig{
		ttl:              DefaultDirectoryTTL,
		staleGracePeriod: DefaultStaleGracePeriod,
		reserved:         DefaultReservedHosts,
		log:              logger.Nop(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &CachedDirectory{source: source, cfg: cfg}
}

// ByIdentifier implements Directory.
func (d *CachedDirectory) ByIdentifier(ctx context.Context, identifier string) (*Tenant, Rule, error) {
	idx, err := d.Snapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	return idx.ByIdentifier(identifier)
}

// ByDomain implements Directory.
func (d *CachedDirectory) ByDomain(ctx context.Context, domain string) (*Tenant, Rule, error) {
	idx, err := d.Snapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	return idx.Match(domain)
}

// Snapshot returns the current index, loading it from the source when missing, expired
// or invalidated. If the load fails, an expired snapshot still inside its grace period
// is returned instead of the error. An invalidated snapshot is not: it may still list a
// tenant that has since been deactivated.
func (d *CachedDirectory) Snapshot(ctx context.Context) (*Index, error) {
	if d == nil || d.source == nil {
		return nil, ErrDirectoryUnavailable
	}

	d.mu.RLock()
	snap := d.current
	d.mu.RUnlock()

	now := d.cfg.now()
	if snap != nil && !snap.invalidated && now.Sub(snap.loadedAt) <= d.cfg.ttl {
		return snap.index, nil
	}

	idx, err := d.sharedLoad(ctx)
	if err != nil {
		if snap != nil && !snap.invalidated && now.Sub(snap.loadedAt) <= d.cfg.ttl+d.cfg.staleGracePeriod {
			d.cfg.log.Warn().
				Err(err).
				Dur("age", now.Sub(snap.loadedAt)).
				Msg("Serving stale tenant directory after load failure")
			return snap.index, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	return idx, nil
}

// Refresh reloads the index from the source regardless of its age.
func (d *CachedDirectory) Refresh(ctx context.Context) error {
	if d == nil || d.source == nil {
		return ErrDirectoryUnavailable
	}
	if _, err := d.sharedLoad(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	return nil
}

// sharedLoad joins the load in flight or starts one. The load runs detached from ctx so
// a caller that gives up cannot fail the load for the callers waiting on it; that
// caller alone gets ctx.Err().
func (d *CachedDirectory) sharedLoad(ctx context.Context) (*Index, error) {
	ch := d.sf.DoChan(loadKey, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return d.load(loadCtx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate marks the current snapshot as out of date. A load that started before the
// call stores its result already invalidated, so the next lookup reads the source again.
func (d *CachedDirectory) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.generation++
	if d.current != nil && !d.current.invalidated {
		snap := *d.current
		snap.invalidated = true
		d.current = &snap
	}
}

// Ready reports whether a snapshot can be served.
func (d *CachedDirectory) Ready(ctx context.Context) error {
	_, err := d.Snapshot(ctx)
	return err
}

func (d *CachedDirectory) load(ctx context.Context) (*Index, error) {
	d.mu.RLock()
	gen := d.generation
	d.mu.RUnlock()

	start := d.cfg.now()
	tenants, err := d.source.Tenants(ctx)
	if err != nil {
		recordRefresh(ctx, d.cfg.now().Sub(start), 0, err)
		d.cfg.log.Error().Err(err).Msg("Failed to load tenant directory")
		return nil, err
	}

	idx := BuildIndex(tenants, d.cfg.reserved)
	for _, c := range idx.Conflicts() {
		d.cfg.log.Warn().
			Str("field", c.Field).
			Str("value", c.Value).
			Int64("tenant_id", c.TenantID).
			Int64("owner_id", c.OwnerID).
			Msg("Ignoring duplicate tenant key")
	}

	d.mu.Lock()
	d.current = &snapshot{index: idx, loadedAt: start, invalidated: gen != d.generation}
	d.mu.Unlock()

	elapsed := d.cfg.now().Sub(start)
	recordRefresh(ctx, elapsed, idx.Len(), nil)
	d.cfg.log.Debug().
		Int("tenants", idx.Len()).
		Dur("elapsed", elapsed).
		Msg("Tenant directory loaded")
	return idx, nil
}
