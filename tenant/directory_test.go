package tenant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDirectory(src Source, clock *fakeClock, opts ...DirectoryOption) *CachedDirectory {
	d := NewCachedDirectory(src, opts...)
	d.cfg.now = clock.Now
	return d
}

func TestCachedDirectoryLoadsLazilyAndCaches(t *testing.T) {
	src := &countingSource{tenants: []Tenant{hyveTenant, demoTenant}}
	clock := newFakeClock()
	dir := newTestDirectory(src, clock, WithTTL(time.Minute))

	assert.Equal(t, 0, src.Calls())

	got, rule, err := dir.ByIdentifier(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, RuleSlug, rule)

	got, rule, err = dir.ByDomain(context.Background(), "wellness.hyve.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, RuleExact, rule)

	assert.Equal(t, 1, src.Calls())
}

func TestCachedDirectoryReloadsAfterTTL(t *testing.T) {
	src := &countingSource{tenants: []Tenant{hyveTenant}}
	clock := newFakeClock()
	dir := newTestDirectory(src, clock, WithTTL(time.Minute))

	_, _, err := dir.ByIdentifier(context.Background(), "demo")
	assert.ErrorIs(t, err, ErrTenantNotFound)

	src.set([]Tenant{hyveTenant, demoTenant}, nil)
	clock.Advance(30 * time.Second)
	_, _, err = dir.ByIdentifier(context.Background(), "demo")
	assert.ErrorIs(t, err, ErrTenantNotFound, "snapshot is still fresh")

	clock.Advance(31 * time.Second)
	got, _, err := dir.ByIdentifier(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
	assert.Equal(t, 2, src.Calls())
}

func TestCachedDirectoryInvalidate(t *testing.T) {
	active := hyveTenant
	src := &countingSource{tenants: []Tenant{active}}
	dir := newTestDirectory(src, newFakeClock())

	_, _, err := dir.ByIdentifier(context.Background(), "hyve-wellness")
	require.NoError(t, err)

	deactivated := hyveTenant
	deactivated.IsActive = false
	src.set([]Tenant{deactivated}, nil)
	dir.Invalidate()

	_, _, err = dir.ByIdentifier(context.Background(), "hyve-wellness")
	assert.ErrorIs(t, err, ErrTenantInactive)
	assert.Equal(t, 2, src.Calls())
}

func TestCachedDirectoryInvalidateDuringLoad(t *testing.T) {
	src := &countingSource{
		tenants: []Tenant{hyveTenant},
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	dir := newTestDirectory(src, newFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := dir.Snapshot(context.Background())
		done <- err
	}()

	<-src.entered
	dir.Invalidate()
	close(src.gate)
	require.NoError(t, <-done)

	// The load raced with the invalidation, so its snapshot must not be trusted.
	_, err := dir.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.Calls())

	_, err = dir.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.Calls())
}

func TestCachedDirectoryConcurrentLoadsCollapse(t *testing.T) {
	src := &countingSource{
		tenants: []Tenant{hyveTenant},
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	dir := newTestDirectory(src, newFakeClock())

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := dir.ByDomain(context.Background(), "wellness.hyve.com")
			errs <- err
		}()
	}

	<-src.entered
	close(src.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, src.Calls())
}

func TestCachedDirectoryServesStaleWithinGrace(t *testing.T) {
	src := &countingSource{tenants: []Tenant{hyveTenant}}
	clock := newFakeClock()
	dir := newTestDirectory(src, clock, WithTTL(time.Minute), WithStaleGracePeriod(10*time.Minute))

	require.NoError(t, dir.Refresh(context.Background()))

	sourceDown := errors.New("connection refused")
	src.set(nil, sourceDown)

	clock.Advance(5 * time.Minute)
	got, _, err := dir.ByIdentifier(context.Background(), "hyve-wellness")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	clock.Advance(10 * time.Minute)
	_, _, err = dir.ByIdentifier(context.Background(), "hyve-wellness")
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.ErrorIs(t, err, sourceDown)
	assert.NotErrorIs(t, err, ErrTenantNotFound)
}

func TestCachedDirectoryInvalidatedSnapshotIsNotServedStale(t *testing.T) {
	src := &countingSource{tenants: []Tenant{hyveTenant}}
	clock := newFakeClock()
	dir := newTestDirectory(src, clock, WithTTL(time.Minute), WithStaleGracePeriod(10*time.Minute))

	require.NoError(t, dir.Refresh(context.Background()))

	// The tenant was deactivated and the event arrived, but the source is down.
	sourceDown := errors.New("connection refused")
	src.set(nil, sourceDown)
	dir.Invalidate()

	_, _, err := dir.ByIdentifier(context.Background(), "hyve-wellness")
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.ErrorIs(t, err, sourceDown)
	assert.ErrorIs(t, dir.Ready(context.Background()), ErrDirectoryUnavailable)

	src.set([]Tenant{hyveTenant}, nil)
	got, _, err := dir.ByIdentifier(context.Background(), "hyve-wellness")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
}

func TestCachedDirectoryCancelledCallerDoesNotFailSharedLoad(t *testing.T) {
	src := &countingSource{
		tenants: []Tenant{hyveTenant},
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
	dir := newTestDirectory(src, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := dir.Snapshot(ctx)
		first <- err
	}()
	<-src.entered

	second := make(chan error, 1)
	go func() {
		_, err := dir.Snapshot(context.Background())
		second <- err
	}()

	cancel()
	err := <-first
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)

	close(src.gate)
	require.NoError(t, <-second)

	_, err = dir.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.Calls())
}

func TestCachedDirectoryFailsWithoutSnapshot(t *testing.T) {
	sourceDown := errors.New("connection refused")
	dir := newTestDirectory(&countingSource{err: sourceDown}, newFakeClock())

	err := dir.Ready(context.Background())
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.ErrorIs(t, err, sourceDown)

	err = dir.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestCachedDirectoryRefreshReloads(t *testing.T) {
	src := &countingSource{tenants: []Tenant{hyveTenant}}
	dir := newTestDirectory(src, newFakeClock())

	require.NoError(t, dir.Refresh(context.Background()))
	src.set([]Tenant{hyveTenant, demoTenant}, nil)
	require.NoError(t, dir.Refresh(context.Background()))

	idx, err := dir.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 2, src.Calls())
}

func TestCachedDirectoryReservedHostsOption(t *testing.T) {
	staging := Tenant{ID: 9, Slug: "staging", Domain: "preview.internal", IsActive: true}
	dir := NewCachedDirectory(StaticSource{staging}, WithReservedHosts([]string{"Preview.Internal:8080"}))

	_, _, err := dir.ByDomain(context.Background(), "preview.internal")
	assert.ErrorIs(t, err, ErrReservedHost)
}

func TestNilDirectory(t *testing.T) {
	var dir *CachedDirectory
	_, err := dir.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)

	_, err = NewCachedDirectory(nil).Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestStaticSourceReturnsCopies(t *testing.T) {
	src := StaticSource{hyveTenant}
	tenants, err := src.Tenants(context.Background())
	require.NoError(t, err)
	tenants[0].Domains[0] = "changed.example.com"

	again, err := src.Tenants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "www.hyvewellness.com", again[0].Domains[0])
}
