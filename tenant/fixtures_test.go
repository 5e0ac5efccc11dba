package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

func int64Ptr(v int64) *int64 { return &v }

var (
	hyveTenant = Tenant{
		ID:         1,
		Slug:       "hyve-wellness",
		Name:       "Hyve Wellness",
		Domain:     "wellness.hyve.com",
		Domains:    []string{"www.hyvewellness.com"},
		IsActive:   true,
		TemplateID: int64Ptr(7),
		Settings:   map[string]any{"theme": "sage"},
	}
	demoTenant = Tenant{ID: 2, Slug: "demo", Name: "Demo Clinic", IsActive: true}
	oldTenant  = Tenant{ID: 3, Slug: "old-site", Name: "Retired Site", Domain: "old.hyve.com", IsActive: false}
	netTenant  = Tenant{ID: 4, Slug: "network", Name: "Hyve Network", Domains: []string{"*.hyve.com"}, IsActive: true}
)

// testDirectory builds a directory over a static source with the default options.
func testDirectory(tenants ...Tenant) *CachedDirectory {
	return NewCachedDirectory(StaticSource(tenants))
}

func newRequest(target string, headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingSource records how often the directory reads it. When gate is set, each call
// signals entered and blocks until gate is closed.
type countingSource struct {
	mu      sync.Mutex
	calls   int
	tenants []Tenant
	err     error
	entered chan struct{}
	gate    chan struct{}
}

func (s *countingSource) Tenants(ctx context.Context) ([]Tenant, error) {
	s.mu.Lock()
	s.calls++
	tenants, err := s.tenants, s.err
	entered, gate := s.entered, s.gate
	s.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return StaticSource(tenants).Tenants(ctx)
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingSource) set(tenants []Tenant, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants, s.err = tenants, err
}
