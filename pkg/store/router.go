package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/svcassure/core/internal/models"
)

// Router lazily opens one Store per tenant under a shared data
// directory and dispatches persistence calls to the right one. It
// exists because probes.Persister's methods are not all tenant-scoped
// in their signature (DeleteProbe/SaveProbeResult take only an entity
// or ID, not a tenant ID) while Store itself is strictly single-tenant
// — Router bridges the two by caching which tenant owns which probe ID
// the first time it sees it.
type Router struct {
	dataDir string

	mu          sync.Mutex
	stores      map[string]*Store
	probeTenant map[string]string
}

// NewRouter creates a Router rooted at dataDir. No database files are
// opened until a tenant is first written to.
func NewRouter(dataDir string) *Router {
	return &Router{
		dataDir:     dataDir,
		stores:      make(map[string]*Store),
		probeTenant: make(map[string]string),
	}
}

func (r *Router) storeFor(tenantID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[tenantID]; ok {
		return s, nil
	}
	s, err := Open(r.dataDir, tenantID)
	if err != nil {
		return nil, err
	}
	r.stores[tenantID] = s
	return s, nil
}

// Close closes every tenant store this router has opened.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, s := range r.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SaveProbe implements probes.Persister.
func (r *Router) SaveProbe(ctx context.Context, p *models.Probe) error {
	s, err := r.storeFor(p.TenantID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.probeTenant[p.ID] = p.TenantID
	r.mu.Unlock()
	return s.SaveProbe(ctx, p)
}

// DeleteProbe implements probes.Persister. It relies on the tenant
// having been recorded by a prior SaveProbe; a probe ID this router
// never saw a save for is a no-op.
func (r *Router) DeleteProbe(ctx context.Context, id string) error {
	r.mu.Lock()
	tenantID, ok := r.probeTenant[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	s, err := r.storeFor(tenantID)
	if err != nil {
		return err
	}
	return s.DeleteProbe(ctx, id)
}

// SaveProbeResult implements probes.Persister.
func (r *Router) SaveProbeResult(ctx context.Context, res *models.ProbeResult) error {
	s, err := r.storeFor(res.TenantID)
	if err != nil {
		return fmt.Errorf("routing probe result: %w", err)
	}
	return s.SaveProbeResult(ctx, res)
}
