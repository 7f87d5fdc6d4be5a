// Package probes owns the durable Probe definitions and their result
// history, implementing the scheduler's ResultSink/ProbeSource
// interfaces and the SLA evaluator's ResultSource interface so the
// scheduler and SLA engine never touch storage directly. Grounded on
// the same per-tenant Manager+RWMutex convention as internal/alarms
// and internal/flows.
package probes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/svcassure/core/internal/errs"
	"github.com/svcassure/core/internal/models"
	"github.com/svcassure/core/internal/ring"
)

const defaultMaxResultsPerProbe = 1000

// Persister is implemented by pkg/store; the manager calls it inline
// after each in-memory change and discards its errors, so a storage
// failure never fails the in-memory operation.
type Persister interface {
	SaveProbe(ctx context.Context, p *models.Probe) error
	DeleteProbe(ctx context.Context, id string) error
	SaveProbeResult(ctx context.Context, r *models.ProbeResult) error
}

// Config controls the in-memory result retention bound.
type Config struct {
	MaxResultsPerProbe int
}

func DefaultConfig() Config {
	return Config{MaxResultsPerProbe: defaultMaxResultsPerProbe}
}

// Manager holds probe definitions and a bounded in-memory result
// history per (tenant, probe). Persistence, when a Persister is
// configured, is best-effort: it runs on the caller's goroutine and
// its errors are ignored.
type Manager struct {
	mu      sync.RWMutex
	probes  map[string]map[string]*models.Probe
	results map[string]map[string]*ring.Buffer[models.ProbeResult]
	cfg     Config
	store   Persister
	newID   func() string
}

func New(cfg Config, store Persister, newID func() string) *Manager {
	if cfg.MaxResultsPerProbe <= 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		probes:  make(map[string]map[string]*models.Probe),
		results: make(map[string]map[string]*ring.Buffer[models.ProbeResult]),
		cfg:     cfg,
		store:   store,
		newID:   newID,
	}
}

// Create validates and stores a new probe definition.
func (m *Manager) Create(ctx context.Context, tenantID string, p *models.Probe) (*models.Probe, error) {
	if p.Name == "" {
		return nil, errs.NewValidation("name", "must not be empty")
	}
	if p.Target == "" {
		return nil, errs.NewValidation("target", "must not be empty")
	}
	if p.IntervalSeconds <= 0 {
		return nil, errs.NewValidation("intervalSeconds", "must be positive")
	}

	p.TenantID = tenantID
	if p.ID == "" {
		p.ID = m.newID()
	}
	if p.Status == "" {
		p.Status = models.ProbeEnabled
	}

	m.mu.Lock()
	if m.probes[tenantID] == nil {
		m.probes[tenantID] = make(map[string]*models.Probe)
	}
	m.probes[tenantID][p.ID] = p.Clone()
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.SaveProbe(ctx, p)
	}
	return p.Clone(), nil
}

// Update replaces mutable fields of an existing probe.
func (m *Manager) Update(ctx context.Context, tenantID, probeID string, mutate func(*models.Probe)) (*models.Probe, error) {
	m.mu.Lock()
	tenantProbes := m.probes[tenantID]
	if tenantProbes == nil {
		m.mu.Unlock()
		return nil, errs.NewNotFound("probe", probeID)
	}
	p, ok := tenantProbes[probeID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.NewNotFound("probe", probeID)
	}
	mutate(p)
	clone := p.Clone()
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.SaveProbe(ctx, clone)
	}
	return clone, nil
}

// Delete removes a probe definition and its result history.
func (m *Manager) Delete(ctx context.Context, tenantID, probeID string) error {
	m.mu.Lock()
	tenantProbes := m.probes[tenantID]
	if tenantProbes == nil {
		m.mu.Unlock()
		return errs.NewNotFound("probe", probeID)
	}
	if _, ok := tenantProbes[probeID]; !ok {
		m.mu.Unlock()
		return errs.NewNotFound("probe", probeID)
	}
	delete(tenantProbes, probeID)
	if tenantResults := m.results[tenantID]; tenantResults != nil {
		delete(tenantResults, probeID)
	}
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.DeleteProbe(ctx, probeID)
	}
	return nil
}

// Get returns a cloned probe definition.
func (m *Manager) Get(tenantID, probeID string) (*models.Probe, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.probes[tenantID][probeID]
	if !ok {
		return nil, errs.NewNotFound("probe", probeID)
	}
	return p.Clone(), nil
}

// GetProbe implements scheduler.ProbeSource.
func (m *Manager) GetProbe(tenantID, probeID string) (*models.Probe, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.probes[tenantID][probeID]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Tenants returns the set of tenant IDs that currently own at least
// one probe definition, letting callers fan background work (e.g.
// suppression expiry) out across every active tenant without a
// separate tenant directory.
func (m *Manager) Tenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.probes))
	for tenantID := range m.probes {
		out = append(out, tenantID)
	}
	sort.Strings(out)
	return out
}

// List returns all probe definitions for a tenant.
func (m *Manager) List(tenantID string) []*models.Probe {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Probe, 0, len(m.probes[tenantID]))
	for _, p := range m.probes[tenantID] {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecordResult implements scheduler.ResultSink: stores the result in
// the bounded in-memory ring and updates the probe's runtime counters.
func (m *Manager) RecordResult(ctx context.Context, tenantID string, result models.ProbeResult) {
	if result.ID == "" {
		result.ID = m.newID()
	}

	m.mu.Lock()
	if m.results[tenantID] == nil {
		m.results[tenantID] = make(map[string]*ring.Buffer[models.ProbeResult])
	}
	buf := m.results[tenantID][result.ProbeID]
	if buf == nil {
		buf = ring.New[models.ProbeResult](m.cfg.MaxResultsPerProbe)
		m.results[tenantID][result.ProbeID] = buf
	}
	buf.Push(result)

	if p, ok := m.probes[tenantID][result.ProbeID]; ok {
		p.LastRun = result.Timestamp
		if result.Success {
			p.LastSuccess = result.Timestamp
			p.ConsecutiveFailures = 0
			if p.Status == models.ProbeError {
				p.Status = models.ProbeEnabled
			}
		} else {
			p.ConsecutiveFailures++
		}
	}
	m.mu.Unlock()

	if m.store != nil {
		_ = m.store.SaveProbeResult(ctx, &result)
	}
}

// MarkError implements scheduler.ResultSink, recording that a
// scheduled execution could not run at all (e.g. panic recovery).
func (m *Manager) MarkError(ctx context.Context, tenantID, probeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.probes[tenantID][probeID]; ok {
		p.Status = models.ProbeError
		p.ConsecutiveFailures++
	}
}

// ResultsSince implements sla.ResultSource.
func (m *Manager) ResultsSince(tenantID, probeID string, since time.Time) []models.ProbeResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf := m.results[tenantID][probeID]
	if buf == nil {
		return nil
	}
	all := buf.Snapshot()
	out := make([]models.ProbeResult, 0, len(all))
	for _, r := range all {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out
}

// Results returns up to limit most-recent results, newest last.
func (m *Manager) Results(tenantID, probeID string, limit int) []models.ProbeResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf := m.results[tenantID][probeID]
	if buf == nil {
		return nil
	}
	all := buf.Snapshot()
	if limit <= 0 || limit >= len(all) {
		return all
	}
	return all[len(all)-limit:]
}
