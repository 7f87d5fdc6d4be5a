// Package sla evaluates probe compliance against SLA policies (spec
// §4.6): availability/latency compliance, percentile reporting, a
// violation open/resolve lifecycle, credit tiers, and dynamic
// threshold computation. Grounded on the same Manager+RWMutex+map
// shape used throughout this module (see internal/alarms), applied to
// models.SLAPolicy/models.SLAViolation.
package sla

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/svcassure/core/internal/errs"
	"github.com/svcassure/core/internal/models"
)

const defaultMinimumSampleCount = 10

// ComplianceStatus is the outcome of a compliance check.
type ComplianceStatus string

const (
	StatusCompliant          ComplianceStatus = "compliant"
	StatusViolation          ComplianceStatus = "violation"
	StatusInsufficientData   ComplianceStatus = "insufficient_data"
)

// Percentiles reports latency distribution alongside the average.
type Percentiles struct {
	P50 float64
	P90 float64
	P95 float64
	P99 float64
}

// Compliance is the result of evaluating a probe against its policy.
type Compliance struct {
	Status              ComplianceStatus
	AvailabilityPercent float64
	LatencyAvgMs        float64
	Percentiles         Percentiles
	SampleCount         int
	Policy              models.SLAPolicy
}

// ResultSource supplies the window of results a probe accumulated,
// decoupling the evaluator from storage.
type ResultSource interface {
	ResultsSince(tenantID, probeID string, since time.Time) []models.ProbeResult
}

// Config controls evaluator defaults (spec §6 sla.* options).
type Config struct {
	MinimumSampleCount int
}

func DefaultConfig() Config {
	return Config{MinimumSampleCount: defaultMinimumSampleCount}
}

// Manager owns SLA policies and the violation ledger for every tenant.
type Manager struct {
	mu         sync.RWMutex
	policies   map[string]map[string]*models.SLAPolicy   // tenantID -> policyID -> policy
	violations map[string]map[string][]*models.SLAViolation // tenantID -> probeID::policyID -> violations
	cfg        Config
	source     ResultSource
	newID      func() string
}

// New builds a Manager. newID supplies violation IDs (uuid.NewString
// in production, a deterministic stub in tests).
func New(cfg Config, source ResultSource, newID func() string) *Manager {
	if cfg.MinimumSampleCount <= 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		policies:   make(map[string]map[string]*models.SLAPolicy),
		violations: make(map[string]map[string][]*models.SLAViolation),
		cfg:        cfg,
		source:     source,
		newID:      newID,
	}
}

func (m *Manager) UpsertPolicy(tenantID string, p *models.SLAPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.policies[tenantID] == nil {
		m.policies[tenantID] = make(map[string]*models.SLAPolicy)
	}
	m.policies[tenantID][p.ID] = p
}

func (m *Manager) GetPolicy(tenantID, policyID string) (*models.SLAPolicy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[tenantID][policyID]
	return p, ok
}

func violationKey(probeID, policyID string) string { return probeID + "::" + policyID }

// CheckCompliance evaluates probe against the SLA policy it references
// (spec §4.6) and opens/resolves a violation as appropriate.
func (m *Manager) CheckCompliance(tenantID string, probe *models.Probe, now time.Time) (Compliance, error) {
	policy, ok := m.GetPolicy(tenantID, probe.SLAPolicyID)
	if !ok {
		return Compliance{}, errs.NewNotFound("sla_policy", probe.SLAPolicyID)
	}

	windowHours := policy.MeasurementWindowHours
	if windowHours <= 0 {
		windowHours = 24
	}
	since := now.Add(-time.Duration(windowHours) * time.Hour)
	results := m.source.ResultsSince(tenantID, probe.ID, since)

	total := len(results)
	if total < m.cfg.MinimumSampleCount {
		return Compliance{Status: StatusInsufficientData, SampleCount: total, Policy: *policy}, nil
	}

	successes := 0
	var latencies []float64
	for _, r := range results {
		if r.Success {
			successes++
			if r.ResponseTimeMs != nil {
				latencies = append(latencies, *r.ResponseTimeMs)
			}
		}
	}

	availability := 100 * float64(successes) / float64(total)
	avgLatency := mean(latencies)
	sortedLatencies := append([]float64(nil), latencies...)
	sort.Float64s(sortedLatencies)

	compliant := availability >= policy.AvailabilityThresholdPct && avgLatency <= policy.LatencyThresholdMs

	result := Compliance{
		Status:              StatusCompliant,
		AvailabilityPercent: availability,
		LatencyAvgMs:        avgLatency,
		Percentiles: Percentiles{
			P50: percentile(sortedLatencies, 50),
			P90: percentile(sortedLatencies, 90),
			P95: percentile(sortedLatencies, 95),
			P99: percentile(sortedLatencies, 99),
		},
		SampleCount: total,
		Policy:      *policy,
	}
	if !compliant {
		result.Status = StatusViolation
	}

	m.reconcileViolation(tenantID, probe.ID, policy, result, compliant, now)
	return result, nil
}

// reconcileViolation enforces "at most one open violation per
// (probe, policy)" (spec §4.6, §8 testable property).
func (m *Manager) reconcileViolation(tenantID, probeID string, policy *models.SLAPolicy, c Compliance, compliant bool, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.violations[tenantID] == nil {
		m.violations[tenantID] = make(map[string][]*models.SLAViolation)
	}
	key := violationKey(probeID, policy.ID)
	list := m.violations[tenantID][key]

	var open *models.SLAViolation
	for _, v := range list {
		if v.IsOpen() {
			open = v
			break
		}
	}

	actual := models.MeasurementSnapshot{AvailabilityPercent: c.AvailabilityPercent, LatencyAvgMs: c.LatencyAvgMs, SampleCount: c.SampleCount}
	threshold := models.MeasurementSnapshot{AvailabilityPercent: policy.AvailabilityThresholdPct, LatencyAvgMs: policy.LatencyThresholdMs}

	switch {
	case !compliant && open == nil:
		v := &models.SLAViolation{
			TenantID:   tenantID,
			ID:         m.newID(),
			ProbeID:    probeID,
			PolicyID:   policy.ID,
			Actual:     actual,
			Threshold:  threshold,
			DetectedAt: now,
		}
		m.violations[tenantID][key] = append(list, v)
	case compliant && open != nil:
		resolvedAt := now
		open.ResolvedAt = &resolvedAt
	}
}

// ListViolations returns violations detected within the last hours,
// optionally filtered by probeID (empty string = all probes).
func (m *Manager) ListViolations(tenantID string, hours int, probeID string) []*models.SLAViolation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)
	var out []*models.SLAViolation
	for key, list := range m.violations[tenantID] {
		if probeID != "" && !strings.HasPrefix(key, probeID+"::") {
			continue
		}
		for _, v := range list {
			if v.DetectedAt.After(cutoff) {
				out = append(out, v)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out
}

// CreditPercent maps availability to the contractual credit tier
// (spec §4.6, not persisted on the violation — applied on demand).
func CreditPercent(availabilityPercent float64) float64 {
	switch {
	case availabilityPercent >= 99.95:
		return 0
	case availabilityPercent >= 99.9:
		return 10
	case availabilityPercent >= 99:
		return 25
	case availabilityPercent >= 95:
		return 50
	default:
		return 100
	}
}

// DynamicThreshold is a statistically derived alerting bound.
type DynamicThreshold struct {
	WarningUpper      float64
	CriticalUpper     float64
	WarningLower      float64
	CriticalLower     float64
	Mean              float64
	Stdev             float64
	InsufficientData  bool
}

// ComputeDynamicThreshold derives bounds from historical data, IQR-
// cleaned before computing statistics (spec §4.6). Only 0.95 and 0.99
// confidence levels are supported; other values are a Validation error
// (spec §9 Open Question 4 treats the source's silent 99%-fallback as
// a bug to fix, not preserve).
func ComputeDynamicThreshold(history []float64, confidence float64) (DynamicThreshold, error) {
	var z float64
	switch confidence {
	case 0.95:
		z = 1.96
	case 0.99:
		z = 2.58
	default:
		return DynamicThreshold{}, errs.NewValidation("confidence", "must be 0.95 or 0.99")
	}

	cleaned := removeIQROutliers(history)
	if len(cleaned) < 10 {
		return DynamicThreshold{InsufficientData: true}, nil
	}

	mu := mean(cleaned)
	sigma := stdev(cleaned, mu)
	return DynamicThreshold{
		WarningUpper:  mu + z*sigma,
		CriticalUpper: mu + 2*z*sigma,
		WarningLower:  mu - z*sigma,
		CriticalLower: mu - 2*z*sigma,
		Mean:          mu,
		Stdev:         sigma,
	}, nil
}

// percentile returns sorted[clamp(ceil(n*p/100)-1, 0, n-1)] (spec §4.6,
// §8 testable property), or 0 for an empty vector.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(n)*p/100)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdev(values []float64, mu float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// removeIQROutliers drops values outside [Q1-1.5*IQR, Q3+1.5*IQR].
func removeIQROutliers(values []float64) []float64 {
	if len(values) < 4 {
		return append([]float64(nil), values...)
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	cleaned := make([]float64, 0, len(sorted))
	for _, v := range sorted {
		if v >= lower && v <= upper {
			cleaned = append(cleaned, v)
		}
	}
	return cleaned
}
