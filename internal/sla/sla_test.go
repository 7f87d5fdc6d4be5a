package sla

import (
	"testing"
	"time"

	"github.com/svcassure/core/internal/models"
)

func f64(v float64) *float64 { return &v }

type fakeResultSource struct {
	results []models.ProbeResult
}

func (f fakeResultSource) ResultsSince(tenantID, probeID string, since time.Time) []models.ProbeResult {
	var out []models.ProbeResult
	for _, r := range f.results {
		if r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	return out
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "v" + string(rune('0'+n))
	}
}

func buildResults(n int, successRatio float64, latencyMs float64) []models.ProbeResult {
	now := time.Now()
	results := make([]models.ProbeResult, 0, n)
	successCount := int(float64(n) * successRatio)
	for i := 0; i < n; i++ {
		r := models.ProbeResult{
			ProbeID:   "p1",
			Timestamp: now.Add(time.Duration(i) * time.Second),
			Success:   i < successCount,
		}
		if r.Success {
			r.ResponseTimeMs = f64(latencyMs)
		}
		results = append(results, r)
	}
	return results
}

func TestCheckComplianceInsufficientData(t *testing.T) {
	source := fakeResultSource{results: buildResults(3, 1.0, 10)}
	m := New(DefaultConfig(), source, sequentialIDs())
	m.UpsertPolicy("t1", &models.SLAPolicy{ID: "pol1", AvailabilityThresholdPct: 99.9, LatencyThresholdMs: 50, MeasurementWindowHours: 1})

	probe := &models.Probe{TenantID: "t1", ID: "p1", SLAPolicyID: "pol1"}
	c, err := m.CheckCompliance("t1", probe, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status != StatusInsufficientData {
		t.Fatalf("expected INSUFFICIENT_DATA, got %s", c.Status)
	}
}

func TestCheckComplianceHappyPath(t *testing.T) {
	source := fakeResultSource{results: buildResults(100, 1.0, 10)}
	m := New(DefaultConfig(), source, sequentialIDs())
	m.UpsertPolicy("t1", &models.SLAPolicy{ID: "pol1", AvailabilityThresholdPct: 99.9, LatencyThresholdMs: 50, MeasurementWindowHours: 1})

	probe := &models.Probe{TenantID: "t1", ID: "p1", SLAPolicyID: "pol1"}
	c, err := m.CheckCompliance("t1", probe, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status != StatusCompliant {
		t.Fatalf("expected compliant, got %s", c.Status)
	}
	if c.AvailabilityPercent != 100 {
		t.Fatalf("expected 100%% availability, got %v", c.AvailabilityPercent)
	}
	violations := m.ListViolations("t1", 24, "")
	if len(violations) != 0 {
		t.Fatalf("expected no violations, got %d", len(violations))
	}
}

func TestCheckComplianceOpensAndResolvesViolation(t *testing.T) {
	badSource := fakeResultSource{results: buildResults(100, 0.8, 10)}
	m := New(DefaultConfig(), badSource, sequentialIDs())
	m.UpsertPolicy("t1", &models.SLAPolicy{ID: "pol1", AvailabilityThresholdPct: 99.9, LatencyThresholdMs: 50, MeasurementWindowHours: 1})
	probe := &models.Probe{TenantID: "t1", ID: "p1", SLAPolicyID: "pol1"}

	c, err := m.CheckCompliance("t1", probe, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status != StatusViolation {
		t.Fatalf("expected violation, got %s", c.Status)
	}
	if c.AvailabilityPercent < 79 || c.AvailabilityPercent > 81 {
		t.Fatalf("expected ~80%% availability, got %v", c.AvailabilityPercent)
	}
	violations := m.ListViolations("t1", 24, "")
	if len(violations) != 1 || !violations[0].IsOpen() {
		t.Fatalf("expected exactly one open violation, got %+v", violations)
	}

	m.source = fakeResultSource{results: buildResults(100, 1.0, 10)}
	_, err = m.CheckCompliance("t1", probe, time.Now().Add(2*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	violations = m.ListViolations("t1", 24, "")
	if len(violations) != 1 || violations[0].IsOpen() {
		t.Fatalf("expected the violation to be resolved, got %+v", violations)
	}
}

func TestCheckComplianceUnknownPolicy(t *testing.T) {
	m := New(DefaultConfig(), fakeResultSource{}, sequentialIDs())
	probe := &models.Probe{TenantID: "t1", ID: "p1", SLAPolicyID: "missing"}
	_, err := m.CheckCompliance("t1", probe, time.Now())
	if err == nil {
		t.Fatalf("expected NotFound error")
	}
}

func TestPercentileIndexing(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	// n=10, p=90 -> ceil(10*90/100)-1 = ceil(9)-1 = 8 -> sorted[8] = 90
	if got := percentile(sorted, 90); got != 90 {
		t.Fatalf("expected 90, got %v", got)
	}
	// p=50 -> ceil(5)-1 = 4 -> sorted[4] = 50
	if got := percentile(sorted, 50); got != 50 {
		t.Fatalf("expected 50, got %v", got)
	}
}

func TestPercentileEmptyVector(t *testing.T) {
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("expected 0 for empty vector, got %v", got)
	}
}

func TestCreditPercentTiers(t *testing.T) {
	cases := []struct {
		avail float64
		want  float64
	}{
		{99.99, 0},
		{99.91, 10},
		{99.5, 25},
		{96, 50},
		{50, 100},
	}
	for _, c := range cases {
		if got := CreditPercent(c.avail); got != c.want {
			t.Fatalf("CreditPercent(%v) = %v, want %v", c.avail, got, c.want)
		}
	}
}

func TestComputeDynamicThreshold95(t *testing.T) {
	history := make([]float64, 0, 50)
	for i := 0; i < 50; i++ {
		history = append(history, 100)
	}
	dt, err := ComputeDynamicThreshold(history, 0.95)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dt.InsufficientData {
		t.Fatalf("expected sufficient data")
	}
	if dt.Mean != 100 {
		t.Fatalf("expected mean 100, got %v", dt.Mean)
	}
	if dt.Stdev != 0 {
		t.Fatalf("expected stdev 0 for constant data, got %v", dt.Stdev)
	}
}

func TestComputeDynamicThresholdRejectsUnsupportedConfidence(t *testing.T) {
	_, err := ComputeDynamicThreshold([]float64{1, 2, 3}, 0.9)
	if err == nil {
		t.Fatalf("expected validation error for unsupported confidence level")
	}
}

func TestComputeDynamicThresholdInsufficientData(t *testing.T) {
	dt, err := ComputeDynamicThreshold([]float64{1, 2, 3}, 0.95)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dt.InsufficientData {
		t.Fatalf("expected insufficient data for <10 points")
	}
}

func TestRemoveIQROutliers(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 1000}
	cleaned := removeIQROutliers(values)
	for _, v := range cleaned {
		if v == 1000 {
			t.Fatalf("expected outlier 1000 removed, got %v", cleaned)
		}
	}
}
