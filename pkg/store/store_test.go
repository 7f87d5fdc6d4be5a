package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/svcassure/core/internal/models"
)

func TestSanitizeTenantIDAllowsSafeChars(t *testing.T) {
	in := "Acme_Tenant-123"
	if got := sanitizeTenantID(in); got != in {
		t.Fatalf("sanitizeTenantID(%q) = %q, want %q", in, got, in)
	}
}

func TestSanitizeTenantIDStripsPathTraversal(t *testing.T) {
	got := sanitizeTenantID("../../../etc/passwd")
	if got == "" {
		t.Fatal("expected a non-empty sanitized id")
	}
	if filepath.Clean(got) != got || filepath.IsAbs(got) {
		t.Fatalf("sanitized id %q still looks path-like", got)
	}
}

func TestSanitizeTenantIDAllUnsafeReturnsEmpty(t *testing.T) {
	if got := sanitizeTenantID("../../??"); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestOpenRejectsInvalidTenantID(t *testing.T) {
	if _, err := Open(t.TempDir(), "../../??"); err == nil {
		t.Fatalf("expected error opening store for unsanitizable tenant id")
	}
}

func TestOpenCreatesTenantScopedFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "tenant-a")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer s.Close()

	want := filepath.Join(dir, "tenants", "tenant-a", "core.db")
	if s.dbPath != want {
		t.Fatalf("dbPath = %q, want %q", s.dbPath, want)
	}
}

func TestProbeRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir(), "tenant-a")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	probe := &models.Probe{TenantID: "tenant-a", ID: "p1", Name: "check", Type: models.ProbeHTTP, Target: "https://example.com", IntervalSeconds: 30}
	if err := s.SaveProbe(ctx, probe); err != nil {
		t.Fatalf("SaveProbe failed: %v", err)
	}

	probes, err := s.LoadProbes(ctx)
	if err != nil {
		t.Fatalf("LoadProbes failed: %v", err)
	}
	if len(probes) != 1 || probes[0].ID != "p1" {
		t.Fatalf("unexpected probes: %+v", probes)
	}

	probe.Name = "check-renamed"
	if err := s.SaveProbe(ctx, probe); err != nil {
		t.Fatalf("SaveProbe (update) failed: %v", err)
	}
	probes, err = s.LoadProbes(ctx)
	if err != nil {
		t.Fatalf("LoadProbes failed: %v", err)
	}
	if len(probes) != 1 || probes[0].Name != "check-renamed" {
		t.Fatalf("expected upsert to replace row, got %+v", probes)
	}

	if err := s.DeleteProbe(ctx, "p1"); err != nil {
		t.Fatalf("DeleteProbe failed: %v", err)
	}
	probes, err = s.LoadProbes(ctx)
	if err != nil {
		t.Fatalf("LoadProbes failed: %v", err)
	}
	if len(probes) != 0 {
		t.Fatalf("expected no probes after delete, got %d", len(probes))
	}
}

func TestProbeResultsSinceFiltersByTime(t *testing.T) {
	s, err := Open(t.TempDir(), "tenant-a")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ts := range []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)} {
		r := &models.ProbeResult{TenantID: "tenant-a", ID: string(rune('a' + i)), ProbeID: "p1", Timestamp: ts, Success: true}
		if err := s.SaveProbeResult(ctx, r); err != nil {
			t.Fatalf("SaveProbeResult failed: %v", err)
		}
	}

	results, err := s.LoadProbeResultsSince(ctx, "p1", base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("LoadProbeResultsSince failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result after cutoff, got %d", len(results))
	}
}

func TestAlarmSavedWithStatusColumn(t *testing.T) {
	s, err := Open(t.TempDir(), "tenant-a")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	alarm := &models.Alarm{TenantID: "tenant-a", ID: "al1", Status: models.AlarmActive}
	if err := s.SaveAlarm(ctx, alarm); err != nil {
		t.Fatalf("SaveAlarm failed: %v", err)
	}

	alarms, err := s.LoadAlarms(ctx)
	if err != nil {
		t.Fatalf("LoadAlarms failed: %v", err)
	}
	if len(alarms) != 1 || alarms[0].Status != models.AlarmActive {
		t.Fatalf("unexpected alarms: %+v", alarms)
	}
}

func TestSLAViolationResolvedAtRoundTrips(t *testing.T) {
	s, err := Open(t.TempDir(), "tenant-a")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	v := &models.SLAViolation{TenantID: "tenant-a", ID: "v1", ProbeID: "p1", PolicyID: "pol1"}
	if err := s.SaveSLAViolation(ctx, v); err != nil {
		t.Fatalf("SaveSLAViolation failed: %v", err)
	}

	now := time.Now().UTC()
	v.ResolvedAt = &now
	if err := s.SaveSLAViolation(ctx, v); err != nil {
		t.Fatalf("SaveSLAViolation (resolve) failed: %v", err)
	}

	violations, err := s.LoadSLAViolations(ctx)
	if err != nil {
		t.Fatalf("LoadSLAViolations failed: %v", err)
	}
	if len(violations) != 1 || violations[0].ResolvedAt == nil {
		t.Fatalf("expected resolved violation, got %+v", violations)
	}
}

func TestPruneProbeResultsBeforeDeletesOldRows(t *testing.T) {
	s, err := Open(t.TempDir(), "tenant-a")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ts := range []time.Time{base, base.Add(48 * time.Hour)} {
		r := &models.ProbeResult{TenantID: "tenant-a", ID: string(rune('a' + i)), ProbeID: "p1", Timestamp: ts, Success: true}
		if err := s.SaveProbeResult(ctx, r); err != nil {
			t.Fatalf("SaveProbeResult failed: %v", err)
		}
	}

	n, err := s.PruneProbeResultsBefore(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("PruneProbeResultsBefore failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row pruned, got %d", n)
	}
}
