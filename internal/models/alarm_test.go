package models

import (
	"testing"
	"time"
)

func TestAlarmCloneIndependence(t *testing.T) {
	ack := time.Now()
	a := &Alarm{
		ID:             "alarm-1",
		Tags:           []string{"core", "edge"},
		AcknowledgedAt: &ack,
		Events:         []AlarmEvent{{Type: "raised", At: ack}},
	}

	clone := a.Clone()
	clone.Tags[0] = "mutated"
	*clone.AcknowledgedAt = ack.Add(time.Hour)
	clone.Events[0].Type = "mutated"

	if a.Tags[0] != "core" {
		t.Fatalf("mutating clone tags affected original: %v", a.Tags)
	}
	if !a.AcknowledgedAt.Equal(ack) {
		t.Fatalf("mutating clone ack time affected original")
	}
	if a.Events[0].Type != "raised" {
		t.Fatalf("mutating clone events affected original")
	}
}

func TestAlarmIsTerminalState(t *testing.T) {
	a := &Alarm{Status: AlarmActive}
	if a.IsTerminalState() {
		t.Fatalf("active alarm should not be terminal")
	}
	a.Status = AlarmCleared
	if !a.IsTerminalState() {
		t.Fatalf("cleared alarm should be terminal")
	}
}

func TestSeverityMoreSevere(t *testing.T) {
	if !SeverityCritical.MoreSevere(SeverityWarning) {
		t.Fatalf("expected CRITICAL to be more severe than WARNING")
	}
	if SeverityInfo.MoreSevere(SeverityMajor) {
		t.Fatalf("expected INFO to not be more severe than MAJOR")
	}
}

func TestAlarmSuppressionMatches(t *testing.T) {
	now := time.Now()
	s := &AlarmSuppression{
		DeviceID:         "sw-01",
		AlarmTypePattern: "linkDown",
		StartsAt:         now.Add(-time.Minute),
		ExpiresAt:        now.Add(time.Minute),
	}

	if !s.Matches("sw-01", "linkDown", now) {
		t.Fatalf("expected suppression to match device+type within window")
	}
	if s.Matches("sw-02", "linkDown", now) {
		t.Fatalf("suppression should not match a different device")
	}
	if s.Matches("sw-01", "linkDown", now.Add(2*time.Minute)) {
		t.Fatalf("suppression should not match after expiry")
	}
}

func TestNormalizedEventField(t *testing.T) {
	e := &NormalizedEvent{
		EventType: EventSNMPTrap,
		Source:    EventSource{Device: "sw-01", IP: "10.0.0.1"},
		Severity:  SeverityMajor,
		Details:   map[string]string{"ifIndex": "2"},
	}

	if v, ok := e.Field("device"); !ok || v != "sw-01" {
		t.Fatalf("expected device field sw-01, got %q ok=%v", v, ok)
	}
	if v, ok := e.Field("ifIndex"); !ok || v != "2" {
		t.Fatalf("expected detail field ifIndex=2, got %q ok=%v", v, ok)
	}
	if _, ok := e.Field("missing"); ok {
		t.Fatalf("expected missing field to be absent")
	}
}
