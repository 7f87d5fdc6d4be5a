package events

import "testing"

func TestParseSyslogBasic(t *testing.T) {
	line := "<34>Oct 11 22:14:15 mymachine su[1234]: failed login attempt for user root"
	ev := ParseSyslog(line)

	if ev.Facility != 4 {
		t.Fatalf("expected facility 4, got %d", ev.Facility)
	}
	if ev.Severity != 2 {
		t.Fatalf("expected severity 2, got %d", ev.Severity)
	}
	if ev.Hostname != "mymachine" {
		t.Fatalf("unexpected hostname: %q", ev.Hostname)
	}
	if ev.Program != "su" || ev.PID != "1234" {
		t.Fatalf("unexpected program/pid: %q/%q", ev.Program, ev.PID)
	}
	if !ev.PotentialSecurityEvent {
		t.Fatalf("expected security keyword detection")
	}
}

func TestParseSyslogExtractsIPs(t *testing.T) {
	line := "<13>Jan 1 00:00:00 host app: connection from 192.168.1.5 denied"
	ev := ParseSyslog(line)

	if len(ev.IPAddresses) != 1 || ev.IPAddresses[0] != "192.168.1.5" {
		t.Fatalf("expected extracted IP, got %v", ev.IPAddresses)
	}
}

func TestParseSyslogMissingPriorityRecordsError(t *testing.T) {
	ev := ParseSyslog("no priority here at all")
	if len(ev.ParsingErrors) == 0 {
		t.Fatalf("expected parsing error for missing priority")
	}
}

func TestNormalizeSyslogSeverityMapping(t *testing.T) {
	ev := ParseSyslog("<0>Jan 1 00:00:00 host app: emergency condition")
	norm := NormalizeSyslog(ev, "host", "10.0.0.2")
	if norm.Severity != "CRITICAL" {
		t.Fatalf("expected CRITICAL for syslog severity 0, got %s", norm.Severity)
	}
}
