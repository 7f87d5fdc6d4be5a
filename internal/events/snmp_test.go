package events

import "testing"

func TestParseSNMPTrapLinkDown(t *testing.T) {
	raw := "Trap OID: 1.3.6.1.6.3.1.1.5.3\nAgent Address: 10.0.0.1\nifIndex = int: 2\n"
	trap := ParseSNMPTrap(raw)

	if trap.TrapOID != "1.3.6.1.6.3.1.1.5.3" {
		t.Fatalf("unexpected trap oid: %q", trap.TrapOID)
	}
	if trap.TrapName != "linkDown" {
		t.Fatalf("expected linkDown, got %q", trap.TrapName)
	}
	if trap.AgentAddr != "10.0.0.1" {
		t.Fatalf("unexpected agent address: %q", trap.AgentAddr)
	}
	if trap.Varbinds["ifIndex"] != "2" {
		t.Fatalf("expected varbind ifIndex=2, got %q", trap.Varbinds["ifIndex"])
	}
	if len(trap.ParsingErrors) != 0 {
		t.Fatalf("unexpected parsing errors: %v", trap.ParsingErrors)
	}
}

func TestParseSNMPTrapSeverityEscalation(t *testing.T) {
	raw := "Trap OID: 1.3.6.1.6.3.1.1.5.1\nstatus = string: critical failure detected\n"
	trap := ParseSNMPTrap(raw)

	if trap.Severity != "CRITICAL" {
		t.Fatalf("expected escalation to CRITICAL, got %s", trap.Severity)
	}
}

func TestParseSNMPTrapUnrecognizedLineRecorded(t *testing.T) {
	raw := "Trap OID: 1.3.6.1.6.3.1.1.5.3\nthis is not a varbind\n"
	trap := ParseSNMPTrap(raw)

	if len(trap.ParsingErrors) == 0 {
		t.Fatalf("expected a parsing error for unrecognized line")
	}
}

func TestNormalizeSNMPTrap(t *testing.T) {
	trap := ParseSNMPTrap("Trap OID: 1.3.6.1.6.3.1.1.5.3\n")
	ev := NormalizeSNMPTrap(trap, "sw-01", "10.0.0.1")

	if ev.Source.Device != "sw-01" || ev.Source.IP != "10.0.0.1" {
		t.Fatalf("unexpected source: %+v", ev.Source)
	}
	if v, ok := ev.Field("trap_oid"); !ok || v != "1.3.6.1.6.3.1.1.5.3" {
		t.Fatalf("expected trap_oid detail, got %q ok=%v", v, ok)
	}
}
