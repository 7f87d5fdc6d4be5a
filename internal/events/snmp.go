// Package events decodes raw SNMP trap and syslog text into the
// normalized event envelope the alarm engine consumes (spec §4.1).
// Parsing never fails outward: any trouble is recorded on the
// returned record's ParsingErrors field (spec §7).
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/svcassure/core/internal/models"
)

// wellKnownTraps maps generic SNMPv1 trap OIDs to display names
// (spec §4.1).
var wellKnownTraps = map[string]string{
	"1.3.6.1.6.3.1.1.5.1": "coldStart",
	"1.3.6.1.6.3.1.1.5.2": "warmStart",
	"1.3.6.1.6.3.1.1.5.3": "linkDown",
	"1.3.6.1.6.3.1.1.5.4": "linkUp",
	"1.3.6.1.6.3.1.1.5.5": "authenticationFailure",
	"1.3.6.1.6.3.1.1.5.6": "egpNeighborLoss",
}

// enterprisePrefixes maps enterprise OID prefixes to vendor names. A
// small, deliberately non-exhaustive table; unknown prefixes fall
// through to "unknown".
var enterprisePrefixes = map[string]string{
	"1.3.6.1.4.1.9":     "cisco",
	"1.3.6.1.4.1.2636":  "juniper",
	"1.3.6.1.4.1.11":    "hp",
	"1.3.6.1.4.1.2011":  "huawei",
}

func trapSeverity(name string) models.Severity {
	switch name {
	case "linkDown":
		return models.SeverityMajor
	case "coldStart", "warmStart", "authenticationFailure":
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

func escalate(sev models.Severity, text string) models.Severity {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "critical"):
		return maxSeverity(sev, models.SeverityCritical)
	case strings.Contains(lower, "fail"), strings.Contains(lower, "error"):
		return maxSeverity(sev, models.SeverityMajor)
	default:
		return sev
	}
}

func maxSeverity(a, b models.Severity) models.Severity {
	if b.MoreSevere(a) {
		return b
	}
	return a
}

func enterpriseName(oid string) string {
	for prefix, name := range enterprisePrefixes {
		if strings.HasPrefix(oid, prefix) {
			return name
		}
	}
	return "unknown"
}

// ParseSNMPTrap decodes a multi-line SNMP trap text blob (spec §4.1).
// It extracts the well-known "Key: value" header lines and treats any
// remaining "OID = [type:] value" line as a varbind.
func ParseSNMPTrap(raw string) (trap models.SNMPTrap) {
	defer func() {
		if r := recover(); r != nil {
			trap = models.SNMPTrap{
				ParsingErrors: []string{fmt.Sprintf("parse_error: %v", r)},
				Severity:      models.SeverityWarning,
			}
		}
	}()

	trap.Varbinds = make(map[string]string)
	trap.Timestamp = time.Now().UTC()

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case hasKey(line, "Trap OID:"):
			trap.TrapOID = value(line, "Trap OID:")
			trap.TrapName = wellKnownTraps[trap.TrapOID]
		case hasKey(line, "Agent Address:"):
			trap.AgentAddr = value(line, "Agent Address:")
		case hasKey(line, "Enterprise:"):
			trap.EnterpriseOID = value(line, "Enterprise:")
			trap.EnterpriseName = enterpriseName(trap.EnterpriseOID)
		case hasKey(line, "Generic Trap:"):
			trap.GenericTrap = parseIntSafe(value(line, "Generic Trap:"))
		case hasKey(line, "Specific Trap:"):
			trap.SpecificTrap = parseIntSafe(value(line, "Specific Trap:"))
		case hasKey(line, "Timestamp:"):
			if ts, err := time.Parse(time.RFC3339, value(line, "Timestamp:")); err == nil {
				trap.Timestamp = ts
			}
		default:
			if oid, val, ok := parseVarbind(line); ok {
				trap.Varbinds[oid] = val
			} else {
				trap.ParsingErrors = append(trap.ParsingErrors, fmt.Sprintf("unrecognized line: %q", line))
			}
		}
	}

	if trap.TrapName == "" && trap.TrapOID != "" {
		trap.TrapName = "unknown"
	}

	trap.Severity = trapSeverity(trap.TrapName)
	for _, v := range trap.Varbinds {
		trap.Severity = escalate(trap.Severity, v)
	}

	trap.Description = fmt.Sprintf("%s trap from %s", fallback(trap.TrapName, "unknown"), fallback(trap.AgentAddr, "unknown agent"))
	return trap
}

func hasKey(line, key string) bool {
	return strings.HasPrefix(line, key)
}

func value(line, key string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, key))
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func parseIntSafe(s string) int {
	n := 0
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n
}

// parseVarbind parses an "OID = [type:] value" line.
func parseVarbind(line string) (oid, val string, ok bool) {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	oid = strings.TrimSpace(parts[0])
	rest := strings.TrimSpace(parts[1])
	if typed := strings.SplitN(rest, ":", 2); len(typed) == 2 && isLikelyType(typed[0]) {
		rest = strings.TrimSpace(typed[1])
	}
	if oid == "" {
		return "", "", false
	}
	return oid, rest, true
}

func isLikelyType(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "int", "integer", "gauge", "counter", "timeticks", "oid", "ipaddress":
		return true
	}
	return false
}

// NormalizeSNMPTrap projects a parsed trap onto the common envelope
// (spec §4.1, "Normalization").
func NormalizeSNMPTrap(trap models.SNMPTrap, device, ip string) models.NormalizedEvent {
	details := make(map[string]string, len(trap.Varbinds)+2)
	for k, v := range trap.Varbinds {
		details[k] = v
	}
	details["trap_oid"] = trap.TrapOID
	details["trap_name"] = trap.TrapName

	return models.NormalizedEvent{
		EventType:     models.EventSNMPTrap,
		Timestamp:     trap.Timestamp,
		Source:        models.EventSource{Device: device, IP: ip, Type: "snmp_agent"},
		Severity:      trap.Severity,
		Category:      "fault",
		Title:         fallback(trap.TrapName, "snmp_trap"),
		Description:   trap.Description,
		Details:       details,
		RawData:       "", // caller may attach if desired
		ParsingErrors: trap.ParsingErrors,
	}
}
