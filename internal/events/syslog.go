package events

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/svcassure/core/internal/models"
)

var (
	priorityRe = regexp.MustCompile(`^<(\d{1,3})>`)
	progPidRe  = regexp.MustCompile(`^(\S+?)(\[(\d+)\])?:\s*(.*)$`)
	ipv4Re     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	urlRe      = regexp.MustCompile(`\bhttps?://[^\s]+`)

	timeLayouts = []string{
		"Jan _2 15:04:05", // RFC 3164
		time.RFC3339,
		"01/02/2006 15:04:05",
	}

	securityKeywords = []string{
		"failed", "denied", "unauthorized", "attack", "intrusion",
		"malware", "breach", "exploit",
	}

	facilityNames = []string{
		"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
		"uucp", "cron", "authpriv", "ftp", "ntp", "audit", "alert", "clock",
		"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
	}
	severityNames = []string{
		"emergency", "alert", "critical", "error", "warning", "notice", "info", "debug",
	}
)

// ParseSyslog decodes an RFC 3164-ish syslog line (spec §4.1).
func ParseSyslog(raw string) (ev models.SyslogEvent) {
	defer func() {
		if r := recover(); r != nil {
			ev.ParsingErrors = append(ev.ParsingErrors, fmt.Sprintf("parse_error: %v", r))
		}
	}()

	rest := raw

	if m := priorityRe.FindStringSubmatch(rest); m != nil {
		pri := parseIntSafe(m[1])
		ev.Facility = pri >> 3
		ev.Severity = pri & 7
		rest = strings.TrimSpace(rest[len(m[0]):])
	} else {
		ev.ParsingErrors = append(ev.ParsingErrors, "missing priority")
		ev.Severity = 6 // info
	}
	if ev.Facility >= 0 && ev.Facility < len(facilityNames) {
		ev.FacilityName = facilityNames[ev.Facility]
	}
	if ev.Severity >= 0 && ev.Severity < len(severityNames) {
		ev.SeverityName = severityNames[ev.Severity]
	}

	ts, tsLen, ok := parseTimestamp(rest)
	if ok {
		ev.Timestamp = ts
		rest = strings.TrimSpace(rest[tsLen:])
	} else {
		ev.Timestamp = time.Now().UTC()
		ev.ParsingErrors = append(ev.ParsingErrors, "unrecognized timestamp")
	}

	fields := strings.SplitN(rest, " ", 2)
	if len(fields) == 2 && isValidHostname(fields[0]) {
		ev.Hostname = fields[0]
		rest = fields[1]
	}

	if m := progPidRe.FindStringSubmatch(rest); m != nil {
		ev.Program = m[1]
		ev.PID = m[3]
		ev.Message = strings.TrimSpace(m[4])
	} else {
		ev.Message = strings.TrimSpace(rest)
	}

	lowerMsg := strings.ToLower(ev.Message)
	for _, kw := range securityKeywords {
		if strings.Contains(lowerMsg, kw) {
			ev.Keywords = append(ev.Keywords, kw)
			ev.PotentialSecurityEvent = true
		}
	}
	ev.IPAddresses = ipv4Re.FindAllString(ev.Message, -1)
	_ = urlRe // URLs are not extracted; SyslogEvent has no field for them

	return ev
}

func parseTimestamp(s string) (time.Time, int, bool) {
	for _, layout := range timeLayouts {
		n := len(layout)
		if len(s) < n {
			continue
		}
		if t, err := time.Parse(layout, s[:n]); err == nil {
			if layout == "Jan _2 15:04:05" {
				t = t.AddDate(time.Now().Year(), 0, 0)
			}
			return t, n, true
		}
	}
	return time.Time{}, 0, false
}

func isValidHostname(s string) bool {
	if net.ParseIP(s) != nil {
		return true
	}
	if s == "" || len(s) > 253 {
		return false
	}
	for _, r := range s {
		if !(r == '.' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// NormalizeSyslog projects a parsed syslog event onto the common
// envelope (spec §4.1, "Normalization").
func NormalizeSyslog(ev models.SyslogEvent, device, ip string) models.NormalizedEvent {
	sev := models.SeverityInfo
	switch {
	case ev.Severity <= 2:
		sev = models.SeverityCritical
	case ev.Severity == 3:
		sev = models.SeverityMajor
	case ev.Severity == 4:
		sev = models.SeverityWarning
	}

	details := map[string]string{
		"facility": ev.FacilityName,
		"program":  ev.Program,
		"pid":      ev.PID,
	}
	category := "operational"
	if ev.PotentialSecurityEvent {
		category = "security"
	}

	return models.NormalizedEvent{
		EventType:     models.EventSyslog,
		Timestamp:     ev.Timestamp,
		Source:        models.EventSource{Device: device, IP: ip, Type: "syslog_host"},
		Severity:      sev,
		Category:      category,
		Title:         fallback(ev.Program, "syslog"),
		Description:   ev.Message,
		Details:       details,
		ParsingErrors: ev.ParsingErrors,
	}
}
