package models

import "time"

// EventSource identifies the device an event came from.
type EventSource struct {
	Device string `json:"device"`
	IP     string `json:"ip"`
	Type   string `json:"type"` // e.g. "snmp_agent", "syslog_host"
}

// NormalizedEvent is the common envelope both the SNMP trap parser and
// the syslog parser project onto before the event reaches the alarm
// engine (spec §4.1, "Normalization").
type NormalizedEvent struct {
	EventType      EventType         `json:"eventType"`
	Timestamp      time.Time         `json:"timestamp"`
	Source         EventSource       `json:"source"`
	Severity       Severity          `json:"severity"`
	Category       string            `json:"category"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Details        map[string]string `json:"details,omitempty"`
	RawData        string            `json:"rawData,omitempty"`
	ParsingErrors  []string          `json:"parsingErrors,omitempty"`
}

// Field looks up a normalized field for rule matching (spec §4.4):
// well-known envelope fields first, then Details.
func (e *NormalizedEvent) Field(name string) (string, bool) {
	switch name {
	case "event_type":
		return string(e.EventType), true
	case "device":
		return e.Source.Device, true
	case "ip":
		return e.Source.IP, true
	case "severity":
		return string(e.Severity), true
	case "category":
		return e.Category, true
	case "title":
		return e.Title, true
	}
	v, ok := e.Details[name]
	return v, ok
}

// SNMPTrap is the structured result of parsing a raw SNMP trap blob
// (spec §4.1).
type SNMPTrap struct {
	TrapOID         string            `json:"trapOid"`
	TrapName        string            `json:"trapName"`
	EnterpriseOID   string            `json:"enterpriseOid,omitempty"`
	EnterpriseName  string            `json:"enterpriseName,omitempty"`
	AgentAddr       string            `json:"agentAddr,omitempty"`
	GenericTrap     int               `json:"genericTrap"`
	SpecificTrap    int               `json:"specificTrap"`
	Timestamp       time.Time         `json:"timestamp"`
	Varbinds        map[string]string `json:"varbinds,omitempty"`
	Severity        Severity          `json:"severity"`
	Description     string            `json:"description,omitempty"`
	ParsingErrors   []string          `json:"parsingErrors,omitempty"`
}

// SyslogEvent is the structured result of parsing an RFC 3164-ish
// syslog line (spec §4.1).
type SyslogEvent struct {
	Facility               int       `json:"facility"`
	Severity               int       `json:"severity"`
	FacilityName            string    `json:"facilityName"`
	SeverityName            string    `json:"severityName"`
	Timestamp               time.Time `json:"timestamp"`
	Hostname                string    `json:"hostname,omitempty"`
	Program                 string    `json:"program,omitempty"`
	PID                     string    `json:"pid,omitempty"`
	Message                 string    `json:"message"`
	StructuredData          string    `json:"structuredData,omitempty"`
	Keywords                []string  `json:"keywords,omitempty"`
	IPAddresses             []string  `json:"ipAddresses,omitempty"`
	PotentialSecurityEvent  bool      `json:"potentialSecurityEvent"`
	ParsingErrors           []string  `json:"parsingErrors,omitempty"`
}
