package models

import "time"

// Severity is the alarm severity scale (spec §3), ordered from least
// to most severe for escalation comparisons.
type Severity string

const (
	SeverityClear    Severity = "CLEAR"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityClear:    0,
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityMinor:    3,
	SeverityMajor:    4,
	SeverityCritical: 5,
}

// MoreSevere reports whether a is strictly more severe than b.
func (a Severity) MoreSevere(b Severity) bool {
	return severityRank[a] > severityRank[b]
}

// EventType is the kind of normalized event an AlarmRule can match.
type EventType string

const (
	EventSNMPTrap   EventType = "SNMP_TRAP"
	EventSyslog     EventType = "SYSLOG"
	EventProbe      EventType = "PROBE"
	EventThreshold  EventType = "THRESHOLD"
	EventCustom     EventType = "CUSTOM"
)

// AlarmStatus is the lifecycle state of an Alarm (spec §3).
type AlarmStatus string

const (
	AlarmActive       AlarmStatus = "ACTIVE"
	AlarmAcknowledged AlarmStatus = "ACKNOWLEDGED"
	AlarmCleared      AlarmStatus = "CLEARED"
	AlarmSuppressed   AlarmStatus = "SUPPRESSED"
)

// MatchCriterion is one key of an AlarmRule.MatchCriteria. A value
// with IsRegex set, or a value prefixed with "~" (the prefix removed),
// is matched as a regex; otherwise it is matched literally.
type MatchCriterion struct {
	Value   string
	IsRegex bool
}

// AlarmRule is the declarative matcher converting events into alarms
// (spec §4.4). NonTerminal resolves Open Question 1 of spec §9: a
// firing rule stops evaluation for the event by default (its zero
// value), unless the rule explicitly declares itself non-terminal,
// in which case evaluation continues to the next rule.
type AlarmRule struct {
	TenantID            string                    `json:"tenantId"`
	ID                  string                    `json:"id"`
	Name                string                    `json:"name"`
	EventType           EventType                 `json:"eventType"`
	MatchCriteria       map[string]MatchCriterion `json:"matchCriteria"`
	Severity            Severity                  `json:"severity"`
	AlarmType            string                   `json:"alarmType"`
	AutoClear            bool                     `json:"autoClear"`
	ClearConditions       map[string]MatchCriterion `json:"clearConditions,omitempty"`
	DescriptionTemplate  string                    `json:"descriptionTemplate"`
	TitleTemplate        string                    `json:"titleTemplate"`
	Enabled              bool                      `json:"enabled"`
	Priority             int                       `json:"priority"`
	NonTerminal          bool                      `json:"nonTerminal"`
	AlarmsGenerated      int64                     `json:"alarmsGenerated"`
}

// IsTerminal reports whether a firing match on this rule should stop
// evaluation of lower-priority rules for the same event (spec §9's
// default: true unless the rule opts into NonTerminal).
func (r *AlarmRule) IsTerminal() bool {
	return !r.NonTerminal
}

// AlarmEvent is one entry in an alarm's audit trail — a supplemental
// feature drawn from the original Python source's AlertEvent log
// (see SPEC_FULL.md §D), kept distinct from the alarm's current-state
// fields so every transition is individually reviewable.
type AlarmEvent struct {
	Type    string    `json:"type"` // raised, acknowledged, cleared, suppressed, unsuppressed
	By      string    `json:"by,omitempty"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

// Alarm is the stateful fault instance (spec §3).
type Alarm struct {
	TenantID         string       `json:"tenantId"`
	ID               string       `json:"id"`
	DeviceID         string       `json:"deviceId,omitempty"`
	RuleID           string       `json:"ruleId"`
	AlarmType        string       `json:"alarmType"`
	Severity         Severity     `json:"severity"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	Status           AlarmStatus  `json:"status"`
	Acknowledged     bool         `json:"acknowledged"`
	AcknowledgedBy   string       `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt   *time.Time   `json:"acknowledgedAt,omitempty"`
	RaisedAt         time.Time    `json:"raisedAt"`
	LastSeen         time.Time    `json:"lastSeen"`
	ClearedAt        *time.Time   `json:"clearedAt,omitempty"`
	ClearedBy        string       `json:"clearedBy,omitempty"`
	ClearComments    string       `json:"clearComments,omitempty"`
	AutoClear        bool         `json:"autoClear"`
	Tags             []string     `json:"tags,omitempty"`
	OccurrenceCount  int64        `json:"occurrenceCount"`
	DedupeKey        string       `json:"dedupeKey"`
	Events           []AlarmEvent `json:"events,omitempty"`
}

// Clone returns a deep copy of the alarm so it can be shared across
// goroutines without aliasing the engine's internal state (the same
// discipline the teacher's alerts.Alert.Clone uses).
func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}
	clone := *a
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		clone.AcknowledgedAt = &t
	}
	if a.ClearedAt != nil {
		t := *a.ClearedAt
		clone.ClearedAt = &t
	}
	if len(a.Tags) > 0 {
		clone.Tags = append([]string(nil), a.Tags...)
	}
	if len(a.Events) > 0 {
		clone.Events = append([]AlarmEvent(nil), a.Events...)
	}
	return &clone
}

// IsTerminalState reports whether the alarm can no longer transition
// (spec §3: "Once CLEARED, the alarm is terminal").
func (a *Alarm) IsTerminalState() bool {
	return a.Status == AlarmCleared
}

// AlarmSuppression is a time-bounded mute (spec §3). DeviceID of "*"
// matches every device.
type AlarmSuppression struct {
	TenantID         string    `json:"tenantId"`
	ID               string    `json:"id"`
	DeviceID         string    `json:"deviceId"`
	AlarmTypePattern string    `json:"alarmTypePattern"`
	StartsAt         time.Time `json:"startsAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
	Reason           string    `json:"reason,omitempty"`
	SuppressedBy     string    `json:"suppressedBy,omitempty"`
}

// Matches reports whether the suppression covers device/alarmType at
// instant t.
func (s *AlarmSuppression) Matches(device, alarmType string, t time.Time) bool {
	if t.Before(s.StartsAt) || t.After(s.ExpiresAt) {
		return false
	}
	if s.DeviceID != "*" && s.DeviceID != device {
		return false
	}
	return matchesPattern(s.AlarmTypePattern, alarmType)
}

func matchesPattern(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	return pattern == value
}
