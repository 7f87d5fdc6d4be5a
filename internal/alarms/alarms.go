// Package alarms implements the rule-based alarm correlation engine
// (spec §4.4), grounded on the teacher repo's internal/alerts Manager:
// a single mutex-guarded struct holding the live alarm set plus a
// handful of purpose-specific tracking maps (dedup, suppression,
// storm, acknowledgement), with Clone()-on-read so callers never
// alias engine-owned state.
package alarms

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/svcassure/core/internal/errs"
	"github.com/svcassure/core/internal/models"
)

// NotificationSink receives lifecycle events for firing/clearing
// alarms. The notify package's webhook sink implements this; tests use
// a no-op or recording stub.
type NotificationSink interface {
	NotifyAlarm(ctx context.Context, tenantID string, alarm *models.Alarm, event string)
}

type noopSink struct{}

func (noopSink) NotifyAlarm(context.Context, string, *models.Alarm, string) {}

// Config controls storm protection thresholds (spec §4.4).
type Config struct {
	StormThreshold      int
	StormWindow         time.Duration
}

func DefaultConfig() Config {
	return Config{StormThreshold: 10, StormWindow: 5 * time.Minute}
}

type stormKey struct {
	tenantID  string
	deviceID  string
	alarmType string
}

type stormState struct {
	windowStart time.Time
	count       int
	metaAlarmID string
}

// Manager is the per-process alarm engine. Tenants are distinguished
// by the TenantID carried on every entity and argument; a deployment
// runs one Manager shared across tenants (spec §1's "constructor
// parameter, not a field threaded through every call" re-architecture
// note applies to the engines that sit above storage, not to this
// correlation core, which keys every map by tenant explicitly).
type Manager struct {
	mu sync.RWMutex

	rules        map[string]map[string]*models.AlarmRule // tenantID -> ruleID -> rule
	alarms       map[string]map[string]*models.Alarm      // tenantID -> alarmID -> alarm
	dedupeIndex  map[string]map[string]string             // tenantID -> dedupeKey -> alarmID
	suppressions map[string][]*models.AlarmSuppression    // tenantID -> suppressions

	storm map[stormKey]*stormState

	cfg  Config
	sink NotificationSink
	log  zerolog.Logger
}

func New(cfg Config, sink NotificationSink, log zerolog.Logger) *Manager {
	if cfg.StormThreshold <= 0 {
		cfg.StormThreshold = DefaultConfig().StormThreshold
	}
	if cfg.StormWindow <= 0 {
		cfg.StormWindow = DefaultConfig().StormWindow
	}
	if sink == nil {
		sink = noopSink{}
	}
	return &Manager{
		rules:        make(map[string]map[string]*models.AlarmRule),
		alarms:       make(map[string]map[string]*models.Alarm),
		dedupeIndex:  make(map[string]map[string]string),
		suppressions: make(map[string][]*models.AlarmSuppression),
		storm:        make(map[stormKey]*stormState),
		cfg:          cfg,
		sink:         sink,
		log:          log.With().Str("component", "alarms").Logger(),
	}
}

// UpsertRule adds or replaces a rule for tenantID.
func (m *Manager) UpsertRule(tenantID string, rule *models.AlarmRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rules[tenantID] == nil {
		m.rules[tenantID] = make(map[string]*models.AlarmRule)
	}
	m.rules[tenantID][rule.ID] = rule
}

// RemoveRule drops a rule.
func (m *Manager) RemoveRule(tenantID, ruleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules[tenantID], ruleID)
}

// GetRule returns one rule definition.
func (m *Manager) GetRule(tenantID, ruleID string) (*models.AlarmRule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[tenantID][ruleID]
	return rule, ok
}

// ListRules returns every rule configured for tenantID.
func (m *Manager) ListRules(tenantID string) []*models.AlarmRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.AlarmRule, 0, len(m.rules[tenantID]))
	for _, rule := range m.rules[tenantID] {
		out = append(out, rule)
	}
	return out
}

// Evaluate runs rule matching for a normalized event, creating,
// refreshing, or clearing alarms as matching rules dictate (spec
// §4.4's five-step dedup/creation flow).
func (m *Manager) Evaluate(ctx context.Context, tenantID string, event models.NormalizedEvent) []*models.Alarm {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := m.matchingRulesLocked(tenantID, event)

	var affected []*models.Alarm
	for _, rule := range candidates {
		if rule.AutoClear && m.tryAutoClearLocked(tenantID, rule, event) {
			// auto-clear rules don't also raise on the same event
			if !rule.IsTerminal() {
				continue
			}
			break
		}
		if !ruleMatches(rule.MatchCriteria, event) {
			continue
		}

		alarm := m.fireLocked(ctx, tenantID, rule, event)
		if alarm != nil {
			affected = append(affected, alarm.Clone())
		}
		if rule.IsTerminal() {
			break
		}
	}
	return affected
}

// matchingRulesLocked returns enabled rules whose event_type matches
// event and whose match_criteria (or, for auto-clear rules, whose
// clear_conditions) satisfy it, ordered by descending priority with
// rule_id ascending as tiebreak (spec §4.4 step 2).
func (m *Manager) matchingRulesLocked(tenantID string, event models.NormalizedEvent) []*models.AlarmRule {
	var matched []*models.AlarmRule
	for _, rule := range m.rules[tenantID] {
		if !rule.Enabled || rule.EventType != event.EventType {
			continue
		}
		if ruleMatches(rule.MatchCriteria, event) ||
			(rule.AutoClear && len(rule.ClearConditions) > 0 && ruleMatches(rule.ClearConditions, event)) {
			matched = append(matched, rule)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority > matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})
	return matched
}

func ruleMatches(criteria map[string]models.MatchCriterion, event models.NormalizedEvent) bool {
	for field, crit := range criteria {
		value, ok := event.Field(field)
		if !ok {
			return false
		}
		if !criterionMatches(crit, value) {
			return false
		}
	}
	return true
}

func criterionMatches(crit models.MatchCriterion, value string) bool {
	pattern, isRegex := crit.Value, crit.IsRegex
	if !isRegex && strings.HasPrefix(pattern, "~") {
		pattern, isRegex = pattern[1:], true
	}
	if isRegex {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	}
	return crit.Value == value
}

// fireLocked implements the alarm creation/dedup flow of spec §4.4.
func (m *Manager) fireLocked(ctx context.Context, tenantID string, rule *models.AlarmRule, event models.NormalizedEvent) *models.Alarm {
	dedupeKey := computeDedupeKey(tenantID, rule.ID, event.Source.Device, matchedValues(rule.MatchCriteria, event))

	if alarmID, ok := m.dedupeIndex[tenantID][dedupeKey]; ok {
		if alarm := m.alarms[tenantID][alarmID]; alarm != nil && !alarm.IsTerminalState() {
			alarm.OccurrenceCount++
			alarm.LastSeen = time.Now()
			return alarm
		}
	}

	now := time.Now()
	deviceID := event.Source.Device

	// Already past threshold for this (device, alarm_type): coalesce
	// into the existing meta-alarm instead of raising a new one.
	if metaID, entering := m.storming(tenantID, deviceID, rule.AlarmType, now); metaID != "" && !entering {
		if meta := m.alarms[tenantID][metaID]; meta != nil && !meta.IsTerminalState() {
			meta.OccurrenceCount++
			meta.LastSeen = now
			return meta
		}
	} else if entering {
		meta := m.newStormMetaAlarmLocked(tenantID, rule, event, now)
		m.storeAlarmLocked(tenantID, meta)
		rule.AlarmsGenerated++
		m.stormKeyState(tenantID, deviceID, rule.AlarmType).metaAlarmID = meta.ID
		m.sink.NotifyAlarm(ctx, tenantID, meta.Clone(), "raised")
		return meta
	}

	alarm := &models.Alarm{
		TenantID:        tenantID,
		ID:              uuid.NewString(),
		DeviceID:        deviceID,
		RuleID:          rule.ID,
		AlarmType:       rule.AlarmType,
		Severity:        rule.Severity,
		Title:           renderTemplate(rule.TitleTemplate, event),
		Description:     renderTemplate(rule.DescriptionTemplate, event),
		Status:          models.AlarmActive,
		RaisedAt:        now,
		LastSeen:        now,
		AutoClear:       rule.AutoClear,
		OccurrenceCount: 1,
		DedupeKey:       dedupeKey,
		Events:          []models.AlarmEvent{{Type: "raised", At: now}},
	}

	if m.suppressedLocked(tenantID, alarm.DeviceID, alarm.AlarmType, now) {
		alarm.Status = models.AlarmSuppressed
		alarm.Events = append(alarm.Events, models.AlarmEvent{Type: "suppressed", At: now})
	}

	m.storeAlarmLocked(tenantID, alarm)
	rule.AlarmsGenerated++

	if alarm.Status != models.AlarmSuppressed {
		m.sink.NotifyAlarm(ctx, tenantID, alarm.Clone(), "raised")
	}
	return alarm
}

// newStormMetaAlarmLocked builds the single coalesced alarm a storm of
// raises from the same device/alarm_type folds into once
// storm_threshold is exceeded (spec §4.4 storm protection).
func (m *Manager) newStormMetaAlarmLocked(tenantID string, rule *models.AlarmRule, event models.NormalizedEvent, now time.Time) *models.Alarm {
	return &models.Alarm{
		TenantID:        tenantID,
		ID:              uuid.NewString(),
		DeviceID:        event.Source.Device,
		RuleID:          rule.ID,
		AlarmType:       rule.AlarmType,
		Severity:        rule.Severity,
		Title:           fmt.Sprintf("Storm: %s", renderTemplate(rule.TitleTemplate, event)),
		Description:     fmt.Sprintf("%d alarms coalesced within the storm window", m.cfg.StormThreshold+1),
		Status:          models.AlarmActive,
		RaisedAt:        now,
		LastSeen:        now,
		AutoClear:       rule.AutoClear,
		OccurrenceCount: 1,
		DedupeKey:       fmt.Sprintf("storm:%s:%s:%s", tenantID, event.Source.Device, rule.AlarmType),
		Events:          []models.AlarmEvent{{Type: "raised", At: now}},
	}
}

func (m *Manager) storeAlarmLocked(tenantID string, alarm *models.Alarm) {
	if m.alarms[tenantID] == nil {
		m.alarms[tenantID] = make(map[string]*models.Alarm)
	}
	if m.dedupeIndex[tenantID] == nil {
		m.dedupeIndex[tenantID] = make(map[string]string)
	}
	m.alarms[tenantID][alarm.ID] = alarm
	m.dedupeIndex[tenantID][alarm.DedupeKey] = alarm.ID
}

// storming tracks per-(tenant,device,alarm_type) raise counts within a
// rolling window (spec §4.4 storm protection; key resolves Open
// Question 3 of spec §9). It returns the meta-alarm ID once the
// window has exceeded storm_threshold raises: entering is true on the
// single raise that crosses the threshold, for which the caller must
// create the meta-alarm and register its ID; entering is false on
// every subsequent raise in the window, for which metaID names the
// already-created meta-alarm to coalesce into. Both are empty/false
// while the count is still within threshold.
func (m *Manager) storming(tenantID, deviceID, alarmType string, now time.Time) (metaID string, entering bool) {
	state := m.stormKeyState(tenantID, deviceID, alarmType)
	if now.Sub(state.windowStart) > m.cfg.StormWindow {
		*state = stormState{windowStart: now}
	}
	state.count++
	switch {
	case state.count <= m.cfg.StormThreshold:
		return "", false
	case state.metaAlarmID == "":
		return "", true
	default:
		return state.metaAlarmID, false
	}
}

// stormKeyState returns the mutable storm-window state for a
// (tenant, device, alarm_type) key, creating it on first use.
func (m *Manager) stormKeyState(tenantID, deviceID, alarmType string) *stormState {
	key := stormKey{tenantID: tenantID, deviceID: deviceID, alarmType: alarmType}
	state, ok := m.storm[key]
	if !ok {
		state = &stormState{windowStart: time.Now()}
		m.storm[key] = state
	}
	return state
}

func (m *Manager) suppressedLocked(tenantID, deviceID, alarmType string, at time.Time) bool {
	for _, s := range m.suppressions[tenantID] {
		if s.Matches(deviceID, alarmType, at) {
			return true
		}
	}
	return false
}

// tryAutoClearLocked clears matching non-cleared alarms if event
// satisfies rule's clear_conditions (spec §4.4 Auto-clear).
func (m *Manager) tryAutoClearLocked(tenantID string, rule *models.AlarmRule, event models.NormalizedEvent) bool {
	if len(rule.ClearConditions) == 0 || !ruleMatches(rule.ClearConditions, event) {
		return false
	}
	cleared := false
	for _, alarm := range m.alarms[tenantID] {
		if alarm.RuleID != rule.ID || alarm.IsTerminalState() {
			continue
		}
		now := time.Now()
		alarm.Status = models.AlarmCleared
		alarm.ClearedAt = &now
		alarm.ClearedBy = "auto"
		alarm.Events = append(alarm.Events, models.AlarmEvent{Type: "cleared", By: "auto", At: now})
		cleared = true
	}
	return cleared
}

// Acknowledge transitions ACTIVE to ACKNOWLEDGED (spec §4.4).
func (m *Manager) Acknowledge(tenantID, alarmID, by, comment string) (*models.Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alarm, ok := m.alarms[tenantID][alarmID]
	if !ok {
		return nil, errs.NewNotFound("alarm", alarmID)
	}
	if alarm.IsTerminalState() {
		return nil, errs.NewInvalidState("alarm is cleared")
	}
	if alarm.Status == models.AlarmAcknowledged && alarm.AcknowledgedBy == by {
		return alarm.Clone(), nil
	}

	now := time.Now()
	alarm.Status = models.AlarmAcknowledged
	alarm.Acknowledged = true
	alarm.AcknowledgedBy = by
	alarm.AcknowledgedAt = &now
	alarm.Events = append(alarm.Events, models.AlarmEvent{Type: "acknowledged", By: by, Comment: comment, At: now})
	return alarm.Clone(), nil
}

// Clear transitions any non-cleared state to CLEARED (spec §4.4).
func (m *Manager) Clear(tenantID, alarmID, by, comment string) (*models.Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	alarm, ok := m.alarms[tenantID][alarmID]
	if !ok {
		return nil, errs.NewNotFound("alarm", alarmID)
	}
	if alarm.IsTerminalState() {
		return nil, errs.NewInvalidState("alarm already cleared")
	}

	now := time.Now()
	alarm.Status = models.AlarmCleared
	alarm.ClearedAt = &now
	alarm.ClearedBy = by
	alarm.ClearComments = comment
	alarm.Events = append(alarm.Events, models.AlarmEvent{Type: "cleared", By: by, Comment: comment, At: now})
	return alarm.Clone(), nil
}

// Suppress creates a suppression and transitions matching active
// alarms to SUPPRESSED (spec §4.4 Suppression lifecycle).
func (m *Manager) Suppress(tenantID string, deviceID, alarmTypePattern string, duration time.Duration, by string) *models.AlarmSuppression {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s := &models.AlarmSuppression{
		TenantID:         tenantID,
		ID:               uuid.NewString(),
		DeviceID:         deviceID,
		AlarmTypePattern: alarmTypePattern,
		StartsAt:         now,
		ExpiresAt:        now.Add(duration),
		SuppressedBy:     by,
	}
	m.suppressions[tenantID] = append(m.suppressions[tenantID], s)

	for _, alarm := range m.alarms[tenantID] {
		if alarm.Status != models.AlarmActive {
			continue
		}
		if s.Matches(alarm.DeviceID, alarm.AlarmType, now) {
			alarm.Status = models.AlarmSuppressed
			alarm.Events = append(alarm.Events, models.AlarmEvent{Type: "suppressed", By: by, At: now})
		}
	}
	return s
}

// ExpireSuppressions transitions suppressed-but-not-cleared alarms
// whose suppression has expired back to ACTIVE, emitting one deferred
// notification per alarm (spec §4.4).
func (m *Manager) ExpireSuppressions(ctx context.Context, tenantID string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.suppressions[tenantID][:0]
	for _, s := range m.suppressions[tenantID] {
		if now.Before(s.ExpiresAt) {
			live = append(live, s)
		}
	}
	m.suppressions[tenantID] = live

	for _, alarm := range m.alarms[tenantID] {
		if alarm.Status != models.AlarmSuppressed {
			continue
		}
		if m.suppressedLocked(tenantID, alarm.DeviceID, alarm.AlarmType, now) {
			continue
		}
		alarm.Status = models.AlarmActive
		alarm.Events = append(alarm.Events, models.AlarmEvent{Type: "unsuppressed", At: now})
		m.sink.NotifyAlarm(ctx, tenantID, alarm.Clone(), "raised")
	}
}

// Get returns a clone of an alarm by ID.
func (m *Manager) Get(tenantID, alarmID string) (*models.Alarm, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	alarm, ok := m.alarms[tenantID][alarmID]
	if !ok {
		return nil, false
	}
	return alarm.Clone(), true
}

// List returns clones of every alarm for tenantID.
func (m *Manager) List(tenantID string) []*models.Alarm {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Alarm, 0, len(m.alarms[tenantID]))
	for _, a := range m.alarms[tenantID] {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RaisedAt.Before(out[j].RaisedAt) })
	return out
}

// CountBySeverity summarizes active alarms by severity, supplementing
// the dashboard overview per SPEC_FULL.md §D.
func (m *Manager) CountBySeverity(tenantID string) map[models.Severity]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[models.Severity]int)
	for _, a := range m.alarms[tenantID] {
		if a.Status == models.AlarmCleared {
			continue
		}
		counts[a.Severity]++
	}
	return counts
}

func matchedValues(criteria map[string]models.MatchCriterion, event models.NormalizedEvent) string {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v, _ := event.Field(k)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte(';')
	}
	return b.String()
}

func computeDedupeKey(tenantID, ruleID, device, canonicalizedValues string) string {
	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(ruleID))
	h.Write([]byte{0})
	h.Write([]byte(device))
	h.Write([]byte{0})
	h.Write([]byte(canonicalizedValues))
	return hex.EncodeToString(h.Sum(nil))
}

func renderTemplate(tmpl string, event models.NormalizedEvent) string {
	out := tmpl
	out = strings.ReplaceAll(out, "{{device}}", event.Source.Device)
	out = strings.ReplaceAll(out, "{{ip}}", event.Source.IP)
	out = strings.ReplaceAll(out, "{{type}}", string(event.EventType))
	for k, v := range event.Details {
		out = strings.ReplaceAll(out, fmt.Sprintf("{{%s}}", k), v)
	}
	return out
}
