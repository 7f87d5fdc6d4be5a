// Package registry wires the per-tenant engines (probes, alarms, SLA,
// flows) into a single Core that implements the external command/query
// surface of spec §6. Multi-tenancy is scoped by an explicit tenant_id
// argument on every call rather than a per-tenant struct instance
// (spec §9's re-architecture note): each engine's own Manager already
// keys its internal maps by tenant, so Core is a thin façade, not a
// tenant registry itself.
package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/svcassure/core/internal/alarms"
	"github.com/svcassure/core/internal/config"
	"github.com/svcassure/core/internal/errs"
	"github.com/svcassure/core/internal/events"
	"github.com/svcassure/core/internal/flows"
	"github.com/svcassure/core/internal/lttb"
	"github.com/svcassure/core/internal/models"
	"github.com/svcassure/core/internal/probe"
	"github.com/svcassure/core/internal/probes"
	"github.com/svcassure/core/internal/scheduler"
	"github.com/svcassure/core/internal/sla"
	"github.com/svcassure/core/internal/stream"
)

// Core owns one instance of every engine and is the single object
// cmd/service-assurance wires into its transport (HTTP/CLI/websocket).
type Core struct {
	Probes    *probes.Manager
	Alarms    *alarms.Manager
	SLA       *sla.Manager
	Flows     *flows.Manager
	Scheduler *scheduler.Scheduler
	Hub       *stream.Hub

	executor probe.Executor
	newID    func() string
	log      zerolog.Logger
}

// New builds a Core from a loaded configuration. newID generates
// entity IDs (the caller typically passes google/uuid's NewString).
func New(cfg config.Config, store probes.Persister, sink alarms.NotificationSink, newID func() string, log zerolog.Logger) *Core {
	probeMgr := probes.New(probes.Config{MaxResultsPerProbe: cfg.Probes.MaxResultsPerProbe}, store, newID)

	alarmMgr := alarms.New(alarms.Config{
		StormThreshold: cfg.Alarms.StormThreshold,
		StormWindow:    time.Duration(cfg.Alarms.StormWindowMinutes) * time.Minute,
	}, sink, log)

	slaMgr := sla.New(sla.Config{MinimumSampleCount: cfg.SLA.MinimumSampleCount}, probeMgr, newID)

	flowMgr := flows.New(flows.Config{MaxMemoryFlows: cfg.Flows.MaxMemoryFlows})

	var exec probe.Executor
	if cfg.Probes.SimulationMode {
		exec = probe.NewSimulatedExecutor(0.97, 40, 1)
	} else {
		exec = probe.NewMultiExecutor()
	}

	sched := scheduler.New(scheduler.DefaultConfig(), exec, probeMgr, probeMgr, log)

	hub := stream.NewHub(nil, log)

	return &Core{
		Probes:    probeMgr,
		Alarms:    alarmMgr,
		SLA:       slaMgr,
		Flows:     flowMgr,
		Scheduler: sched,
		Hub:       hub,
		executor:  exec,
		newID:     newID,
		log:       log.With().Str("component", "registry").Logger(),
	}
}

// Run starts the background engines (probe scheduler, the dashboard
// hub's fan-out loop, and suppression expiry) until ctx is canceled.
func (c *Core) Run(ctx context.Context) {
	go c.Hub.Run()
	go c.Scheduler.Run(ctx)
	go c.expireSuppressionsLoop(ctx)
}

func (c *Core) expireSuppressionsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, tenantID := range c.Probes.Tenants() {
				c.Alarms.ExpireSuppressions(ctx, tenantID, now)
			}
		}
	}
}

// IngestSNMPTrap parses, normalizes, and evaluates an incoming SNMP
// trap against the tenant's alarm rules, broadcasting any resulting
// alarm to connected dashboard clients.
func (c *Core) IngestSNMPTrap(ctx context.Context, tenantID, raw, device, ip string) []*models.Alarm {
	trap := events.ParseSNMPTrap(raw)
	event := events.NormalizeSNMPTrap(trap, device, ip)
	return c.evaluateAndBroadcast(ctx, tenantID, event)
}

// IngestSyslog parses, normalizes, and evaluates an incoming syslog
// message against the tenant's alarm rules.
func (c *Core) IngestSyslog(ctx context.Context, tenantID, raw, device, ip string) []*models.Alarm {
	ev := events.ParseSyslog(raw)
	event := events.NormalizeSyslog(ev, device, ip)
	return c.evaluateAndBroadcast(ctx, tenantID, event)
}

func (c *Core) evaluateAndBroadcast(ctx context.Context, tenantID string, event models.NormalizedEvent) []*models.Alarm {
	fired := c.Alarms.Evaluate(ctx, tenantID, event)
	for _, a := range fired {
		c.Hub.Broadcast("alarmRaised", a)
	}
	return fired
}

// ExecuteProbe runs one probe immediately, out of band from its
// scheduled cadence, and records the result the same way the
// scheduler does (spec §6 execute_probe).
func (c *Core) ExecuteProbe(ctx context.Context, tenantID, probeID string) (models.ProbeResult, error) {
	p, err := c.Probes.Get(tenantID, probeID)
	if err != nil {
		return models.ProbeResult{}, err
	}

	timeout := time.Duration(p.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := c.executor.Execute(execCtx, p.Type, p.Target, p.Parameters)
	result := models.ProbeResult{
		TenantID:       tenantID,
		ProbeID:        probeID,
		Timestamp:      time.Now(),
		Success:        out.Success,
		ResponseTimeMs: out.ResponseTimeMs,
		StatusCode:     out.StatusCode,
		ErrorMessage:   out.ErrorMessage,
		Metrics:        out.Metrics,
	}
	c.Probes.RecordResult(ctx, tenantID, result)
	return result, nil
}

// GetProbeStatistics summarizes a probe's recent result history (spec
// §6 get_probe_statistics).
type ProbeStatistics struct {
	ProbeID           string  `json:"probeId"`
	SampleCount       int     `json:"sampleCount"`
	SuccessCount      int     `json:"successCount"`
	AvailabilityPct   float64 `json:"availabilityPercent"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
}

func (c *Core) GetProbeStatistics(tenantID, probeID string, hours int) ProbeStatistics {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	results := c.Probes.ResultsSince(tenantID, probeID, since)

	stats := ProbeStatistics{ProbeID: probeID, SampleCount: len(results)}
	var totalMs float64
	var withLatency int
	for _, r := range results {
		if r.Success {
			stats.SuccessCount++
		}
		if r.ResponseTimeMs != nil {
			totalMs += *r.ResponseTimeMs
			withLatency++
		}
	}
	if len(results) > 0 {
		stats.AvailabilityPct = 100 * float64(stats.SuccessCount) / float64(len(results))
	}
	if withLatency > 0 {
		stats.AvgResponseTimeMs = totalMs / float64(withLatency)
	}
	return stats
}

// ProbeResponseTimeSeries returns a dashboard-ready, downsampled
// response-time series for a probe so a long history renders without
// shipping every raw sample to the browser.
func (c *Core) ProbeResponseTimeSeries(tenantID, probeID string, hours, targetPoints int) []lttb.Point {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	results := c.Probes.ResultsSince(tenantID, probeID, since)

	points := make([]lttb.Point, 0, len(results))
	for _, r := range results {
		if r.ResponseTimeMs == nil {
			continue
		}
		points = append(points, lttb.Point{Timestamp: r.Timestamp, Value: *r.ResponseTimeMs})
	}
	if targetPoints <= 0 {
		targetPoints = 200
	}
	return lttb.Downsample(points, targetPoints)
}

// CreateSLAPolicy stores a new SLA policy for a tenant (spec §6
// create_sla_policy).
func (c *Core) CreateSLAPolicy(tenantID string, p *models.SLAPolicy) *models.SLAPolicy {
	p.TenantID = tenantID
	if p.ID == "" {
		p.ID = c.newID()
	}
	c.SLA.UpsertPolicy(tenantID, p)
	return p
}

// CheckSLACompliance evaluates one probe's SLA policy (spec §6
// check_sla_compliance).
func (c *Core) CheckSLACompliance(tenantID, probeID string) (sla.Compliance, error) {
	p, err := c.Probes.Get(tenantID, probeID)
	if err != nil {
		return sla.Compliance{}, err
	}
	if p.SLAPolicyID == "" {
		return sla.Compliance{}, errs.NewValidation("probe", "has no SLA policy assigned")
	}
	return c.SLA.CheckCompliance(tenantID, p, time.Now())
}

// CreateAlarmRule stores a new alarm rule (spec §6 create_alarm_rule).
func (c *Core) CreateAlarmRule(tenantID string, rule *models.AlarmRule) *models.AlarmRule {
	rule.TenantID = tenantID
	if rule.ID == "" {
		rule.ID = c.newID()
	}
	c.Alarms.UpsertRule(tenantID, rule)
	return rule
}

// UpdateAlarmRule replaces an existing rule; returns NotFound if it
// does not exist (spec §6 update_alarm_rule).
func (c *Core) UpdateAlarmRule(tenantID string, rule *models.AlarmRule) (*models.AlarmRule, error) {
	if _, ok := c.Alarms.GetRule(tenantID, rule.ID); !ok {
		return nil, errs.NewNotFound("alarm rule", rule.ID)
	}
	rule.TenantID = tenantID
	c.Alarms.UpsertRule(tenantID, rule)
	return rule, nil
}

// DeleteAlarmRule removes a rule (spec §6 delete_alarm_rule).
func (c *Core) DeleteAlarmRule(tenantID, ruleID string) error {
	if _, ok := c.Alarms.GetRule(tenantID, ruleID); !ok {
		return errs.NewNotFound("alarm rule", ruleID)
	}
	c.Alarms.RemoveRule(tenantID, ruleID)
	return nil
}

// CreateFlowCollector registers a new flow collector (spec §6
// create_flow_collector).
func (c *Core) CreateFlowCollector(tenantID string, collector *models.FlowCollector) *models.FlowCollector {
	collector.TenantID = tenantID
	if collector.ID == "" {
		collector.ID = c.newID()
	}
	c.Flows.CreateCollector(tenantID, collector)
	return collector
}

// DashboardSummary is the composite snapshot the
// service_health_dashboard query returns. The hub built by New has no
// state getter, so it sends no "initialState" message on connect.
type DashboardSummary struct {
	ActiveAlarms   int                     `json:"activeAlarms"`
	SeverityCounts map[models.Severity]int `json:"severityCounts"`
	ProbeCount     int                     `json:"probeCount"`
	GeneratedAt    time.Time               `json:"generatedAt"`
}

// ServiceHealthDashboard builds the composite dashboard summary (spec
// §6 service_health_dashboard). hours is accepted for interface parity
// with the other composite queries; alarm/probe counts are always
// current-state, not windowed.
func (c *Core) ServiceHealthDashboard(tenantID string, hours int) DashboardSummary {
	counts := c.Alarms.CountBySeverity(tenantID)
	active := 0
	for _, n := range counts {
		active += n
	}
	return DashboardSummary{
		ActiveAlarms:   active,
		SeverityCounts: counts,
		ProbeCount:     len(c.Probes.List(tenantID)),
		GeneratedAt:    time.Now(),
	}
}

// NetworkPerformanceReport is the composite flow/SLA summary for the
// dashboard's network tab (spec §6 network_performance_report).
type NetworkPerformanceReport struct {
	Traffic     flows.TrafficSummary    `json:"traffic"`
	TopTalkers  []flows.TopTalker       `json:"topTalkers"`
	Protocols   []flows.ProtocolStat    `json:"protocols"`
	Anomalies   flows.AnomalyReport     `json:"anomalies"`
	GeneratedAt time.Time               `json:"generatedAt"`
}

func (c *Core) NetworkPerformanceReport(tenantID string, hours int) NetworkPerformanceReport {
	return NetworkPerformanceReport{
		Traffic:     c.Flows.TrafficSummary(tenantID, hours, ""),
		TopTalkers:  c.Flows.TopTalkers(tenantID, hours, 10, flows.MetricBytes),
		Protocols:   c.Flows.ProtocolStatistics(tenantID, hours, ""),
		Anomalies:   c.Flows.DetectTrafficAnomalies(tenantID, hours, 15, 2.0),
		GeneratedAt: time.Now(),
	}
}

// HealthCheck reports a fixed "ok" status with the current time (spec
// §6 health_check); it does not inspect the core's background loops.
// It never returns an error: the composite
// operation surface is meant to be pollable even when engines are
// degraded.
type HealthStatus struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func (c *Core) HealthCheck() HealthStatus {
	return HealthStatus{Status: "ok", Time: time.Now()}
}
