// Package api's router implements the HTTP transport for spec §6's
// command/query surface over internal/registry.Core. It uses the
// standard library's method-aware ServeMux (Go 1.22+ pattern routing)
// rather than a third-party router: none of the example repos in the
// pack carry one, so the stdlib mux is the grounded choice here.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/svcassure/core/internal/errs"
	"github.com/svcassure/core/internal/flows"
	"github.com/svcassure/core/internal/models"
	"github.com/svcassure/core/internal/registry"
)

// NewRouter builds the HTTP handler exposing core's full command/query
// surface, scoped per tenant by a {tenant} path segment.
func NewRouter(core *registry.Core, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	h := &handler{core: core, log: log.With().Str("component", "api").Logger()}

	mux.HandleFunc("GET /healthz", h.wrap("health", h.healthCheck))

	mux.HandleFunc("POST /tenants/{tenant}/probes", h.wrap("create_probe", h.createProbe))
	mux.HandleFunc("GET /tenants/{tenant}/probes", h.wrap("list_probes", h.listProbes))
	mux.HandleFunc("GET /tenants/{tenant}/probes/{id}", h.wrap("get_probe", h.getProbe))
	mux.HandleFunc("PUT /tenants/{tenant}/probes/{id}", h.wrap("update_probe", h.updateProbe))
	mux.HandleFunc("DELETE /tenants/{tenant}/probes/{id}", h.wrap("delete_probe", h.deleteProbe))
	mux.HandleFunc("POST /tenants/{tenant}/probes/{id}/execute", h.wrap("execute_probe", h.executeProbe))
	mux.HandleFunc("GET /tenants/{tenant}/probes/{id}/statistics", h.wrap("get_probe_statistics", h.probeStatistics))
	mux.HandleFunc("GET /tenants/{tenant}/probes/{id}/timeseries", h.wrap("probe_response_time_series", h.probeTimeSeries))

	mux.HandleFunc("POST /tenants/{tenant}/sla-policies", h.wrap("create_sla_policy", h.createSLAPolicy))
	mux.HandleFunc("GET /tenants/{tenant}/sla/compliance/{probeId}", h.wrap("check_sla_compliance", h.checkSLACompliance))
	mux.HandleFunc("GET /tenants/{tenant}/sla/violations", h.wrap("list_sla_violations", h.listSLAViolations))

	mux.HandleFunc("POST /tenants/{tenant}/alarm-rules", h.wrap("create_alarm_rule", h.createAlarmRule))
	mux.HandleFunc("GET /tenants/{tenant}/alarm-rules", h.wrap("list_alarm_rules", h.listAlarmRules))
	mux.HandleFunc("PUT /tenants/{tenant}/alarm-rules/{id}", h.wrap("update_alarm_rule", h.updateAlarmRule))
	mux.HandleFunc("DELETE /tenants/{tenant}/alarm-rules/{id}", h.wrap("delete_alarm_rule", h.deleteAlarmRule))

	mux.HandleFunc("POST /tenants/{tenant}/events/snmp-trap", h.wrap("process_snmp_trap", h.processSNMPTrap))
	mux.HandleFunc("POST /tenants/{tenant}/events/syslog", h.wrap("process_syslog", h.processSyslog))

	mux.HandleFunc("GET /tenants/{tenant}/alarms", h.wrap("list_active_alarms", h.listActiveAlarms))
	mux.HandleFunc("POST /tenants/{tenant}/alarms/{id}/acknowledge", h.wrap("acknowledge_alarm", h.acknowledgeAlarm))
	mux.HandleFunc("POST /tenants/{tenant}/alarms/{id}/clear", h.wrap("clear_alarm", h.clearAlarm))
	mux.HandleFunc("POST /tenants/{tenant}/alarms/suppress", h.wrap("suppress_alarms", h.suppressAlarms))
	mux.HandleFunc("GET /tenants/{tenant}/alarms/statistics", h.wrap("get_alarm_statistics", h.alarmStatistics))

	mux.HandleFunc("POST /tenants/{tenant}/flow-collectors", h.wrap("create_flow_collector", h.createFlowCollector))
	mux.HandleFunc("POST /tenants/{tenant}/flows/ingest", h.wrap("ingest_flow_record", h.ingestFlowRecord))
	mux.HandleFunc("GET /tenants/{tenant}/flows/aggregate", h.wrap("aggregate_flows", h.aggregateFlows))
	mux.HandleFunc("GET /tenants/{tenant}/flows/summary", h.wrap("traffic_summary", h.trafficSummary))
	mux.HandleFunc("GET /tenants/{tenant}/flows/top-talkers", h.wrap("top_talkers", h.topTalkers))
	mux.HandleFunc("GET /tenants/{tenant}/flows/protocols", h.wrap("protocol_statistics", h.protocolStatistics))
	mux.HandleFunc("GET /tenants/{tenant}/flows/subnets", h.wrap("traffic_by_subnet", h.trafficBySubnet))
	mux.HandleFunc("GET /tenants/{tenant}/flows/anomalies", h.wrap("detect_traffic_anomalies", h.detectAnomalies))

	mux.HandleFunc("GET /tenants/{tenant}/dashboard", h.wrap("service_health_dashboard", h.serviceHealthDashboard))
	mux.HandleFunc("GET /tenants/{tenant}/network-report", h.wrap("network_performance_report", h.networkPerformanceReport))

	mux.HandleFunc("GET /tenants/{tenant}/stream", h.core.Hub.HandleWebSocket)

	return mux
}

type handler struct {
	core *registry.Core
	log  zerolog.Logger
}

// wrap times the request, records prometheus metrics under route, and
// recovers from panics so one handler failure never takes the server
// down.
func (h *handler) wrap(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				h.log.Error().Interface("panic", rec).Str("route", route).Msg("handler panicked")
				writeError(sw, errs.NewInternal("internal error", nil))
			}
			recordRequest(route, statusClass(sw.status), time.Since(start).Seconds())
		}()

		fn(sw, r)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	appErr, ok := err.(*errs.Error)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	status := http.StatusInternalServerError
	switch appErr.Kind {
	case errs.NotFound:
		status = http.StatusNotFound
	case errs.Validation:
		status = http.StatusBadRequest
	case errs.InvalidState:
		status = http.StatusConflict
	case errs.Conflict:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": appErr.Error()})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errs.NewValidation("body", "invalid JSON: "+err.Error())
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// --- health ---

func (h *handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.HealthCheck())
}

// --- probes ---

func (h *handler) createProbe(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	var p models.Probe
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	created, err := h.core.Probes.Create(r.Context(), tenant, &p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) listProbes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.Probes.List(r.PathValue("tenant")))
}

func (h *handler) getProbe(w http.ResponseWriter, r *http.Request) {
	p, err := h.core.Probes.Get(r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) updateProbe(w http.ResponseWriter, r *http.Request) {
	var patch models.Probe
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.core.Probes.Update(r.Context(), r.PathValue("tenant"), r.PathValue("id"), func(p *models.Probe) {
		*p = patch
		p.ID = r.PathValue("id")
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteProbe(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Probes.Delete(r.Context(), r.PathValue("tenant"), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) executeProbe(w http.ResponseWriter, r *http.Request) {
	result, err := h.core.ExecuteProbe(r.Context(), r.PathValue("tenant"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) probeStatistics(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	writeJSON(w, http.StatusOK, h.core.GetProbeStatistics(r.PathValue("tenant"), r.PathValue("id"), hours))
}

func (h *handler) probeTimeSeries(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	points := queryInt(r, "points", 200)
	writeJSON(w, http.StatusOK, h.core.ProbeResponseTimeSeries(r.PathValue("tenant"), r.PathValue("id"), hours, points))
}

// --- SLA ---

func (h *handler) createSLAPolicy(w http.ResponseWriter, r *http.Request) {
	var p models.SLAPolicy
	if err := decodeBody(r, &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.core.CreateSLAPolicy(r.PathValue("tenant"), &p))
}

func (h *handler) checkSLACompliance(w http.ResponseWriter, r *http.Request) {
	c, err := h.core.CheckSLACompliance(r.PathValue("tenant"), r.PathValue("probeId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) listSLAViolations(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	probeID := r.URL.Query().Get("probeId")
	writeJSON(w, http.StatusOK, h.core.SLA.ListViolations(r.PathValue("tenant"), hours, probeID))
}

// --- alarm rules ---

func (h *handler) createAlarmRule(w http.ResponseWriter, r *http.Request) {
	var rule models.AlarmRule
	if err := decodeBody(r, &rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.core.CreateAlarmRule(r.PathValue("tenant"), &rule))
}

func (h *handler) listAlarmRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.Alarms.ListRules(r.PathValue("tenant")))
}

func (h *handler) updateAlarmRule(w http.ResponseWriter, r *http.Request) {
	var rule models.AlarmRule
	if err := decodeBody(r, &rule); err != nil {
		writeError(w, err)
		return
	}
	rule.ID = r.PathValue("id")
	updated, err := h.core.UpdateAlarmRule(r.PathValue("tenant"), &rule)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteAlarmRule(w http.ResponseWriter, r *http.Request) {
	if err := h.core.DeleteAlarmRule(r.PathValue("tenant"), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- event ingest ---

type snmpTrapRequest struct {
	Device string `json:"device"`
	IP     string `json:"ip"`
	Raw    string `json:"raw"`
}

func (h *handler) processSNMPTrap(w http.ResponseWriter, r *http.Request) {
	var req snmpTrapRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	fired := h.core.IngestSNMPTrap(r.Context(), r.PathValue("tenant"), req.Raw, req.Device, req.IP)
	writeJSON(w, http.StatusOK, fired)
}

type syslogRequest struct {
	Device string `json:"device"`
	IP     string `json:"ip"`
	Raw    string `json:"raw"`
}

func (h *handler) processSyslog(w http.ResponseWriter, r *http.Request) {
	var req syslogRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	fired := h.core.IngestSyslog(r.Context(), r.PathValue("tenant"), req.Raw, req.Device, req.IP)
	writeJSON(w, http.StatusOK, fired)
}

// --- alarms ---

func (h *handler) listActiveAlarms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.Alarms.List(r.PathValue("tenant")))
}

type alarmActionRequest struct {
	By      string `json:"by"`
	Comment string `json:"comment"`
}

func (h *handler) acknowledgeAlarm(w http.ResponseWriter, r *http.Request) {
	var req alarmActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.core.Alarms.Acknowledge(r.PathValue("tenant"), r.PathValue("id"), req.By, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handler) clearAlarm(w http.ResponseWriter, r *http.Request) {
	var req alarmActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.core.Alarms.Clear(r.PathValue("tenant"), r.PathValue("id"), req.By, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type suppressRequest struct {
	Device      string `json:"device"`
	TypePattern string `json:"typePattern"`
	Minutes     int    `json:"minutes"`
	By          string `json:"by"`
}

func (h *handler) suppressAlarms(w http.ResponseWriter, r *http.Request) {
	var req suppressRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	suppression := h.core.Alarms.Suppress(r.PathValue("tenant"), req.Device, req.TypePattern,
		time.Duration(req.Minutes)*time.Minute, req.By)
	writeJSON(w, http.StatusCreated, suppression)
}

func (h *handler) alarmStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.core.Alarms.CountBySeverity(r.PathValue("tenant")))
}

// --- flows ---

func (h *handler) createFlowCollector(w http.ResponseWriter, r *http.Request) {
	var c models.FlowCollector
	if err := decodeBody(r, &c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.core.CreateFlowCollector(r.PathValue("tenant"), &c))
}

func (h *handler) ingestFlowRecord(w http.ResponseWriter, r *http.Request) {
	var rec models.FlowRecord
	if err := decodeBody(r, &rec); err != nil {
		writeError(w, err)
		return
	}
	if err := h.core.Flows.IngestFlowRecord(r.Context(), r.PathValue("tenant"), &rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (h *handler) aggregateFlows(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	collectorID := r.URL.Query().Get("collectorId")

	var groupBy []flows.GroupByField
	if g := r.URL.Query().Get("groupBy"); g != "" {
		groupBy = append(groupBy, flows.GroupByField(g))
	}
	writeJSON(w, http.StatusOK, h.core.Flows.AggregateFlows(r.PathValue("tenant"), start, end, groupBy, collectorID))
}

func (h *handler) trafficSummary(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	collectorID := r.URL.Query().Get("collectorId")
	writeJSON(w, http.StatusOK, h.core.Flows.TrafficSummary(r.PathValue("tenant"), hours, collectorID))
}

func (h *handler) topTalkers(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	limit := queryInt(r, "limit", 10)
	metric := flows.TopTalkerMetric(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = flows.MetricBytes
	}
	collectorID := r.URL.Query().Get("collectorId")
	_ = collectorID // top talkers are computed across all collectors per spec §4.5
	writeJSON(w, http.StatusOK, h.core.Flows.TopTalkers(r.PathValue("tenant"), hours, limit, metric))
}

func (h *handler) protocolStatistics(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	collectorID := r.URL.Query().Get("collectorId")
	writeJSON(w, http.StatusOK, h.core.Flows.ProtocolStatistics(r.PathValue("tenant"), hours, collectorID))
}

func (h *handler) trafficBySubnet(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	mask := queryInt(r, "mask", 24)
	collectorID := r.URL.Query().Get("collectorId")
	writeJSON(w, http.StatusOK, h.core.Flows.TrafficBySubnet(r.PathValue("tenant"), mask, hours, collectorID))
}

func (h *handler) detectAnomalies(w http.ResponseWriter, r *http.Request) {
	baselineHours := queryInt(r, "baselineHours", 24)
	detectionMinutes := queryInt(r, "detectionMinutes", 45)
	threshold := 2.0
	if v := r.URL.Query().Get("threshold"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			threshold = f
		}
	}
	writeJSON(w, http.StatusOK, h.core.Flows.DetectTrafficAnomalies(r.PathValue("tenant"), baselineHours, detectionMinutes, threshold))
}

// --- composite ---

func (h *handler) serviceHealthDashboard(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	writeJSON(w, http.StatusOK, h.core.ServiceHealthDashboard(r.PathValue("tenant"), hours))
}

func (h *handler) networkPerformanceReport(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	writeJSON(w, http.StatusOK, h.core.NetworkPerformanceReport(r.PathValue("tenant"), hours))
}
