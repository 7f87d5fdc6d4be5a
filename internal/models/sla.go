package models

import "time"

// SLAPolicy is a compliance contract referenced by probes (spec §3).
type SLAPolicy struct {
	TenantID                   string  `json:"tenantId"`
	ID                         string  `json:"id"`
	Name                       string  `json:"name"`
	AvailabilityThresholdPct   float64 `json:"availabilityThresholdPercent"`
	LatencyThresholdMs         float64 `json:"latencyThresholdMs"`
	MeasurementWindowHours     int     `json:"measurementWindowHours"`
	ViolationThreshold         int     `json:"violationThreshold"`
	NotificationEnabled        bool    `json:"notificationEnabled"`
}

// MeasurementSnapshot captures the actual-vs-threshold values recorded
// at the moment an SLAViolation is opened or resolved.
type MeasurementSnapshot struct {
	AvailabilityPercent float64 `json:"availabilityPercent"`
	LatencyAvgMs        float64 `json:"latencyAvgMs"`
	SampleCount         int     `json:"sampleCount"`
}

// SLAViolation is a durable compliance breach record (spec §3). At
// most one violation per (ProbeID, PolicyID) may have ResolvedAt nil
// at any time.
type SLAViolation struct {
	TenantID   string               `json:"tenantId"`
	ID         string               `json:"id"`
	ProbeID    string               `json:"probeId"`
	PolicyID   string               `json:"policyId"`
	Actual     MeasurementSnapshot  `json:"actual"`
	Threshold  MeasurementSnapshot  `json:"threshold"`
	DetectedAt time.Time            `json:"detectedAt"`
	ResolvedAt *time.Time           `json:"resolvedAt,omitempty"`
}

// IsOpen reports whether the violation has not yet resolved.
func (v *SLAViolation) IsOpen() bool { return v.ResolvedAt == nil }
