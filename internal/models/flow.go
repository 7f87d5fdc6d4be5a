package models

import "time"

// FlowType is the wire protocol a FlowCollector speaks.
type FlowType string

const (
	FlowNetflow FlowType = "NETFLOW"
	FlowSflow   FlowType = "SFLOW"
	FlowIPFIX   FlowType = "IPFIX"
	FlowJFlow   FlowType = "JFLOW"
)

// FlowCollector is configuration for a flow source (spec §3).
type FlowCollector struct {
	TenantID       string    `json:"tenantId"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           FlowType  `json:"flowType"`
	ListenPort     int       `json:"listenPort"`
	ListenAddress  string    `json:"listenAddress"`
	Version        int       `json:"version"`
	SamplingRate   int       `json:"samplingRate"`
	ActiveTimeoutS int       `json:"activeTimeoutS"`
	InactiveTimeoutS int     `json:"inactiveTimeoutS"`
	Status         string    `json:"status"`
	FlowsReceived  int64     `json:"flowsReceived"`
	BytesReceived  int64     `json:"bytesReceived"`
	DroppedFlows   int64     `json:"droppedFlows"`
	LastFlow       time.Time `json:"lastFlow,omitempty"`
}

// RawFlowCounters retains the exporter-reported values prior to
// sampling-rate scaling (spec §9 Open Question 2: scale once at
// ingest, keep both raw and scaled).
type RawFlowCounters struct {
	Packets int64 `json:"packets"`
	Bytes   int64 `json:"bytes"`
}

// FlowRecord is an immutable five-tuple traffic sample (spec §3).
type FlowRecord struct {
	TenantID    string    `json:"tenantId"`
	ID          string    `json:"id"`
	CollectorID string    `json:"collectorId"`
	ExporterIP  string    `json:"exporterIp"`
	SrcAddr     string    `json:"srcAddr"`
	DstAddr     string    `json:"dstAddr"`
	SrcPort     int       `json:"srcPort"`
	DstPort     int       `json:"dstPort"`
	Protocol    int       `json:"protocol"`
	ToS         int       `json:"tos"`
	TCPFlags    int       `json:"tcpFlags"`
	Packets     int64     `json:"packets"` // scaled
	Bytes       int64     `json:"bytes"`   // scaled
	Raw         RawFlowCounters `json:"raw"`
	FlowStart   time.Time `json:"flowStart"`
	FlowEnd     time.Time `json:"flowEnd"`
	IngestedAt  time.Time `json:"ingestedAt"`
	SrcIfIndex  int       `json:"srcIfIndex,omitempty"`
	DstIfIndex  int       `json:"dstIfIndex,omitempty"`
	NextHop     string    `json:"nextHop,omitempty"`
}

// ProtocolName maps well-known IANA protocol numbers to display names
// (spec §4.5, "Protocol statistics").
func ProtocolName(protocol int) string {
	switch protocol {
	case 1:
		return "ICMP"
	case 6:
		return "TCP"
	case 17:
		return "UDP"
	case 47:
		return "GRE"
	case 50:
		return "ESP"
	case 58:
		return "ICMPv6"
	default:
		return "UNKNOWN"
	}
}
