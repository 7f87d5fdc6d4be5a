package flows

import (
	"context"
	"testing"
	"time"

	"github.com/svcassure/core/internal/models"
)

func newCollector(id string, samplingRate int) *models.FlowCollector {
	return &models.FlowCollector{TenantID: "t1", ID: id, Name: id, SamplingRate: samplingRate}
}

func TestIngestFlowRecordScalesBySamplingRate(t *testing.T) {
	m := New(DefaultConfig())
	m.CreateCollector("t1", newCollector("c1", 10))

	rec := &models.FlowRecord{CollectorID: "c1", SrcAddr: "10.0.0.1", DstAddr: "10.0.0.2", Bytes: 100, Packets: 1, FlowStart: time.Now()}
	if err := m.IngestFlowRecord(context.Background(), "t1", rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Bytes != 1000 {
		t.Fatalf("expected scaled bytes 1000, got %d", rec.Bytes)
	}
	if rec.Raw.Bytes != 100 {
		t.Fatalf("expected raw bytes preserved at 100, got %d", rec.Raw.Bytes)
	}

	collector, _ := m.GetCollector("t1", "c1")
	if collector.FlowsReceived != 1 {
		t.Fatalf("expected flows_received 1, got %d", collector.FlowsReceived)
	}
	if collector.BytesReceived != 1000 {
		t.Fatalf("expected bytes_received 1000, got %d", collector.BytesReceived)
	}
}

func TestIngestFlowRecordUnknownCollector(t *testing.T) {
	m := New(DefaultConfig())
	err := m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "missing"})
	if err == nil {
		t.Fatalf("expected NotFound error")
	}
}

func TestIngestFlowRecordRejectsNegativeCounters(t *testing.T) {
	m := New(DefaultConfig())
	m.CreateCollector("t1", newCollector("c1", 1))
	err := m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "c1", Bytes: -1})
	if err == nil {
		t.Fatalf("expected validation error for negative bytes")
	}
}

func TestTopTalkersScenario(t *testing.T) {
	// spec §8 scenario 5
	m := New(DefaultConfig())
	m.CreateCollector("t1", newCollector("c1", 10))

	flows := []struct {
		src   string
		bytes int64
	}{
		{"A", 100}, {"B", 50}, {"A", 100}, {"C", 30}, {"A", 100},
	}
	now := time.Now()
	for _, f := range flows {
		rec := &models.FlowRecord{CollectorID: "c1", SrcAddr: f.src, DstAddr: "any", Bytes: f.bytes, Packets: 1, FlowStart: now}
		if err := m.IngestFlowRecord(context.Background(), "t1", rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	top := m.TopTalkers("t1", 1, 2, MetricBytes)
	if len(top) != 2 {
		t.Fatalf("expected 2 top talkers, got %d", len(top))
	}
	if top[0].Rank != 1 || top[0].SrcAddr != "A" || top[0].Value != 3000 {
		t.Fatalf("expected rank1=A/3000, got %+v", top[0])
	}
	if top[1].Rank != 2 || top[1].SrcAddr != "B" || top[1].Value != 500 {
		t.Fatalf("expected rank2=B/500, got %+v", top[1])
	}
}

func TestAggregateFlowsGroupsByField(t *testing.T) {
	m := New(DefaultConfig())
	m.CreateCollector("t1", newCollector("c1", 1))
	now := time.Now()

	m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "c1", SrcAddr: "10.0.0.1", DstAddr: "10.0.0.9", Protocol: 6, Bytes: 100, Packets: 1, FlowStart: now})
	m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "c1", SrcAddr: "10.0.0.1", DstAddr: "10.0.0.8", Protocol: 6, Bytes: 50, Packets: 1, FlowStart: now})
	m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "c1", SrcAddr: "10.0.0.2", DstAddr: "10.0.0.9", Protocol: 17, Bytes: 10, Packets: 1, FlowStart: now})

	groups := m.AggregateFlows("t1", now.Add(-time.Minute), now.Add(time.Minute), []GroupByField{GroupBySrcAddr}, "")
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Key != "10.0.0.1" || groups[0].Bytes != 150 || groups[0].DistinctDests != 2 {
		t.Fatalf("unexpected top group: %+v", groups[0])
	}
}

func TestProtocolStatistics(t *testing.T) {
	m := New(DefaultConfig())
	m.CreateCollector("t1", newCollector("c1", 1))
	now := time.Now()
	m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "c1", SrcAddr: "a", DstAddr: "b", Protocol: 6, Bytes: 100, Packets: 1, FlowStart: now})
	m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "c1", SrcAddr: "a", DstAddr: "b", Protocol: 17, Bytes: 10, Packets: 1, FlowStart: now})

	stats := m.ProtocolStatistics("t1", 1, "")
	if len(stats) != 2 {
		t.Fatalf("expected 2 protocol rows, got %d", len(stats))
	}
	if stats[0].Name != "TCP" || stats[0].Bytes != 100 {
		t.Fatalf("expected TCP leading, got %+v", stats[0])
	}
}

func TestTrafficBySubnet(t *testing.T) {
	m := New(DefaultConfig())
	m.CreateCollector("t1", newCollector("c1", 1))
	now := time.Now()
	m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "c1", SrcAddr: "10.0.0.1", DstAddr: "b", Bytes: 100, Packets: 1, FlowStart: now})
	m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "c1", SrcAddr: "10.0.0.2", DstAddr: "b", Bytes: 50, Packets: 1, FlowStart: now})
	m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "c1", SrcAddr: "10.0.1.1", DstAddr: "b", Bytes: 10, Packets: 1, FlowStart: now})

	groups := m.TrafficBySubnet("t1", 24, 1, "")
	if len(groups) != 2 {
		t.Fatalf("expected 2 subnet groups, got %d: %+v", len(groups), groups)
	}
	if groups[0].Bytes != 150 {
		t.Fatalf("expected leading subnet bytes 150, got %d", groups[0].Bytes)
	}
}

func TestDetectTrafficAnomaliesInsufficientBaseline(t *testing.T) {
	// spec §8 scenario 6
	m := New(DefaultConfig())
	m.CreateCollector("t1", newCollector("c1", 1))
	now := time.Now()
	for i := 0; i < 3; i++ {
		m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{
			CollectorID: "c1", SrcAddr: "a", DstAddr: "b", Bytes: 100, Packets: 1,
			FlowStart: now.Add(-time.Duration(i+1) * time.Hour),
		})
	}

	report := m.DetectTrafficAnomalies("t1", 24, 45, 2.0)
	if !report.BaselineInsufficient {
		t.Fatalf("expected baseline_insufficient=true")
	}
	if report.AnomaliesDetected {
		t.Fatalf("expected no anomalies reported")
	}
	if len(report.Anomalies) != 0 {
		t.Fatalf("expected empty anomalies list")
	}
}

func TestIngestFlowRecordEvictsOldestOnOverflow(t *testing.T) {
	cfg := Config{MaxMemoryFlows: 2}
	m := New(cfg)
	m.CreateCollector("t1", newCollector("c1", 1))
	now := time.Now()
	for i := 0; i < 3; i++ {
		m.IngestFlowRecord(context.Background(), "t1", &models.FlowRecord{CollectorID: "c1", SrcAddr: "a", DstAddr: "b", Bytes: 1, Packets: 1, FlowStart: now})
	}
	collector, _ := m.GetCollector("t1", "c1")
	if collector.DroppedFlows != 1 {
		t.Fatalf("expected 1 dropped flow from overflow, got %d", collector.DroppedFlows)
	}
}
