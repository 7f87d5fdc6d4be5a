// Package probe implements the per-type active measurement executors
// (spec §4.2). Every executor returns within its deadline and never
// raises an error outward: failures are reported as
// success=false/error_message, matching the ingest-path discipline of
// spec §7.
package probe

import (
	"context"
	"time"

	"github.com/svcassure/core/internal/models"
)

// Executor performs one probe execution against target within the
// given context's deadline.
type Executor interface {
	Execute(ctx context.Context, probeType models.ProbeType, target string, params map[string]string) Outcome
}

// Outcome is the raw measurement an Executor produces; the scheduler
// turns it into a models.ProbeResult.
type Outcome struct {
	Success        bool
	ResponseTimeMs *float64
	StatusCode     *int
	ErrorMessage   string
	Metrics        map[string]float64
}

func timeoutOutcome() Outcome {
	return Outcome{Success: false, ErrorMessage: "timeout"}
}

func errorOutcome(msg string) Outcome {
	return Outcome{Success: false, ErrorMessage: msg}
}

func successOutcome(elapsed time.Duration, metrics map[string]float64) Outcome {
	ms := float64(elapsed.Microseconds()) / 1000.0
	return Outcome{Success: true, ResponseTimeMs: &ms, Metrics: metrics}
}

// MultiExecutor dispatches to the concrete executor for each probe
// type, so the scheduler depends on a single Executor regardless of
// how many probe types exist.
type MultiExecutor struct {
	icmp *ICMPExecutor
	dns  *DNSExecutor
	http *HTTPExecutor
	tcp  *TCPExecutor
}

// NewMultiExecutor wires together the real (non-simulated) per-type
// executors.
func NewMultiExecutor() *MultiExecutor {
	return &MultiExecutor{
		icmp: NewICMPExecutor(),
		dns:  NewDNSExecutor(),
		http: NewHTTPExecutor(),
		tcp:  NewTCPExecutor(),
	}
}

func (m *MultiExecutor) Execute(ctx context.Context, probeType models.ProbeType, target string, params map[string]string) Outcome {
	switch probeType {
	case models.ProbeICMP:
		return m.icmp.Execute(ctx, target, params)
	case models.ProbeDNS:
		return m.dns.Execute(ctx, target, params)
	case models.ProbeHTTP, models.ProbeHTTPS:
		return m.http.Execute(ctx, target, params)
	case models.ProbeTCP, models.ProbeUDP:
		return m.tcp.Execute(ctx, target, params)
	default:
		return errorOutcome("unsupported probe type: " + string(probeType))
	}
}
