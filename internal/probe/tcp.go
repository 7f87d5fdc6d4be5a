package probe

import (
	"context"
	"net"
	"strings"
	"time"
)

// TCPExecutor performs a TCP handshake probe (spec §4.2). Success
// means the handshake completed within the deadline; the metric is
// connect time.
type TCPExecutor struct {
	dialer net.Dialer
}

func NewTCPExecutor() *TCPExecutor {
	return &TCPExecutor{}
}

func (e *TCPExecutor) Execute(ctx context.Context, target string, params map[string]string) Outcome {
	addr := target
	if port, ok := params["port"]; ok && !strings.Contains(target, ":") {
		addr = net.JoinHostPort(target, port)
	}

	start := time.Now()
	conn, err := e.dialer.DialContext(ctx, "tcp", addr)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return timeoutOutcome()
		}
		return errorOutcome("connect failed: " + err.Error())
	}
	conn.Close()

	return successOutcome(elapsed, map[string]float64{"connect_time_ms": float64(elapsed.Microseconds()) / 1000.0})
}
