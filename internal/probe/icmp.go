package probe

import (
	"context"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ICMPExecutor performs an ICMP echo probe (spec §4.2). Success means
// at least one echo reply arrived within the deadline; the reported
// metric is round-trip time.
type ICMPExecutor struct{}

func NewICMPExecutor() *ICMPExecutor { return &ICMPExecutor{} }

func (e *ICMPExecutor) Execute(ctx context.Context, target string, _ map[string]string) Outcome {
	deadline, hasDeadline := ctx.Deadline()

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return errorOutcome("icmp socket unavailable: " + err.Error())
	}
	defer conn.Close()

	if hasDeadline {
		conn.SetDeadline(deadline)
	}

	dst, err := net.ResolveIPAddr("ip4", target)
	if err != nil {
		return errorOutcome("resolve failed: " + err.Error())
	}

	id := int(time.Now().UnixNano() & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho, Code: 0,
		Body: &icmp.Echo{ID: id, Seq: 1, Data: []byte("svcassure-probe")},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return errorOutcome("marshal failed: " + err.Error())
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, &net.IPAddr{IP: dst.IP}); err != nil {
		return errorOutcome("write failed: " + err.Error())
	}

	rb := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			if ctx.Err() != nil {
				return timeoutOutcome()
			}
			return errorOutcome("read failed: " + err.Error())
		}

		rm, err := icmp.ParseMessage(1, rb[:n])
		if err != nil {
			continue
		}
		if rm.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		if echo, ok := rm.Body.(*icmp.Echo); ok && echo.ID == id {
			return successOutcome(time.Since(start), map[string]float64{"rtt_ms": float64(time.Since(start).Microseconds()) / 1000.0})
		}
	}
}
