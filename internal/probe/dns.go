package probe

import (
	"context"
	"net"
	"time"

	"github.com/rs/dnscache"
)

// DNSExecutor performs a DNS resolution probe (spec §4.2). Lookups go
// through the system resolver; a dns_server parameter is not used.
// For record_type A or AAAA (the default is A), success means the host
// resolved to at least one address within the deadline; any other
// record_type is checked with a CNAME lookup only, and succeeds when a
// canonical name comes back. The reported metric is resolution time.
//
// It wraps github.com/rs/dnscache so that repeated probes against the
// same hostname amortize resolver round trips between ticks, the same
// library the teacher repo carries for its outbound HTTP clients.
type DNSExecutor struct {
	resolver *dnscache.Resolver
}

func NewDNSExecutor() *DNSExecutor {
	return &DNSExecutor{resolver: &dnscache.Resolver{}}
}

func (e *DNSExecutor) Execute(ctx context.Context, target string, params map[string]string) Outcome {
	recordType := params["record_type"]
	if recordType == "" {
		recordType = "A"
	}

	start := time.Now()
	var (
		addrs []string
		err   error
	)

	switch recordType {
	case "A", "AAAA", "":
		addrs, err = e.resolver.LookupHost(ctx, target)
	default:
		// Every other type: a CNAME lookup on the system resolver;
		// dnscache only caches forward A/AAAA lookups.
		r := net.DefaultResolver
		var cname string
		cname, err = r.LookupCNAME(ctx, target)
		if err == nil && cname != "" {
			addrs = []string{cname}
		}
	}

	elapsed := time.Since(start)
	if ctx.Err() != nil {
		return timeoutOutcome()
	}
	if err != nil {
		return errorOutcome("resolution failed: " + err.Error())
	}
	if len(addrs) == 0 {
		return errorOutcome("no answers of requested type")
	}

	return successOutcome(elapsed, map[string]float64{
		"resolution_time_ms": float64(elapsed.Microseconds()) / 1000.0,
		"answer_count":       float64(len(addrs)),
	})
}
