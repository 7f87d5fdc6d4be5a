package probe

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPExecutor performs an HTTP/HTTPS probe (spec §4.2). Success
// requires a response within the deadline whose status matches the
// expected status (or accept set); metrics report time-to-first-byte
// and total time.
type HTTPExecutor struct {
	client *http.Client
}

func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{client: &http.Client{}}
}

func (e *HTTPExecutor) Execute(ctx context.Context, target string, params map[string]string) Outcome {
	method := params["method"]
	if method == "" {
		method = http.MethodGet
	}

	var body *strings.Reader
	if b, ok := params["body"]; ok {
		body = strings.NewReader(b)
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return errorOutcome("invalid request: " + err.Error())
	}
	for k, v := range params {
		if strings.HasPrefix(k, "header.") {
			req.Header.Set(strings.TrimPrefix(k, "header."), v)
		}
	}

	accepted := acceptedStatuses(params)

	start := time.Now()
	resp, err := e.client.Do(req)
	ttfb := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return timeoutOutcome()
		}
		return errorOutcome("request failed: " + err.Error())
	}
	defer resp.Body.Close()

	total := time.Since(start)
	status := resp.StatusCode

	metrics := map[string]float64{
		"ttfb_ms":  float64(ttfb.Microseconds()) / 1000.0,
		"total_ms": float64(total.Microseconds()) / 1000.0,
	}

	if !accepted[status] {
		return Outcome{
			Success:      false,
			StatusCode:   &status,
			ErrorMessage: "unexpected status " + strconv.Itoa(status),
			Metrics:      metrics,
		}
	}

	out := successOutcome(total, metrics)
	out.StatusCode = &status
	return out
}

func acceptedStatuses(params map[string]string) map[int]bool {
	expected := 200
	if v, ok := params["expected_status"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			expected = n
		}
	}
	accepted := map[int]bool{expected: true}
	if set, ok := params["accept_statuses"]; ok {
		for _, tok := range strings.Split(set, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(tok)); err == nil {
				accepted[n] = true
			}
		}
	}
	return accepted
}
