// Package notify implements fire-and-forget alarm notification
// delivery. The webhook sink is grounded on the teacher's
// internal/notifications package (webhook_allowlist_test.go,
// webhook_client_test.go): URLs are revalidated immediately before
// every send (not just at config time) and private/loopback/
// link-local/cloud-metadata addresses are blocked unless explicitly
// allowlisted. The check resolves the host itself; the HTTP client
// resolves it again when it dials, and that dial is not checked.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/svcassure/core/internal/models"
)

const (
	maxRedirects   = 2
	requestTimeout = 10 * time.Second
)

var cloudMetadataHosts = map[string]bool{
	"metadata.google.internal": true,
	"metadata.goog":            true,
}

// WebhookConfig describes one outbound alarm notification target.
type WebhookConfig struct {
	Name string
	URL  string
}

// WebhookSink posts alarm lifecycle events to configured webhooks. It
// implements alarms.NotificationSink.
type WebhookSink struct {
	client          *http.Client
	webhooks        []WebhookConfig
	allowedPrivateCIDRs []*net.IPNet
	log             zerolog.Logger
}

func NewWebhookSink(webhooks []WebhookConfig, log zerolog.Logger) *WebhookSink {
	return &WebhookSink{
		client: &http.Client{
			Timeout: requestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return validateWebhookURL(req.URL.String(), nil)
			},
		},
		webhooks: webhooks,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

// UpdateAllowedPrivateCIDRs parses a comma-separated CIDR/IP list that
// is permitted despite being in private address space (e.g. an
// internal monitoring collector). Loopback, link-local, and cloud
// metadata addresses are never allowlisted.
func (s *WebhookSink) UpdateAllowedPrivateCIDRs(cidrs string) error {
	if cidrs == "" {
		s.allowedPrivateCIDRs = nil
		return nil
	}
	var nets []*net.IPNet
	for _, entry := range strings.Split(cidrs, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return fmt.Errorf("invalid IP or CIDR %q", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			entry = fmt.Sprintf("%s/%d", entry, bits)
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return fmt.Errorf("invalid CIDR %q: %w", entry, err)
		}
		nets = append(nets, network)
	}
	s.allowedPrivateCIDRs = nets
	return nil
}

func (s *WebhookSink) isAllowlisted(ip net.IP) bool {
	for _, n := range s.allowedPrivateCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ValidateWebhookURL rejects URLs that could be used to reach internal
// infrastructure (SSRF). Loopback, link-local, and cloud metadata
// endpoints are always blocked; other private ranges are blocked
// unless explicitly allowlisted.
func (s *WebhookSink) ValidateWebhookURL(raw string) error {
	var allow func(net.IP) bool
	if s != nil {
		allow = s.isAllowlisted
	}
	return validateWebhookURL(raw, allow)
}

func validateWebhookURL(raw string, allow func(net.IP) bool) error {
	if raw == "" {
		return fmt.Errorf("webhook URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL must use http or https")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("webhook URL missing hostname")
	}
	if cloudMetadataHosts[strings.ToLower(host)] {
		return fmt.Errorf("webhook URL targets a cloud metadata endpoint")
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		if ip := net.ParseIP(host); ip != nil {
			ips = []net.IP{ip}
		} else {
			return fmt.Errorf("failed to resolve webhook hostname: %w", err)
		}
	}

	for _, ip := range ips {
		if ip.IsLoopback() {
			return fmt.Errorf("webhook URL resolves to a loopback address")
		}
		if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return fmt.Errorf("webhook URL resolves to a link-local address")
		}
		if ip.Equal(net.IPv4(169, 254, 169, 254)) {
			return fmt.Errorf("webhook URL targets a cloud metadata endpoint")
		}
		if ip.IsPrivate() && (allow == nil || !allow(ip)) {
			return fmt.Errorf("webhook URL resolves to a private address not in the allowlist")
		}
	}
	return nil
}

// NotifyAlarm implements alarms.NotificationSink, posting alarm
// lifecycle events to every configured webhook. Delivery is fire-and-
// forget: failures are logged, never surfaced to the caller, matching
// spec §7's rule that ingest/notification paths never propagate
// errors outward.
func (s *WebhookSink) NotifyAlarm(ctx context.Context, tenantID string, alarm *models.Alarm, event string) {
	payload, err := json.Marshal(struct {
		TenantID string        `json:"tenantId"`
		Event    string        `json:"event"`
		Alarm    *models.Alarm `json:"alarm"`
	}{TenantID: tenantID, Event: event, Alarm: alarm})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal alarm notification payload")
		return
	}

	for _, wh := range s.webhooks {
		go s.deliver(ctx, wh, payload)
	}
}

func (s *WebhookSink) deliver(ctx context.Context, wh WebhookConfig, payload []byte) {
	if err := s.ValidateWebhookURL(wh.URL); err != nil {
		s.log.Warn().Str("webhook", wh.Name).Err(err).Msg("webhook URL validation failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(payload))
	if err != nil {
		s.log.Error().Str("webhook", wh.Name).Err(err).Msg("failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Str("webhook", wh.Name).Err(err).Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.log.Warn().Str("webhook", wh.Name).Int("status", resp.StatusCode).Msg("webhook returned non-2xx status")
	}
}
