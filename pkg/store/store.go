// Package store persists the core's durable entities to a per-tenant
// SQLite database (modernc.org/sqlite, a pure-Go driver needing no
// cgo). Grounded on the teacher's internal/unifiedresources store
// (store_test.go): one database file per tenant under dataDir,
// reached through a sanitized tenant ID so a hostile tenant_id value
// can't escape the data directory via "..", NUL bytes, or path
// separators.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/svcassure/core/internal/models"
)

const maxTenantIDLength = 64

var unsafeTenantChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeTenantID strips characters that could be used for path
// traversal or SQL-adjacent mischief, bounding the result to a
// reasonable filename length. An all-unsafe input sanitizes to "".
func sanitizeTenantID(raw string) string {
	cleaned := unsafeTenantChars.ReplaceAllString(raw, "")
	for len(cleaned) > 0 && (cleaned[0] == '.' || cleaned[0] == '-') {
		cleaned = cleaned[1:]
	}
	if len(cleaned) > maxTenantIDLength {
		cleaned = cleaned[:maxTenantIDLength]
	}
	return cleaned
}

// schema creates every sa_* table named in spec §6's persisted state
// layout. Complex nested fields (parameters, match criteria, metrics,
// details maps) are stored as JSON blob columns rather than normalized
// out, the same tradeoff the teacher's resource links table makes for
// its own loosely-structured metadata.
const schema = `
CREATE TABLE IF NOT EXISTS sa_probes (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sa_probe_results (
	id TEXT PRIMARY KEY,
	probe_id TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sa_probe_results_probe ON sa_probe_results(probe_id, timestamp);
CREATE TABLE IF NOT EXISTS sa_alarm_rules (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sa_alarms (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sa_alarms_status ON sa_alarms(status);
CREATE TABLE IF NOT EXISTS sa_flow_collectors (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sa_sla_policies (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sa_sla_violations (
	id TEXT PRIMARY KEY,
	probe_id TEXT NOT NULL,
	policy_id TEXT NOT NULL,
	resolved_at DATETIME,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sa_sla_violations_probe_policy ON sa_sla_violations(probe_id, policy_id);
`

// Store is the SQLite-backed durable store for a single tenant.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates (if needed) and opens the tenant-scoped database under
// dataDir/tenants/<sanitized-tenant-id>/core.db.
func Open(dataDir, tenantID string) (*Store, error) {
	safeID := sanitizeTenantID(tenantID)
	if safeID == "" {
		return nil, fmt.Errorf("invalid tenant id %q", tenantID)
	}

	dir := filepath.Join(dataDir, "tenants", safeID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tenant data directory: %w", err)
	}
	dbPath := filepath.Join(dir, "core.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening tenant database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer at a time per file.

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling record: %w", err)
	}
	return string(b), nil
}

// --- Probes ---

func (s *Store) SaveProbe(ctx context.Context, p *models.Probe) error {
	data, err := marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sa_probes(id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`, p.ID, data)
	return err
}

func (s *Store) DeleteProbe(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sa_probes WHERE id = ?`, id)
	return err
}

func (s *Store) LoadProbes(ctx context.Context) ([]*models.Probe, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sa_probes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Probe
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p models.Probe
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("unmarshaling probe: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- Probe results ---

func (s *Store) SaveProbeResult(ctx context.Context, r *models.ProbeResult) error {
	data, err := marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sa_probe_results(id, probe_id, timestamp, data) VALUES (?, ?, ?, ?)`,
		r.ID, r.ProbeID, r.Timestamp, data)
	return err
}

func (s *Store) LoadProbeResultsSince(ctx context.Context, probeID string, since time.Time) ([]models.ProbeResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM sa_probe_results WHERE probe_id = ? AND timestamp >= ? ORDER BY timestamp ASC`,
		probeID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProbeResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r models.ProbeResult
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshaling probe result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneProbeResultsBefore deletes results older than cutoff, used to
// enforce a retention bound on the results table.
func (s *Store) PruneProbeResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sa_probe_results WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Alarm rules ---

func (s *Store) SaveAlarmRule(ctx context.Context, r *models.AlarmRule) error {
	data, err := marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sa_alarm_rules(id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`, r.ID, data)
	return err
}

func (s *Store) DeleteAlarmRule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sa_alarm_rules WHERE id = ?`, id)
	return err
}

func (s *Store) LoadAlarmRules(ctx context.Context) ([]*models.AlarmRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sa_alarm_rules`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AlarmRule
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r models.AlarmRule
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshaling alarm rule: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// --- Alarms ---

func (s *Store) SaveAlarm(ctx context.Context, a *models.Alarm) error {
	data, err := marshal(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sa_alarms(id, status, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		a.ID, string(a.Status), data)
	return err
}

func (s *Store) LoadAlarms(ctx context.Context) ([]*models.Alarm, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sa_alarms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Alarm
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var a models.Alarm
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			return nil, fmt.Errorf("unmarshaling alarm: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// --- Flow collectors ---

func (s *Store) SaveFlowCollector(ctx context.Context, c *models.FlowCollector) error {
	data, err := marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sa_flow_collectors(id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`, c.ID, data)
	return err
}

func (s *Store) LoadFlowCollectors(ctx context.Context) ([]*models.FlowCollector, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sa_flow_collectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.FlowCollector
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c models.FlowCollector
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("unmarshaling flow collector: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// --- SLA policies ---

func (s *Store) SaveSLAPolicy(ctx context.Context, p *models.SLAPolicy) error {
	data, err := marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sa_sla_policies(id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`, p.ID, data)
	return err
}

func (s *Store) LoadSLAPolicies(ctx context.Context) ([]*models.SLAPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sa_sla_policies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SLAPolicy
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p models.SLAPolicy
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("unmarshaling SLA policy: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// --- SLA violations ---

func (s *Store) SaveSLAViolation(ctx context.Context, v *models.SLAViolation) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sa_sla_violations(id, probe_id, policy_id, resolved_at, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET resolved_at = excluded.resolved_at, data = excluded.data`,
		v.ID, v.ProbeID, v.PolicyID, v.ResolvedAt, data)
	return err
}

func (s *Store) LoadSLAViolations(ctx context.Context) ([]*models.SLAViolation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sa_sla_violations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SLAViolation
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v models.SLAViolation
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("unmarshaling SLA violation: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
