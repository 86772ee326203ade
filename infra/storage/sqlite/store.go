// Package sqlite provides the embedded durable store for threshold
// configuration and the solve audit trail.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tradedesk/routeopt/core/audit"
	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/thresholds"
)

// Store persists configs and outcomes in a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens or creates the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS threshold_configs (
        product_group TEXT PRIMARY KEY,
        config TEXT NOT NULL
    );
    CREATE TABLE IF NOT EXISTS solve_runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT UNIQUE,
        product_group TEXT,
        ts INTEGER,
        status TEXT,
        signal TEXT,
        profit REAL,
        record TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_solve_runs_group_ts ON solve_runs(product_group, ts);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

var (
	_ thresholds.Persistence = (*Store)(nil)
	_ audit.Store            = (*Store)(nil)
)

// LoadConfigs returns every stored threshold configuration.
func (s *Store) LoadConfigs(ctx context.Context) ([]thresholds.Config, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT config FROM threshold_configs`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []thresholds.Config
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var cfg thresholds.Config
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// SaveConfig upserts one product group's configuration.
func (s *Store) SaveConfig(ctx context.Context, cfg thresholds.Config) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO threshold_configs (product_group, config) VALUES (?, ?)
         ON CONFLICT(product_group) DO UPDATE SET config = excluded.config`,
		cfg.ProductGroup, string(b))
	return err
}

// SaveOutcome appends one solve run to the audit trail.
func (s *Store) SaveOutcome(ctx context.Context, o *model.Outcome) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	status, signal, profit := outcomeColumns(o)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO solve_runs (run_id, product_group, ts, status, signal, profit, record)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.ProductGroup, o.FinishedAt.Unix(), status, signal, profit, string(b))
	return err
}

// QueryOutcomes returns runs matching q, newest first.
func (s *Store) QueryOutcomes(ctx context.Context, q audit.Query) ([]*model.Outcome, error) {
	query := `SELECT record FROM solve_runs WHERE 1=1`
	var args []any
	if q.ProductGroup != "" {
		query += ` AND product_group = ?`
		args = append(args, q.ProductGroup)
	}
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.Unix())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.Unix())
	}
	query += ` ORDER BY ts DESC, id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Outcome
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var o model.Outcome
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// GetOutcome returns one run by its ID.
func (s *Store) GetOutcome(ctx context.Context, runID string) (*model.Outcome, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM solve_runs WHERE run_id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, audit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var o model.Outcome
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	return &o, nil
}

func outcomeColumns(o *model.Outcome) (status, signal string, profit float64) {
	status = "transport_error"
	if o.Result != nil {
		status = o.Result.Status.String()
		profit = o.Result.Profit
	}
	if o.Distribution != nil {
		signal = o.Distribution.Signal.String()
	}
	return status, signal, profit
}
