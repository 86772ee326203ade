// Package postgres provides the shared-database backend for threshold
// configuration and the solve audit trail. It is the deployment choice
// when several desks read the same run history.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradedesk/routeopt/core/audit"
	"github.com/tradedesk/routeopt/core/model"
	"github.com/tradedesk/routeopt/core/thresholds"
)

// Store persists configs and outcomes in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ thresholds.Persistence = (*Store)(nil)
	_ audit.Store            = (*Store)(nil)
)

// New connects to dsn, verifies the connection and ensures schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS threshold_configs (
            product_group TEXT PRIMARY KEY,
            config JSONB NOT NULL
        );
        CREATE TABLE IF NOT EXISTS solve_runs (
            id BIGSERIAL PRIMARY KEY,
            run_id TEXT UNIQUE,
            product_group TEXT,
            ts TIMESTAMPTZ,
            status TEXT,
            signal TEXT,
            profit DOUBLE PRECISION,
            record JSONB NOT NULL
        );
        CREATE INDEX IF NOT EXISTS idx_solve_runs_group_ts ON solve_runs(product_group, ts);
    `)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadConfigs returns every stored threshold configuration.
func (s *Store) LoadConfigs(ctx context.Context) ([]thresholds.Config, error) {
	rows, err := s.pool.Query(ctx, `SELECT config FROM threshold_configs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []thresholds.Config
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var cfg thresholds.Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO threshold_configs (product_group, config) VALUES ($1, $2)
         ON CONFLICT (product_group) DO UPDATE SET config = EXCLUDED.config`,
		cfg.ProductGroup, b)
	return err
}

// SaveOutcome appends one solve run to the audit trail. Re-saving the
// same run ID is treated as a no-op rather than an error so that
// at-least-once delivery upstream stays harmless.
func (s *Store) SaveOutcome(ctx context.Context, o *model.Outcome) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	status := "transport_error"
	var profit float64
	if o.Result != nil {
		status = o.Result.Status.String()
		profit = o.Result.Profit
	}
	var signal string
	if o.Distribution != nil {
		signal = o.Distribution.Signal.String()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO solve_runs (run_id, product_group, ts, status, signal, profit, record)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.RunID, o.ProductGroup, o.FinishedAt, status, signal, profit, b)
	if isDuplicateKeyError(err) {
		return nil
	}
	return err
}

// QueryOutcomes returns runs matching q, newest first.
func (s *Store) QueryOutcomes(ctx context.Context, q audit.Query) ([]*model.Outcome, error) {
	query := `SELECT record FROM solve_runs WHERE 1=1`
	var args []any
	if q.ProductGroup != "" {
		args = append(args, q.ProductGroup)
		query += fmt.Sprintf(" AND product_group = $%d", len(args))
	}
	if !q.Start.IsZero() {
		args = append(args, q.Start)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if !q.End.IsZero() {
		args = append(args, q.End)
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}
	query += ` ORDER BY ts DESC, id DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Outcome
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var o model.Outcome
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("decode outcome: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// GetOutcome returns one run by its ID.
func (s *Store) GetOutcome(ctx context.Context, runID string) (*model.Outcome, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM solve_runs WHERE run_id = $1`, runID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, audit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var o model.Outcome
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	return &o, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
