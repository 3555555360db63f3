package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/platoonsim/core/model"
)

// SQLiteStore persists summaries in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS run_summaries (
        run_id TEXT PRIMARY KEY,
        scenario TEXT,
        platoon_size INTEGER,
        num_platoons INTEGER,
        traffic TEXT,
        steps INTEGER,
        metrics TEXT,
        created_at INTEGER
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// SaveSummary inserts or replaces the summary of a run. Summaries without a
// run id are keyed by scenario name.
func (s *SQLiteStore) SaveSummary(ctx context.Context, sum model.Summary) error {
	b, err := json.Marshal(finite(sum.Values))
	if err != nil {
		return err
	}
	key := sum.RunID
	if key == "" {
		key = sum.Scenario.Name()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO run_summaries
        (run_id, scenario, platoon_size, num_platoons, traffic, steps, metrics, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(run_id) DO UPDATE SET
            steps = excluded.steps,
            metrics = excluded.metrics,
            created_at = excluded.created_at`,
		key, sum.Scenario.Name(), sum.Scenario.PlatoonSize, sum.Scenario.NumPlatoons,
		sum.Scenario.Traffic.String(), sum.Steps, string(b), time.Now().UnixNano())
	return err
}

// Summaries returns the summaries matching f in save order.
func (s *SQLiteStore) Summaries(ctx context.Context, f Filter) ([]model.Summary, error) {
	var args []any
	query := `SELECT run_id, platoon_size, num_platoons, traffic, steps, metrics FROM run_summaries WHERE 1=1`
	if f.Traffic != "" {
		query += ` AND traffic = ?`
		args = append(args, f.Traffic.String())
	}
	if f.PlatoonSize != 0 {
		query += ` AND platoon_size = ?`
		args = append(args, f.PlatoonSize)
	}
	if f.NumPlatoons != 0 {
		query += ` AND num_platoons = ?`
		args = append(args, f.NumPlatoons)
	}
	query += ` ORDER BY created_at, run_id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.Summary
	for rows.Next() {
		var (
			sum     model.Summary
			traffic string
			metrics string
		)
		if err := rows.Scan(&sum.RunID, &sum.Scenario.PlatoonSize, &sum.Scenario.NumPlatoons, &traffic, &sum.Steps, &metrics); err != nil {
			return nil, err
		}
		sum.Scenario.Traffic = model.TrafficType(traffic)
		if err := json.Unmarshal([]byte(metrics), &sum.Values); err != nil {
			return nil, fmt.Errorf("unmarshal metrics of %s: %w", sum.RunID, err)
		}
		res = append(res, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
