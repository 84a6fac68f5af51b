package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xtrntr/cxgame/internal/models"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate applies every .sql file in dir in name order. The scripts are
// expected to be idempotent.
func (db *DB) Migrate(ctx context.Context, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)
	for _, f := range files {
		script, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", f, err)
		}
		if _, err := db.Pool.Exec(ctx, string(script)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", f, err)
		}
	}
	return nil
}

// envelope is the part of a feed payload the journal indexes on.
type envelope struct {
	Type    models.EventType `json:"type"`
	Message json.RawMessage  `json:"message"`
	Data    json.RawMessage  `json:"data"`
}

// RecordEvent stores one feed payload. Matches are also written to the
// matches table and settlement reports to the settlements table, in the
// same transaction.
func (db *DB) RecordEvent(ctx context.Context, payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}

	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"INSERT INTO events (type, payload) VALUES ($1, $2)",
			string(env.Type), payload); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}

		switch env.Type {
		case models.EventMatch:
			var m models.Match
			if err := json.Unmarshal(env.Message, &m); err != nil {
				return fmt.Errorf("failed to decode match: %w", err)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO matches (buy_id, sell_id, size, price) VALUES ($1, $2, $3::text::numeric, $4::text::numeric)",
				m.BuyID, m.SellID, m.Size.String(), m.Price.String()); err != nil {
				return fmt.Errorf("failed to insert match: %w", err)
			}
		case models.EventCSV:
			var report string
			if err := json.Unmarshal(env.Data, &report); err != nil {
				return fmt.Errorf("failed to decode settlement report: %w", err)
			}
			if _, err := tx.Exec(ctx,
				"INSERT INTO settlements (report) VALUES ($1)", report); err != nil {
				return fmt.Errorf("failed to insert settlement: %w", err)
			}
		}
		return nil
	})
}

// Matches returns every journaled match in insertion order.
func (db *DB) Matches(ctx context.Context) ([]models.Match, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT buy_id, sell_id, size::text, price::text FROM matches ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var (
			m           models.Match
			size, price string
		)
		if err := rows.Scan(&m.BuyID, &m.SellID, &size, &price); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		if m.Size, err = decimal.NewFromString(size); err != nil {
			return nil, fmt.Errorf("failed to parse match size: %w", err)
		}
		if m.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("failed to parse match price: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// CountEvents returns how many events of the given type were journaled.
func (db *DB) CountEvents(ctx context.Context, typ models.EventType) (int, error) {
	var n int
	err := db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM events WHERE type = $1", string(typ)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// LatestSettlement returns the most recent settlement report, or
// pgx.ErrNoRows when there is none.
func (db *DB) LatestSettlement(ctx context.Context) (string, time.Time, error) {
	var (
		report string
		at     time.Time
	)
	err := db.Pool.QueryRow(ctx,
		"SELECT report, recorded_at FROM settlements ORDER BY id DESC LIMIT 1").Scan(&report, &at)
	if err != nil {
		return "", time.Time{}, err
	}
	return report, at, nil
}
