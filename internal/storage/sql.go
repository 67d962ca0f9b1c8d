package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/go-sql-driver/mysql"
	"github.com/jonboulle/clockwork"
)

// mysqlDupKeyName is ER_DUP_KEYNAME, raised when an index already exists.
const mysqlDupKeyName = 1061

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	clock   clockwork.Clock
}

// NewSQLStore wraps an open database. Call Migrate before use.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, clock: clockwork.NewRealClock()}
}

// Migrate creates the detections table and its index if missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range detectionsTable().statements(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			var me *mysql.MySQLError
			if errors.As(err, &me) && me.Number == mysqlDupKeyName {
				continue
			}
			return fmt.Errorf("migrate detections: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) insertStatement() string {
	const cols = "(id, depth, severity, observed_at, location, raw, vehicle, source, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	if s.dialect == DialectMySQL {
		return "INSERT IGNORE INTO detections " + cols
	}
	return "INSERT INTO detections " + cols + " ON CONFLICT(id) DO NOTHING"
}

// Insert writes the batch in one transaction.
func (s *SQLStore) Insert(ctx context.Context, detections []domain.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, s.insertStatement())
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := s.clock.Now()
	for _, d := range detections {
		createdAt := now
		if ts, ok := d.Time(); ok {
			createdAt = ts
		}
		if _, err := stmt.ExecContext(ctx,
			d.ID, d.Depth, string(d.Severity), d.Timestamp,
			d.Location, d.Raw, d.Vehicle, d.Source,
			createdAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert detection %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Latest returns up to limit detections ordered by detection time, newest first.
func (s *SQLStore) Latest(ctx context.Context, limit int) ([]domain.Detection, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, depth, severity, observed_at, location, raw, vehicle, source
		FROM detections
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Detection, 0, limit)
	for rows.Next() {
		var (
			d        domain.Detection
			severity string
		)
		if err := rows.Scan(&d.ID, &d.Depth, &severity, &d.Timestamp, &d.Location, &d.Raw, &d.Vehicle, &d.Source); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		d.Severity = domain.Severity(severity)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate detections: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Count returns the number of stored detections.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM detections").Scan(&n); err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return n, nil
}

// pingTimeout bounds the startup connectivity check.
const pingTimeout = 5 * time.Second
