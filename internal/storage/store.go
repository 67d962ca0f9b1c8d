// Package storage persists canonical detections.
//
// Three backends are available, selected by STORAGE_DRIVER:
//   - sqlite (default): embedded file database via modernc.org/sqlite
//   - mysql: shared server via go-sql-driver/mysql
//   - memory: bounded ring buffer, lost on restart
//
// Records are immutable once stored. Inserting an ID that already exists is
// a no-op so replayed Kafka messages do not duplicate rows.
package storage

import (
	"context"
	"errors"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store is the persistence port used by the ingest service.
type Store interface {
	// Insert writes a batch of canonical detections.
	Insert(ctx context.Context, detections []domain.Detection) error
	// Latest returns up to limit detections, newest first.
	Latest(ctx context.Context, limit int) ([]domain.Detection, error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
