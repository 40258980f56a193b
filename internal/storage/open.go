package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskbot/internal/schedule"
	"taskbot/pkg/logx"
)

// Store is the persistence API used by the scheduler, the dispatcher and
// the interactive commands.
type Store interface {
	// Schedules is the sheet of recurring triggers.
	ListSchedules(ctx context.Context) ([]schedule.Record, error)
	AppendSchedule(ctx context.Context, r schedule.Record) error
	// SetActive flips the is_active cell; rows are never deleted.
	SetActive(ctx context.Context, id string, active bool) error

	AppendActivity(ctx context.Context, e ActivityEntry) error
	ListActivity(ctx context.Context, userID string, since time.Time) ([]ActivityEntry, error)

	AppendFireAudit(ctx context.Context, a FireAudit) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "csv":
		return openCSV(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
