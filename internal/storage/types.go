package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "csv": directory of CSV sheets (schedules, activity, audit)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ActivityEntry records one logged exercise activity.
// Keep it compact and schema-stable.
type ActivityEntry struct {
	At       time.Time
	UserID   string
	Activity string
	Amount   int
}

// FireAudit records one scheduled trigger firing, successful or not.
type FireAudit struct {
	At         time.Time
	ScheduleID string
	Name       string
	Command    string
	OK         bool
	Error      string
	TookMS     int64
}
