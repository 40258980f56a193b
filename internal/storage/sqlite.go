package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"taskbot/internal/schedule"
	"taskbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListSchedules(ctx context.Context) ([]schedule.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, frequency, time, command, message, target_channel,
		        target_user, is_active, created_at, day, interval, unit, cron_expression
		 FROM schedules ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Record
	for rows.Next() {
		var r schedule.Record
		var active int
		var created string
		if err := rows.Scan(&r.ID, &r.Name, &r.Frequency, &r.Time, &r.Command, &r.Message,
			&r.TargetChannel, &r.TargetUser, &active, &created,
			&r.Day, &r.Interval, &r.Unit, &r.CronExpression); err != nil {
			return nil, err
		}
		r.Active = active != 0
		r.Frequency = strings.ToLower(strings.TrimSpace(r.Frequency))
		if created != "" {
			if t, err := time.Parse(time.RFC3339, created); err == nil {
				r.CreatedAt = t
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendSchedule(ctx context.Context, r schedule.Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	active := 0
	if r.Active {
		active = 1
	}
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(id, name, frequency, time, command, message, target_channel,
		                       target_user, is_active, created_at, day, interval, unit, cron_expression)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.Name, r.Frequency, r.Time, r.Command, r.Message, r.TargetChannel,
		r.TargetUser, active, created, r.Day, r.Interval, r.Unit, r.CronExpression,
	)
	return err
}

func (s *sqliteStore) SetActive(ctx context.Context, id string, active bool) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	v := 0
	if active {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE schedules SET is_active = ? WHERE id = ?`, v, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) AppendActivity(ctx context.Context, e ActivityEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log(at, user_id, activity, amount) VALUES(?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339), e.UserID, e.Activity, e.Amount,
	)
	return err
}

func (s *sqliteStore) ListActivity(ctx context.Context, userID string, since time.Time) ([]ActivityEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT at, user_id, activity, amount FROM activity_log WHERE 1=1`
	args := make([]any, 0, 2)
	if userID != "" {
		q += ` AND user_id = ?`
		args = append(args, userID)
	}
	if !since.IsZero() {
		q += ` AND at >= ?`
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	q += ` ORDER BY at`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var at string
		if err := rows.Scan(&at, &e.UserID, &e.Activity, &e.Amount); err != nil {
			return nil, err
		}
		if t, perr := time.Parse(time.RFC3339, at); perr == nil {
			e.At = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendFireAudit(ctx context.Context, a FireAudit) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}
	ok := 0
	if a.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fire_audit(at, schedule_id, name, command, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?)`,
		a.At.UTC().Format(time.RFC3339), a.ScheduleID, a.Name, a.Command, ok, nullStr(a.Error), a.TookMS,
	)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
