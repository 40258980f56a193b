package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"taskbot/internal/schedule"
	"taskbot/pkg/logx"
)

// csvStore keeps each sheet as one CSV file under a directory:
//
//   - schedules.csv: the recurring trigger sheet (fixed 14-column layout)
//   - activity.csv:  append-only exercise log
//   - audit.csv:     append-only trigger fire audit
//
// Appends go straight to the file; SetActive rewrites schedules.csv through
// a temp file + rename so a crash never leaves a half-written sheet.
type csvStore struct {
	log logx.Logger

	mu  sync.Mutex
	dir string
}

const (
	schedulesFile = "schedules.csv"
	activityFile  = "activity.csv"
	auditFile     = "audit.csv"
)

func openCSV(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for csv driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &csvStore{log: log, dir: dir}

	// Seed the schedule sheet with its header so a fresh deployment has a
	// recognizable, hand-editable file.
	p := filepath.Join(dir, schedulesFile)
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		if err := writeCSVAtomic(p, [][]string{schedule.RowHeader()}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *csvStore) Close() error { return nil }

func (s *csvStore) ListSchedules(ctx context.Context) ([]schedule.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readCSV(filepath.Join(s.dir, schedulesFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]schedule.Record, 0, len(rows))
	for i, row := range rows {
		if i == 0 && schedule.IsHeaderRow(row) {
			continue
		}
		r, err := schedule.RecordFromRow(row)
		if err != nil {
			// A malformed row must not take down the whole sheet.
			s.log.Warn("skipping malformed schedule row", logx.Int("row", i+1), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *csvStore) AppendSchedule(ctx context.Context, r schedule.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendCSV(filepath.Join(s.dir, schedulesFile), r.Row())
}

func (s *csvStore) SetActive(ctx context.Context, id string, active bool) error {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p := filepath.Join(s.dir, schedulesFile)
	rows, err := readCSV(p)
	if err != nil {
		return err
	}

	found := false
	for i, row := range rows {
		if i == 0 && schedule.IsHeaderRow(row) {
			continue
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) != id {
			continue
		}
		r, err := schedule.RecordFromRow(row)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", id, err)
		}
		r.Active = active
		rows[i] = r.Row()
		found = true
	}
	if !found {
		return ErrNotFound
	}
	return writeCSVAtomic(p, rows)
}

func (s *csvStore) AppendActivity(ctx context.Context, e ActivityEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendCSV(filepath.Join(s.dir, activityFile), []string{
		e.At.UTC().Format(time.RFC3339),
		e.UserID,
		e.Activity,
		strconv.Itoa(e.Amount),
	})
}

func (s *csvStore) ListActivity(ctx context.Context, userID string, since time.Time) ([]ActivityEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readCSV(filepath.Join(s.dir, activityFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []ActivityEntry
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(row[0]))
		if err != nil {
			continue
		}
		if userID != "" && strings.TrimSpace(row[1]) != userID {
			continue
		}
		if !since.IsZero() && at.Before(since) {
			continue
		}
		n, _ := strconv.Atoi(strings.TrimSpace(row[3]))
		out = append(out, ActivityEntry{
			At:       at,
			UserID:   strings.TrimSpace(row[1]),
			Activity: strings.TrimSpace(row[2]),
			Amount:   n,
		})
	}
	return out, nil
}

func (s *csvStore) AppendFireAudit(ctx context.Context, a FireAudit) error {
	_ = ctx
	if a.At.IsZero() {
		a.At = time.Now()
	}
	ok := "FALSE"
	if a.OK {
		ok = "TRUE"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendCSV(filepath.Join(s.dir, auditFile), []string{
		a.At.UTC().Format(time.RFC3339),
		a.ScheduleID,
		a.Name,
		a.Command,
		ok,
		a.Error,
		strconv.FormatInt(a.TookMS, 10),
	})
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // sheet rows may be ragged
	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func appendCSV(path string, row []string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		_ = f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeCSVAtomic(path string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
