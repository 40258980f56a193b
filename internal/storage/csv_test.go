package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"taskbot/internal/schedule"
	"taskbot/pkg/logx"
)

func newTestCSVStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "csv", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open csv store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestCSVScheduleRoundTrip(t *testing.T) {
	t.Parallel()
	st := newTestCSVStore(t)
	ctx := context.Background()

	rec := schedule.Record{
		ID:            "sched-1",
		Name:          "morning standup",
		Frequency:     "daily",
		Time:          "09:00",
		Command:       "/ping",
		TargetChannel: "chan-1",
		Active:        true,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := st.AppendSchedule(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := st.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 record, got %d", len(got))
	}
	if got[0] != rec {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got[0], rec)
	}
}

func TestCSVSetActive(t *testing.T) {
	t.Parallel()
	st := newTestCSVStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		rec := schedule.Record{ID: id, Frequency: "daily", Time: "08:00", Command: "/ping", Active: true}
		if err := st.AppendSchedule(ctx, rec); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	if err := st.SetActive(ctx, "b", false); err != nil {
		t.Fatalf("set active: %v", err)
	}

	got, err := st.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 records, got %d", len(got))
	}
	for _, r := range got {
		want := r.ID != "b"
		if r.Active != want {
			t.Errorf("record %s: active=%v, want %v", r.ID, r.Active, want)
		}
	}
}

func TestCSVSetActiveUnknownID(t *testing.T) {
	t.Parallel()
	st := newTestCSVStore(t)

	err := st.SetActive(context.Background(), "nope", false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCSVActivityFiltering(t *testing.T) {
	t.Parallel()
	st := newTestCSVStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	entries := []ActivityEntry{
		{At: base, UserID: "u1", Activity: "pushups", Amount: 20},
		{At: base.Add(24 * time.Hour), UserID: "u1", Activity: "squats", Amount: 30},
		{At: base.Add(48 * time.Hour), UserID: "u2", Activity: "pushups", Amount: 15},
	}
	for _, e := range entries {
		if err := st.AppendActivity(ctx, e); err != nil {
			t.Fatalf("append activity: %v", err)
		}
	}

	got, err := st.ListActivity(ctx, "u1", base.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 entry, got %d", len(got))
	}
	if got[0].Activity != "squats" || got[0].Amount != 30 {
		t.Fatalf("unexpected entry: %+v", got[0])
	}
}

func TestCSVFireAuditAppend(t *testing.T) {
	t.Parallel()
	st := newTestCSVStore(t)

	err := st.AppendFireAudit(context.Background(), FireAudit{
		ScheduleID: "sched-1",
		Name:       "morning standup",
		Command:    "/ping",
		OK:         false,
		Error:      "no resolvable delivery target",
		TookMS:     12,
	})
	if err != nil {
		t.Fatalf("append fire audit: %v", err)
	}
}

func TestCSVMalformedRowSkipped(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "csv", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	good := schedule.Record{ID: "ok", Frequency: "daily", Time: "07:00", Command: "/ping", Active: true}
	if err := st.AppendSchedule(ctx, good); err != nil {
		t.Fatalf("append: %v", err)
	}
	// A hand-edited row with no id must be skipped, not fail the read.
	if err := appendCSV(filepath.Join(dir, schedulesFile), []string{"", "no id here"}); err != nil {
		t.Fatalf("append raw: %v", err)
	}
	// A short but valid row still loads (trailing cells default empty).
	if err := appendCSV(filepath.Join(dir, schedulesFile), []string{"short", "short row", "weekly"}); err != nil {
		t.Fatalf("append raw: %v", err)
	}

	got, err := st.ListSchedules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 records, got %d", len(got))
	}
	if got[1].ID != "short" || got[1].Frequency != "weekly" {
		t.Fatalf("unexpected short row decode: %+v", got[1])
	}
}
