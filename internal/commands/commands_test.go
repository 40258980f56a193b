package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"taskbot/internal/command"
	"taskbot/internal/schedule"
	"taskbot/internal/storage"
	"taskbot/internal/tasks"
	"taskbot/pkg/logx"
)

type fakeStore struct {
	schedules []schedule.Record
	activity  []storage.ActivityEntry
	audits    []storage.FireAudit
}

func (f *fakeStore) ListSchedules(ctx context.Context) ([]schedule.Record, error) {
	return append([]schedule.Record(nil), f.schedules...), nil
}

func (f *fakeStore) AppendSchedule(ctx context.Context, r schedule.Record) error {
	f.schedules = append(f.schedules, r)
	return nil
}

func (f *fakeStore) SetActive(ctx context.Context, id string, active bool) error {
	for i := range f.schedules {
		if f.schedules[i].ID == id {
			f.schedules[i].Active = active
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) AppendActivity(ctx context.Context, e storage.ActivityEntry) error {
	f.activity = append(f.activity, e)
	return nil
}

func (f *fakeStore) ListActivity(ctx context.Context, userID string, since time.Time) ([]storage.ActivityEntry, error) {
	var out []storage.ActivityEntry
	for _, e := range f.activity {
		if userID != "" && e.UserID != userID {
			continue
		}
		if !since.IsZero() && e.At.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) AppendFireAudit(ctx context.Context, a storage.FireAudit) error {
	f.audits = append(f.audits, a)
	return nil
}

func (f *fakeStore) Close() error { return nil }

type fakeRebuilder struct{ calls int }

func (f *fakeRebuilder) Rebuild(ctx context.Context) error {
	f.calls++
	return nil
}

type fakeTasks struct {
	due       []tasks.Task
	created   []tasks.Task
	completed []string
	fail      error
}

func (f *fakeTasks) DueToday(ctx context.Context, day time.Time) ([]tasks.Task, error) {
	return f.due, f.fail
}

func (f *fakeTasks) Create(ctx context.Context, title, due string) (tasks.Task, error) {
	if f.fail != nil {
		return tasks.Task{}, f.fail
	}
	t := tasks.Task{ID: "new", Title: title, Due: due}
	f.created = append(f.created, t)
	return t, nil
}

func (f *fakeTasks) Complete(ctx context.Context, id string) error {
	f.completed = append(f.completed, id)
	return f.fail
}

func testDeps(st *fakeStore, rb *fakeRebuilder, ts *fakeTasks) Deps {
	d := Deps{
		Store: st,
		Log:   logx.Nop(),
		Now:   func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) },
	}
	if rb != nil {
		d.Rebuild = rb
	}
	if ts != nil {
		d.Tasks = ts
	}
	return d
}

func run(t *testing.T, d Deps, line string) *command.Result {
	t.Helper()
	reg := command.NewRegistry()
	Register(reg, d)

	fields := strings.Fields(line)
	spec, ok := reg.Lookup(fields[0])
	if !ok {
		t.Fatalf("command %q not registered", fields[0])
	}
	args := fields[1:]
	p := command.Params{UserID: "u1", ChannelID: "c1", Args: args}
	if len(args) > 0 {
		p.Subcommand = args[0]
	}
	if len(args) > 1 {
		p.Amount = args[1]
		if n, err := atoi(args[1]); err == nil {
			p.AmountValue = n
			p.AmountOK = true
		}
	}
	if len(args) > 2 {
		p.Timeframe = args[2]
	}
	res, err := spec.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("%q returned error: %v", line, err)
	}
	return res
}

func atoi(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.New("not a number")
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

func TestScheduleAddDefaultsTargetAndRebuilds(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	rb := &fakeRebuilder{}
	d := testDeps(st, rb, nil)

	res := run(t, d, "schedule add standup --freq daily --time 09:00 --command /ping")
	if !strings.Contains(res.Content, "created") {
		t.Fatalf("unexpected reply: %q", res.Content)
	}
	if len(st.schedules) != 1 {
		t.Fatalf("want 1 stored schedule, got %d", len(st.schedules))
	}
	rec := st.schedules[0]
	if rec.ID == "" || rec.CreatedAt.IsZero() || !rec.Active {
		t.Fatalf("record missing identity fields: %+v", rec)
	}
	if rec.TargetChannel != "c1" || rec.TargetUser != "" {
		t.Fatalf("target not defaulted to invoking channel: %+v", rec)
	}
	if rb.calls != 1 {
		t.Fatalf("rebuild calls = %d, want 1", rb.calls)
	}
}

func TestScheduleAddValidation(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	d := testDeps(st, &fakeRebuilder{}, nil)

	cases := []struct {
		line string
		want string
	}{
		{"schedule add standup --time 09:00 --command /ping", "--freq"},
		{"schedule add standup --freq daily --time 09:00", "--message or --command"},
		{"schedule add standup --freq custom --command /ping", "--cron"},
		{"schedule add standup --freq daily --command /ping", "--time"},
	}
	for _, tc := range cases {
		res := run(t, d, tc.line)
		if !strings.Contains(res.Content, tc.want) {
			t.Errorf("%q reply = %q, want mention of %q", tc.line, res.Content, tc.want)
		}
	}
	if len(st.schedules) != 0 {
		t.Fatalf("invalid adds stored records: %d", len(st.schedules))
	}
}

func TestScheduleRemoveByNumberSoftDeletes(t *testing.T) {
	t.Parallel()
	st := &fakeStore{schedules: []schedule.Record{
		{ID: "id-a", Name: "a", Frequency: "daily", Time: "09:00", Command: "/ping", Active: true},
		{ID: "id-b", Name: "b", Frequency: "daily", Time: "10:00", Command: "/ping", Active: true},
	}}
	rb := &fakeRebuilder{}
	d := testDeps(st, rb, nil)

	res := run(t, d, "schedule remove 2")
	if res.Content != "Schedule removed." {
		t.Fatalf("reply = %q", res.Content)
	}
	if st.schedules[1].Active {
		t.Fatal("record b still active after remove")
	}
	if st.schedules[0].Active != true {
		t.Fatal("wrong record deactivated")
	}
	if rb.calls != 1 {
		t.Fatalf("rebuild calls = %d, want 1", rb.calls)
	}
}

func TestScheduleListRendersRemoveButtons(t *testing.T) {
	t.Parallel()
	st := &fakeStore{schedules: []schedule.Record{
		{ID: "id-a", Name: "hydrate", Frequency: "daily", Time: "09:00", Message: "drink", Active: true},
		{ID: "id-x", Name: "gone", Frequency: "daily", Time: "09:00", Message: "x", Active: false},
	}}
	d := testDeps(st, nil, nil)

	res := run(t, d, "schedule list")
	if !strings.Contains(res.Content, "hydrate") || strings.Contains(res.Content, "gone") {
		t.Fatalf("list content = %q", res.Content)
	}
	if len(res.Buttons) != 1 || res.Buttons[0][0].Data != "sched_rm:id-a" {
		t.Fatalf("buttons = %+v", res.Buttons)
	}
}

func TestExerciseLogAndStats(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	d := testDeps(st, nil, nil)

	res := run(t, d, "exercise pushup 20")
	if res.Content != "Logged 20 pushups for today!" {
		t.Fatalf("log reply = %q", res.Content)
	}
	if len(st.activity) != 1 || st.activity[0].Activity != "pushup" || st.activity[0].Amount != 20 {
		t.Fatalf("activity = %+v", st.activity)
	}

	res = run(t, d, "exercise stats week")
	if !strings.Contains(res.Content, "pushup: 20") {
		t.Fatalf("stats reply = %q", res.Content)
	}
}

func TestExerciseRejectsBadAmount(t *testing.T) {
	t.Parallel()
	st := &fakeStore{}
	d := testDeps(st, nil, nil)

	res := run(t, d, "exercise pushup lots")
	if !strings.Contains(res.Content, "exercise pushup <amount>") {
		t.Fatalf("reply = %q", res.Content)
	}
	if len(st.activity) != 0 {
		t.Fatal("bad amount was logged")
	}
}

func TestTodayRendersDoneButtons(t *testing.T) {
	t.Parallel()
	ts := &fakeTasks{due: []tasks.Task{
		{ID: "t1", Title: "water plants"},
		{ID: "t2", Title: "pay rent"},
	}}
	d := testDeps(&fakeStore{}, nil, ts)

	res := run(t, d, "today")
	if !strings.Contains(res.Content, "2 task(s) due today") {
		t.Fatalf("content = %q", res.Content)
	}
	if len(res.Buttons) != 2 || res.Buttons[0][0].Data != "task_done:t1" {
		t.Fatalf("buttons = %+v", res.Buttons)
	}
}

func TestTodayServiceFailureIsBusinessResult(t *testing.T) {
	t.Parallel()
	ts := &fakeTasks{fail: errors.New("down")}
	d := testDeps(&fakeStore{}, nil, ts)

	res := run(t, d, "today")
	if !strings.Contains(res.Content, "Could not reach") {
		t.Fatalf("content = %q", res.Content)
	}
}

func TestNewTaskResolvesDueWords(t *testing.T) {
	t.Parallel()
	ts := &fakeTasks{}
	d := testDeps(&fakeStore{}, nil, ts)

	res := run(t, d, "newtask buy milk tomorrow")
	if !strings.Contains(res.Content, "2026-09-01") {
		t.Fatalf("reply = %q", res.Content)
	}
	if len(ts.created) != 1 || ts.created[0].Title != "buy milk" || ts.created[0].Due != "2026-09-01" {
		t.Fatalf("created = %+v", ts.created)
	}
}

func TestCompleteTaskCallback(t *testing.T) {
	t.Parallel()
	ts := &fakeTasks{}
	d := testDeps(&fakeStore{}, nil, ts)

	if got := d.CompleteTask(context.Background(), "t7"); got != "Task completed." {
		t.Fatalf("reply = %q", got)
	}
	if len(ts.completed) != 1 || ts.completed[0] != "t7" {
		t.Fatalf("completed = %v", ts.completed)
	}
}
