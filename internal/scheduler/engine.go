// Package scheduler owns the live set of recurring timers. Nothing else in
// the process may start or stop a trigger: mutations go through the store
// and then call Rebuild, which tears every timer down and recreates the set
// from persisted state.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskbot/internal/schedule"
	"taskbot/pkg/logx"
)

// RecordSource reads the persisted schedule sheet.
type RecordSource interface {
	ListSchedules(ctx context.Context) ([]schedule.Record, error)
}

// Dispatcher handles one fired record. It must never panic outward.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec schedule.Record)
}

type Config struct {
	Enabled  bool
	Timezone string
}

type Engine struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	source RecordSource
	disp   Dispatcher

	parser cron.Parser
	loc    *time.Location
	c      *cron.Cron

	// live counts timers per schedule id; a record with several time
	// entries owns several timers.
	live map[string][]cron.EntryID

	// runCtx is handed to dispatches; it outlives any single rebuild and
	// is cancelled only on Stop.
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, source RecordSource, disp Dispatcher, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		log:       log,
		cfg:       cfg,
		source:    source,
		disp:      disp,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		live:      map[string][]cron.EntryID{},
		runCtx:    ctx,
		runCancel: cancel,
	}
}

func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.Enabled
}

// SetEnabled flips the engine on or off at runtime. Enabling rebuilds from
// the sheet; disabling stops every live timer.
func (e *Engine) SetEnabled(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	changed := enabled != e.cfg.Enabled
	e.cfg.Enabled = enabled
	if changed && !enabled {
		e.stopCronLocked()
	}
	e.mu.Unlock()
	if changed && enabled {
		return e.Rebuild(ctx)
	}
	return nil
}

// Rebuild synchronously stops every live timer, re-reads the sheet and
// starts fresh timers for every active record. It is idempotent and is the
// only way the timer set changes; callers run it after each store mutation.
func (e *Engine) Rebuild(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.Enabled {
		return nil
	}

	// Full stop first: there must be no window where old and new timers
	// for the same schedule could both fire.
	e.stopCronLocked()

	recs, err := e.source.ListSchedules(ctx)
	if err != nil {
		// Leave the engine stopped rather than running stale timers; the
		// next rebuild will recover.
		e.log.Error("schedule read failed, timers stopped until next rebuild", logx.Err(err))
		return err
	}

	loc := e.loadLocationLocked()
	e.loc = loc
	e.c = cron.New(cron.WithParser(e.parser), cron.WithLocation(loc))
	e.live = map[string][]cron.EntryID{}

	skipped := 0
	for _, rec := range recs {
		if !rec.Active {
			continue
		}
		for _, expr := range schedule.Compile(rec) {
			if _, err := e.parser.Parse(expr); err != nil {
				e.log.Warn("invalid trigger skipped",
					logx.String("schedule_id", rec.ID),
					logx.String("schedule", rec.Name),
					logx.String("expr", expr),
					logx.Err(err))
				skipped++
				continue
			}
			rec := rec
			id, err := e.c.AddFunc(expr, func() { e.fire(rec) })
			if err != nil {
				e.log.Warn("trigger registration failed",
					logx.String("schedule_id", rec.ID),
					logx.String("expr", expr),
					logx.Err(err))
				skipped++
				continue
			}
			e.live[rec.ID] = append(e.live[rec.ID], id)
		}
	}

	e.c.Start()

	total := 0
	for _, ids := range e.live {
		total += len(ids)
	}
	e.log.Info("schedules rebuilt",
		logx.Int("schedules", len(e.live)),
		logx.Int("timers", total),
		logx.Int("skipped", skipped),
		logx.String("tz", loc.String()))
	return nil
}

// fire hands one trigger to the dispatcher and returns immediately. The
// dispatch runs on its own goroutine: a rebuild waits for cron jobs to
// finish via Stop().Done(), and a dispatch that itself mutates schedules
// (a scheduled "/schedule remove") triggers exactly such a rebuild. Running
// the dispatch inside the cron job would make that rebuild wait on its own
// caller. In-flight dispatches survive a rebuild; runCtx cancellation on
// Stop aborts their blocking sends.
func (e *Engine) fire(rec schedule.Record) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				e.log.Error("fire handler panicked",
					logx.String("schedule_id", rec.ID),
					logx.Any("panic", p))
			}
		}()
		e.disp.Dispatch(e.runCtx, rec)
	}()
}

// LiveCount reports (schedules with timers, total timers).
func (e *Engine) LiveCount() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, ids := range e.live {
		total += len(ids)
	}
	return len(e.live), total
}

// SetTimezone changes the wall-clock location for all timers and rebuilds.
func (e *Engine) SetTimezone(ctx context.Context, tz string) error {
	e.mu.Lock()
	changed := !strings.EqualFold(strings.TrimSpace(tz), strings.TrimSpace(e.cfg.Timezone))
	e.cfg.Timezone = tz
	e.mu.Unlock()
	if !changed {
		return nil
	}
	return e.Rebuild(ctx)
}

// Stop tears down all timers. In-flight dispatches are allowed to finish;
// their context is cancelled so blocking sends abort promptly.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopCronLocked()
	e.runCancel()
	e.log.Info("scheduler stopped")
}

func (e *Engine) stopCronLocked() {
	if e.c == nil {
		return
	}
	// Stop returns a context that completes when running jobs have
	// finished; waiting on it guarantees no old timer can fire after this
	// point.
	<-e.c.Stop().Done()
	e.c = nil
	e.live = map[string][]cron.EntryID{}
}

func (e *Engine) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(e.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
