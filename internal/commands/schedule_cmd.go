package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"taskbot/internal/command"
	"taskbot/internal/schedule"
	"taskbot/internal/transport"
	"taskbot/pkg/logx"
)

const scheduleUsage = "Usage: schedule add <name> --freq <daily|weekly|monthly|every|custom> [flags] | schedule list | schedule remove <id|number>"

func (d Deps) scheduleCore(ctx context.Context, p command.Params) (*command.Result, error) {
	if d.Store == nil {
		return &command.Result{Content: "Storage is not configured."}, nil
	}
	switch strings.ToLower(strings.TrimSpace(p.Subcommand)) {
	case "add":
		return d.scheduleAdd(ctx, p)
	case "list":
		return d.scheduleList(ctx)
	case "remove", "rm":
		return d.scheduleRemove(ctx, p)
	default:
		return &command.Result{Content: scheduleUsage}, nil
	}
}

// scheduleAdd creates one record. Flags:
//
//	--freq daily|weekly|monthly|every|custom   (required)
//	--time HH:MM[,HH:MM...]                    (all but custom)
//	--day <weekday|day-of-month>
//	--interval N --unit days|weeks             (every)
//	--cron "<expr>"                            (custom)
//	--message "text" | --command "/name args"  (one required)
//	--user <id> | --channel <id>               (default: invoking context)
func (d Deps) scheduleAdd(ctx context.Context, p command.Params) (*command.Result, error) {
	pos, flags, _ := command.ParseFlags(p.Args)
	// pos[0] is "add"; the rest of the positionals form the name.
	name := ""
	if len(pos) > 1 {
		name = strings.Join(pos[1:], " ")
	}
	if name == "" {
		name = flags["name"]
	}
	if strings.TrimSpace(name) == "" {
		return &command.Result{Content: "A schedule needs a name. " + scheduleUsage}, nil
	}

	rec := schedule.Record{
		ID:             uuid.NewString(),
		Name:           name,
		Frequency:      strings.ToLower(strings.TrimSpace(flags["freq"])),
		Time:           strings.TrimSpace(flags["time"]),
		Command:        strings.TrimSpace(flags["command"]),
		Message:        strings.TrimSpace(flags["message"]),
		TargetChannel:  strings.TrimSpace(flags["channel"]),
		TargetUser:     strings.TrimSpace(flags["user"]),
		Active:         true,
		CreatedAt:      d.now(),
		Day:            strings.TrimSpace(flags["day"]),
		Interval:       strings.TrimSpace(flags["interval"]),
		Unit:           strings.TrimSpace(flags["unit"]),
		CronExpression: strings.TrimSpace(flags["cron"]),
	}

	if rec.Frequency == "" {
		return &command.Result{Content: "Missing --freq. " + scheduleUsage}, nil
	}
	if rec.Message == "" && rec.Command == "" {
		return &command.Result{Content: "A schedule needs --message or --command."}, nil
	}
	if rec.Frequency == schedule.FreqCustom && rec.CronExpression == "" {
		return &command.Result{Content: "A custom schedule needs --cron."}, nil
	}
	if rec.Frequency != schedule.FreqCustom && rec.Time == "" {
		return &command.Result{Content: "Missing --time HH:MM."}, nil
	}

	// Default the target to the invoking context: a record created in a
	// channel fires back into that channel, one created in a DM goes to
	// the creating user.
	if rec.TargetUser == "" && rec.TargetChannel == "" {
		rec.TargetChannel = p.ChannelID
		if rec.TargetChannel == "" {
			rec.TargetUser = p.UserID
		}
	}
	if rec.TargetUser == "" && rec.TargetChannel == "" {
		return &command.Result{Content: "No delivery target; pass --user or --channel."}, nil
	}

	if len(schedule.Compile(rec)) == 0 {
		return &command.Result{Content: "That schedule produces no triggers; check --time / --cron."}, nil
	}

	if err := d.Store.AppendSchedule(ctx, rec); err != nil {
		d.Log.Warn("schedule append failed", logx.Err(err))
		return &command.Result{Content: "Could not save the schedule."}, nil
	}
	d.rebuild(ctx)

	return &command.Result{Content: fmt.Sprintf("Schedule %q created (%s).", rec.Name, rec.ID)}, nil
}

func (d Deps) scheduleList(ctx context.Context) (*command.Result, error) {
	recs, err := d.activeSchedules(ctx)
	if err != nil {
		d.Log.Warn("schedule read failed", logx.Err(err))
		return &command.Result{Content: "Could not read the schedule sheet."}, nil
	}
	if len(recs) == 0 {
		return &command.Result{Content: "No active schedules."}, nil
	}

	var b strings.Builder
	var rows [][]transport.Button
	fmt.Fprintf(&b, "%d active schedule(s):\n", len(recs))
	for i, r := range recs {
		fmt.Fprintf(&b, "%d. %s — %s %s", i+1, r.Name, r.Frequency, describeWhen(r))
		if r.WantsMessage() {
			fmt.Fprintf(&b, " → message")
		} else {
			fmt.Fprintf(&b, " → %s", r.Command)
		}
		b.WriteByte('\n')
		rows = append(rows, []transport.Button{{
			Label: fmt.Sprintf("Remove %d: %s", i+1, truncateLabel(r.Name, 30)),
			Data:  CallbackScheduleRM + ":" + r.ID,
		}})
	}
	return &command.Result{Content: strings.TrimRight(b.String(), "\n"), Buttons: rows}, nil
}

func (d Deps) scheduleRemove(ctx context.Context, p command.Params) (*command.Result, error) {
	args := p.Args
	if len(args) < 2 {
		return &command.Result{Content: "Usage: schedule remove <id|number>"}, nil
	}
	key := strings.TrimSpace(args[1])

	id := key
	// A small integer is a 1-based position in the active list.
	if n, err := strconv.Atoi(key); err == nil {
		recs, lerr := d.activeSchedules(ctx)
		if lerr != nil {
			d.Log.Warn("schedule read failed", logx.Err(lerr))
			return &command.Result{Content: "Could not read the schedule sheet."}, nil
		}
		if n < 1 || n > len(recs) {
			return &command.Result{Content: fmt.Sprintf("No schedule number %d; run schedule list.", n)}, nil
		}
		id = recs[n-1].ID
	}

	msg := d.RemoveSchedule(ctx, id)
	return &command.Result{Content: msg}, nil
}

// RemoveSchedule soft-deletes one record and rebuilds. It is shared with
// the sched_rm button handler; the return value is user-facing text.
func (d Deps) RemoveSchedule(ctx context.Context, id string) string {
	if d.Store == nil {
		return "Storage is not configured."
	}
	if err := d.Store.SetActive(ctx, id, false); err != nil {
		d.Log.Warn("schedule deactivate failed", logx.String("schedule_id", id), logx.Err(err))
		return "Could not remove that schedule."
	}
	d.rebuild(ctx)
	return "Schedule removed."
}

func (d Deps) activeSchedules(ctx context.Context) ([]schedule.Record, error) {
	recs, err := d.Store.ListSchedules(ctx)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d Deps) rebuild(ctx context.Context) {
	if d.Rebuild == nil {
		return
	}
	if err := d.Rebuild.Rebuild(ctx); err != nil {
		d.Log.Warn("timer rebuild after mutation failed", logx.Err(err))
	}
}

func describeWhen(r schedule.Record) string {
	switch r.Frequency {
	case schedule.FreqCustom:
		return r.CronExpression
	case schedule.FreqWeekly:
		day := r.Day
		if day == "" {
			day = "monday"
		}
		return day + " " + r.Time
	case schedule.FreqMonthly:
		day := r.Day
		if day == "" {
			day = "1"
		}
		return "day " + day + " " + r.Time
	case schedule.FreqEvery:
		iv := r.Interval
		if iv == "" {
			iv = "1"
		}
		unit := r.Unit
		if unit == "" {
			unit = "days"
		}
		return "every " + iv + " " + unit + " " + r.Time
	default:
		return r.Time
	}
}
