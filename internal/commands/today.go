package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskbot/internal/command"
	"taskbot/internal/transport"
	"taskbot/pkg/logx"
)

// Callback actions round-tripped through button data.
const (
	CallbackTaskDone   = "task_done"
	CallbackScheduleRM = "sched_rm"
)

func (d Deps) todayCore(ctx context.Context, p command.Params) (*command.Result, error) {
	if d.Tasks == nil {
		return &command.Result{Content: "Task service is not configured."}, nil
	}

	due, err := d.Tasks.DueToday(ctx, d.now())
	if err != nil {
		d.Log.Warn("due-today query failed", logx.Err(err))
		return &command.Result{Content: "Could not reach the task service."}, nil
	}
	if len(due) == 0 {
		return &command.Result{Content: "Nothing due today. 🎉"}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d task(s) due today:\n", len(due))
	var rows [][]transport.Button
	for i, t := range due {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t.Title)
		rows = append(rows, []transport.Button{{
			Label: fmt.Sprintf("Done: %s", truncateLabel(t.Title, 40)),
			Data:  CallbackTaskDone + ":" + t.ID,
		}})
	}
	return &command.Result{Content: strings.TrimRight(b.String(), "\n"), Buttons: rows}, nil
}

func (d Deps) newTaskCore(ctx context.Context, p command.Params) (*command.Result, error) {
	if d.Tasks == nil {
		return &command.Result{Content: "Task service is not configured."}, nil
	}

	args := p.Args
	if len(args) == 0 {
		return &command.Result{Content: "Usage: newtask <title> [due: YYYY-MM-DD|today|tomorrow]"}, nil
	}

	// The last arg is a due date when it parses as one; everything else is
	// the title.
	title := strings.Join(args, " ")
	due := ""
	if len(args) > 1 {
		if dv, ok := resolveDue(args[len(args)-1], d.now()); ok {
			due = dv
			title = strings.Join(args[:len(args)-1], " ")
		}
	}

	t, err := d.Tasks.Create(ctx, title, due)
	if err != nil {
		d.Log.Warn("task create failed", logx.Err(err))
		return &command.Result{Content: "Could not create the task."}, nil
	}
	if t.Due != "" {
		return &command.Result{Content: fmt.Sprintf("Created task %q due %s.", t.Title, t.Due)}, nil
	}
	return &command.Result{Content: fmt.Sprintf("Created task %q.", t.Title)}, nil
}

// CompleteTask is the task_done button handler. It returns the short
// confirmation shown to the presser.
func (d Deps) CompleteTask(ctx context.Context, taskID string) string {
	if d.Tasks == nil {
		return "Task service is not configured."
	}
	if err := d.Tasks.Complete(ctx, taskID); err != nil {
		d.Log.Warn("task complete failed", logx.String("task_id", taskID), logx.Err(err))
		return "Could not complete the task."
	}
	return "Task completed."
}

func resolveDue(s string, now time.Time) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today":
		return now.Format("2006-01-02"), true
	case "tomorrow":
		return now.AddDate(0, 0, 1).Format("2006-01-02"), true
	}
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(s)); err == nil {
		return t.Format("2006-01-02"), true
	}
	return "", false
}

func truncateLabel(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
