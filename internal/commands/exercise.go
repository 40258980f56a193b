package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"taskbot/internal/command"
	"taskbot/internal/storage"
	"taskbot/pkg/logx"
)

// timeframeDays maps a stats timeframe word to a day window.
var timeframeDays = map[string]int{
	"day":   1,
	"today": 1,
	"week":  7,
	"month": 30,
	"year":  365,
}

func (d Deps) exerciseCore(ctx context.Context, p command.Params) (*command.Result, error) {
	if d.Store == nil {
		return &command.Result{Content: "Storage is not configured."}, nil
	}

	sub := strings.ToLower(strings.TrimSpace(p.Subcommand))
	switch sub {
	case "":
		return &command.Result{Content: "Usage: exercise <type> <amount> | exercise stats [timeframe]"}, nil
	case "stats":
		return d.exerciseStats(ctx, p)
	case "log":
		// "log <type> <amount>" spelling: type and amount shift one slot.
		if len(p.Args) < 3 {
			return &command.Result{Content: "Usage: exercise log <type> <amount>"}, nil
		}
		return d.exerciseLog(ctx, p.UserID, p.Args[1], p.Args[2])
	default:
		// "<type> <amount>" spelling, the scheduled-invocation shape.
		if !p.AmountOK || p.AmountValue <= 0 {
			return &command.Result{Content: fmt.Sprintf("How many %ss? Use: exercise %s <amount>", sub, sub)}, nil
		}
		return d.logActivity(ctx, p.UserID, sub, p.AmountValue)
	}
}

func (d Deps) exerciseLog(ctx context.Context, userID, name, rawAmount string) (*command.Result, error) {
	var amount int
	if _, err := fmt.Sscanf(strings.TrimSpace(rawAmount), "%d", &amount); err != nil || amount <= 0 {
		return &command.Result{Content: fmt.Sprintf("%q is not a valid amount.", rawAmount)}, nil
	}
	return d.logActivity(ctx, userID, strings.ToLower(name), amount)
}

func (d Deps) logActivity(ctx context.Context, userID, name string, amount int) (*command.Result, error) {
	err := d.Store.AppendActivity(ctx, storage.ActivityEntry{
		At:       d.now(),
		UserID:   userID,
		Activity: name,
		Amount:   amount,
	})
	if err != nil {
		d.Log.Warn("activity append failed", logx.Err(err))
		return &command.Result{Content: "Could not save the activity."}, nil
	}
	plural := "s"
	if amount == 1 {
		plural = ""
	}
	return &command.Result{Content: fmt.Sprintf("Logged %d %s%s for today!", amount, name, plural)}, nil
}

func (d Deps) exerciseStats(ctx context.Context, p command.Params) (*command.Result, error) {
	// Scheduled invocations carry the timeframe as the second positional
	// arg ("stats week"), interactive ones may use the third slot.
	tf := strings.ToLower(strings.TrimSpace(p.Timeframe))
	if tf == "" && !p.AmountOK {
		tf = strings.ToLower(strings.TrimSpace(p.Amount))
	}
	days, known := timeframeDays[tf]
	if !known {
		if tf != "" {
			d.Log.Debug("unknown stats timeframe, defaulting to week", logx.String("timeframe", tf))
		}
		days = 7
		tf = "week"
	}

	since := d.now().AddDate(0, 0, -days)
	entries, err := d.Store.ListActivity(ctx, p.UserID, since)
	if err != nil {
		d.Log.Warn("activity read failed", logx.Err(err))
		return &command.Result{Content: "Could not read the activity log."}, nil
	}
	if len(entries) == 0 {
		return &command.Result{Content: fmt.Sprintf("No activity logged in the last %s.", tf)}, nil
	}

	totals := map[string]int{}
	for _, e := range entries {
		totals[e.Activity] += e.Amount
	}
	names := make([]string, 0, len(totals))
	for n := range totals {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Activity over the last %s:\n", tf)
	for _, n := range names {
		fmt.Fprintf(&b, "- %s: %d\n", n, totals[n])
	}
	return &command.Result{Content: strings.TrimRight(b.String(), "\n")}, nil
}
