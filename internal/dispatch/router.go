// Package dispatch routes a fired schedule record into command execution
// and out to its delivery target. Nothing in here may let a single bad
// fire escape: every failure is logged and swallowed so the timer that
// triggered it keeps running.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"taskbot/internal/command"
	"taskbot/internal/schedule"
	"taskbot/internal/storage"
	"taskbot/internal/transport"
	"taskbot/pkg/logx"
)

// Sink delivers one payload to one target. The transport adapter satisfies
// this; tests substitute a spy.
type Sink interface {
	Send(ctx context.Context, to transport.Target, p transport.Payload) error
}

// Auditor persists one fire audit row. Optional.
type Auditor interface {
	AppendFireAudit(ctx context.Context, a storage.FireAudit) error
}

type Router struct {
	reg   *command.Registry
	sink  Sink
	log   logx.Logger
	audit Auditor // nil when storage is disabled
}

func NewRouter(reg *command.Registry, sink Sink, log logx.Logger, audit Auditor) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{reg: reg, sink: sink, log: log, audit: audit}
}

// Dispatch handles one fired schedule. It never returns an error: the
// contract with the scheduler engine is fire-and-forget.
func (r *Router) Dispatch(ctx context.Context, rec schedule.Record) {
	start := time.Now()
	log := r.log.With(
		logx.String("schedule_id", rec.ID),
		logx.String("schedule", rec.Name),
	)

	var fireErr error
	defer func() {
		if p := recover(); p != nil {
			fireErr = fmt.Errorf("panic: %v", p)
			log.Error("dispatch panicked", logx.Any("panic", p), logx.Stack(string(debug.Stack())))
		}
		r.recordAudit(rec, fireErr, time.Since(start))
	}()

	payload, name, ok := r.buildPayload(ctx, rec, log)
	if !ok {
		fireErr = fmt.Errorf("no payload")
		return
	}

	target, ok := resolveTarget(rec)
	if !ok {
		log.Warn("schedule has no resolvable delivery target")
		fireErr = fmt.Errorf("no resolvable delivery target")
		return
	}

	// A delivery is never silently empty.
	if strings.TrimSpace(payload.Text) == "" && len(payload.Buttons) == 0 && len(payload.Files) == 0 {
		payload.Text = "Scheduled command ran: " + name
	}

	if err := r.sink.Send(ctx, target, payload); err != nil {
		// No failover to the other target kind and no retry; the next
		// scheduled occurrence will try again.
		log.Warn("delivery failed", logx.Err(err), logx.String("user", target.UserID), logx.String("channel", target.ChannelID))
		fireErr = err
		return
	}

	log.Info("schedule fired", logx.Duration("took", time.Since(start)))
}

// buildPayload decides between literal message and command execution.
// The returned name identifies what ran, for the empty-content fallback.
func (r *Router) buildPayload(ctx context.Context, rec schedule.Record, log logx.Logger) (transport.Payload, string, bool) {
	if rec.WantsMessage() {
		return transport.Payload{Text: rec.Message}, rec.Name, true
	}
	if !rec.WantsCommand() {
		log.Warn("schedule has neither message nor command")
		return transport.Payload{}, "", false
	}

	name, args := SplitCommandLine(rec.Command)
	spec, found := r.reg.Lookup(name)
	if !found {
		log.Warn("scheduled command is not registered", logx.String("command", name))
		return transport.Payload{}, "", false
	}

	res := r.invoke(ctx, spec, paramsFromRecord(rec, args), log)
	return transport.Payload{Text: res.Content, Buttons: res.Buttons, Files: res.Files}, spec.Name, true
}

// invoke runs the core with panic isolation. An error or panic substitutes
// the synthetic failure result instead of propagating.
func (r *Router) invoke(ctx context.Context, spec command.Spec, p command.Params, log logx.Logger) *command.Result {
	res, err := func() (res *command.Result, err error) {
		defer func() {
			if pan := recover(); pan != nil {
				err = fmt.Errorf("panic: %v", pan)
				log.Error("command core panicked", logx.String("command", spec.Name), logx.Any("panic", pan), logx.Stack(string(debug.Stack())))
			}
		}()
		return spec.Run(ctx, p)
	}()
	if err != nil {
		log.Warn("scheduled command failed", logx.String("command", spec.Name), logx.Err(err))
		return &command.Result{Content: "Failed to run scheduled command: " + spec.Name}
	}
	if res == nil {
		res = &command.Result{}
	}
	return res
}

func (r *Router) recordAudit(rec schedule.Record, fireErr error, took time.Duration) {
	if r.audit == nil {
		return
	}
	a := storage.FireAudit{
		ScheduleID: rec.ID,
		Name:       rec.Name,
		Command:    rec.Command,
		OK:         fireErr == nil,
		TookMS:     took.Milliseconds(),
	}
	if fireErr != nil {
		a.Error = fireErr.Error()
	}
	actx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.audit.AppendFireAudit(actx, a); err != nil {
		r.log.Warn("fire audit append failed", logx.Err(err))
	}
}

// resolveTarget picks the delivery destination. A user target always wins;
// the channel is only used when no user is configured.
func resolveTarget(rec schedule.Record) (transport.Target, bool) {
	if u := strings.TrimSpace(rec.TargetUser); u != "" {
		return transport.Target{UserID: u}, true
	}
	if c := strings.TrimSpace(rec.TargetChannel); c != "" {
		return transport.Target{ChannelID: c}, true
	}
	return transport.Target{}, false
}

// SplitCommandLine breaks "/name arg arg" into the command name (without
// the leading slash, lower-cased) and its positional arguments.
func SplitCommandLine(s string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	return name, fields[1:]
}

// paramsFromRecord maps positional args into the generic invocation shape:
// first arg is the subcommand, second the amount, third the timeframe. The
// full list rides along for commands that need more.
func paramsFromRecord(rec schedule.Record, args []string) command.Params {
	p := command.Params{
		UserID:    strings.TrimSpace(rec.TargetUser),
		ChannelID: strings.TrimSpace(rec.TargetChannel),
		Args:      args,
	}
	if len(args) > 0 {
		p.Subcommand = args[0]
	}
	if len(args) > 1 {
		p.Amount = args[1]
		if n, err := strconv.Atoi(args[1]); err == nil {
			p.AmountValue = n
			p.AmountOK = true
		}
	}
	if len(args) > 2 {
		p.Timeframe = args[2]
	}
	return p
}
