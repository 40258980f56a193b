// Package bot is the interactive front: it consumes updates from the
// transport adapter, resolves slash commands against the registry, and
// answers button presses. The scheduler goes through internal/dispatch
// instead and never touches this layer.
package bot

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"taskbot/internal/command"
	"taskbot/internal/commands"
	rtsup "taskbot/internal/runtime/supervisor"
	"taskbot/internal/transport"
	"taskbot/pkg/logx"
)

// Request carries one interactive invocation through the middleware chain.
type Request struct {
	Update    transport.Update
	ChannelID string
	FromID    string
	DM        bool

	Command string
	Args    []string
	Payload string // callback payload
	ReqID   string

	Log logx.Logger
}

type Config struct {
	// OwnerUserIDs may run schedule mutations and press sched_rm buttons.
	// Empty means everyone may.
	OwnerUserIDs []string
	// CommandTimeout bounds one interactive invocation.
	CommandTimeout time.Duration
}

type Router struct {
	cfg     Config
	reg     *command.Registry
	deps    commands.Deps
	adapter transport.Adapter
	log     logx.Logger

	jobs chan func()

	ownerMu sync.RWMutex
	owners  []string

	runMu   sync.Mutex
	running bool
}

// ownerOnlyCommands require an owner id when an owner list is configured.
var ownerOnlyCommands = map[string]bool{
	"schedule": true,
}

func NewRouter(cfg Config, reg *command.Registry, deps commands.Deps, adapter transport.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	return &Router{
		cfg:     cfg,
		reg:     reg,
		deps:    deps,
		adapter: adapter,
		log:     log,
		owners:  append([]string(nil), cfg.OwnerUserIDs...),
		jobs:    make(chan func(), 256),
	}
}

// SetOwners replaces the owner list, typically on config hot-reload.
func (r *Router) SetOwners(ids []string) {
	r.ownerMu.Lock()
	r.owners = append([]string(nil), ids...)
	r.ownerMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// Run consumes updates until ctx is cancelled or the channel closes. It
// owns a bounded worker pool so one slow command cannot stall the rest.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "bot.router"))),
		rtsup.WithCancelOnError(false),
	)

	r.runMu.Lock()
	r.running = true
	r.runMu.Unlock()

	r.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	// Best-effort platform menu update.
	if up, ok := r.adapter.(transport.CommandMenuUpdater); ok {
		sup.Go0("menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, r.reg.MenuCommands()); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			r.runMu.Lock()
			r.running = false
			r.runMu.Unlock()
			close(r.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					// Defensive: a job should never panic (middleware already
					// catches), but keep workers alive if it happens.
					func() {
						defer func() {
							if p := recover(); p != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				r.log.Info("updates channel closed")
				return nil
			}
			r.routeUpdate(ctx, up)
		}
	}
}

func (r *Router) routeUpdate(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		r.routeMessage(ctx, up)
	case transport.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up transport.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := command.Tokenize(text)
	if len(parts) == 0 {
		return
	}
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	// Strip the "@botname" suffix group chats append.
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	if word == "help" {
		r.reply(ctx, msg.ChannelID, transport.Payload{Text: r.helpText()})
		return
	}

	spec, found := r.reg.Lookup(word)
	if !found {
		r.reply(ctx, msg.ChannelID, transport.Payload{Text: "Unknown command. Try /help."})
		return
	}

	if ownerOnlyCommands[spec.Name] && !r.isOwner(msg.FromID) {
		r.reply(ctx, msg.ChannelID, transport.Payload{Text: "Sorry, only the bot owner can do that."})
		return
	}

	rid := newReqID()
	req := &Request{
		Update:    up,
		ChannelID: msg.ChannelID,
		FromID:    msg.FromID,
		DM:        msg.DM,
		Command:   spec.Name,
		Args:      args,
		ReqID:     rid,
		Log: r.log.With(
			logx.String("rid", rid),
			logx.String("channel", msg.ChannelID),
			logx.String("from", msg.FromID),
			logx.String("cmd", spec.Name),
		),
	}

	handle := func(hctx context.Context, hreq *Request) error {
		res, err := spec.Run(hctx, paramsFromRequest(hreq))
		if err != nil {
			r.reply(hctx, hreq.ChannelID, transport.Payload{Text: "Something went wrong running /" + spec.Name + "."})
			return err
		}
		if res == nil {
			return nil
		}
		p := transport.Payload{Text: res.Content, Buttons: res.Buttons, Files: res.Files}
		if strings.TrimSpace(p.Text) == "" && len(p.Buttons) == 0 && len(p.Files) == 0 {
			return nil
		}
		r.reply(hctx, hreq.ChannelID, p)
		return nil
	}

	final := Chain(
		handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(r.cfg.CommandTimeout),
	)

	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		r.reply(ctx, msg.ChannelID, transport.Payload{Text: "Busy, try again."})
	}
}

func (r *Router) routeCallback(ctx context.Context, up transport.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	action, payload, ok := strings.Cut(strings.TrimSpace(cb.Data), ":")
	if !ok || payload == "" {
		return
	}

	var handle HandlerFunc
	switch action {
	case commands.CallbackScheduleRM:
		if !r.isOwner(cb.FromID) {
			_ = r.adapter.AnswerCallback(ctx, cb.ID, "forbidden")
			return
		}
		handle = func(hctx context.Context, hreq *Request) error {
			text := r.deps.RemoveSchedule(hctx, hreq.Payload)
			_ = r.adapter.AnswerCallback(hctx, cb.ID, text)
			return nil
		}
	case commands.CallbackTaskDone:
		handle = func(hctx context.Context, hreq *Request) error {
			text := r.deps.CompleteTask(hctx, hreq.Payload)
			_ = r.adapter.AnswerCallback(hctx, cb.ID, text)
			return nil
		}
	default:
		return
	}

	rid := newReqID()
	req := &Request{
		Update:    up,
		ChannelID: cb.ChannelID,
		FromID:    cb.FromID,
		Command:   "cb:" + action,
		Payload:   payload,
		ReqID:     rid,
		Log: r.log.With(
			logx.String("rid", rid),
			logx.String("channel", cb.ChannelID),
			logx.String("from", cb.FromID),
			logx.String("cmd", "cb:"+action),
		),
	}

	final := Chain(
		handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(r.cfg.CommandTimeout),
	)

	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "busy")
	}
}

func (r *Router) reply(ctx context.Context, channelID string, p transport.Payload) {
	if err := r.adapter.Send(ctx, transport.Target{ChannelID: channelID}, p); err != nil {
		r.log.Warn("reply failed", logx.String("channel", channelID), logx.Err(err))
	}
}

func (r *Router) isOwner(userID string) bool {
	r.ownerMu.RLock()
	defer r.ownerMu.RUnlock()
	if len(r.owners) == 0 {
		return true
	}
	for _, o := range r.owners {
		if o == userID {
			return true
		}
	}
	return false
}

func (r *Router) helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range r.reg.MenuCommands() {
		fmt.Fprintf(&b, "/%s — %s\n", c.Command, c.Description)
	}
	b.WriteString("/help — this list")
	return b.String()
}

// paramsFromRequest maps interactive args into the same positional shape
// scheduled invocations use, so cores behave identically either way.
func paramsFromRequest(req *Request) command.Params {
	p := command.Params{
		UserID: req.FromID,
		Args:   req.Args,
	}
	// In a DM the invoking channel is the user's own chat; still record it
	// so records created here default to firing back into it.
	if !req.DM {
		p.ChannelID = req.ChannelID
	}
	if len(req.Args) > 0 {
		p.Subcommand = req.Args[0]
	}
	if len(req.Args) > 1 {
		p.Amount = req.Args[1]
		if n, err := strconv.Atoi(req.Args[1]); err == nil {
			p.AmountValue = n
			p.AmountOK = true
		}
	}
	if len(req.Args) > 2 {
		p.Timeframe = req.Args[2]
	}
	return p
}
