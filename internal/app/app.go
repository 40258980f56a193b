package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskbot/internal/bot"
	"taskbot/internal/command"
	"taskbot/internal/commands"
	"taskbot/internal/config"
	"taskbot/internal/dispatch"
	"taskbot/internal/runtime/supervisor"
	"taskbot/internal/scheduler"
	"taskbot/internal/storage"
	"taskbot/internal/tasks"
	"taskbot/internal/transport"
	"taskbot/internal/transport/discord"
	"taskbot/internal/transport/telegram"
	"taskbot/pkg/logx"
)

// App wires config, transport, storage, the scheduler engine, the dispatch
// router and the interactive command router into one process.
type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   storage.Store
	adapter transport.Adapter
	engine  *scheduler.Engine
	disp    *dispatch.Router
	bot     *bot.Router
	reg     *command.Registry

	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "transport"))

	var ad transport.Adapter
	switch strings.ToLower(strings.TrimSpace(cfg.Platform)) {
	case "telegram":
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		ad, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, bootLog)
		if err != nil {
			return nil, err
		}
	case "discord":
		ad, err = discord.New(discord.Config{Token: cfg.Discord.Token}, bootLog)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown platform %q", cfg.Platform)
	}

	// Logging service mapping.
	// logx.New() calls Apply() immediately. Bootstrap with the chat mirror
	// disabled, set the target, then Apply() the final config so enabling it
	// never races an unset target.
	baseLogCfg := mapLoggingConfig(cfg)
	baseLogCfg.Chat.Enabled = false
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if ch := strings.TrimSpace(cfg.Logging.Chat.ChannelID); ch != "" {
		logSvc.SetChatTarget(ch)
	}
	logSvc.Apply(mapLoggingConfig(cfg))

	// Storage (optional)
	var store storage.Store
	if cfg.Storage != nil {
		sc, err := mapStorageConfig(cfg.Storage)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		if store != nil {
			log.Info("storage enabled", logx.String("driver", sc.Driver))
		}
	}

	// Workspace-task service client (optional)
	var taskSvc commands.TaskService
	if cfg.Tasks != nil {
		timeout, err := config.ParseDurationOrDefault("tasks.timeout", cfg.Tasks.Timeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		tc, err := tasks.New(tasks.Config{
			BaseURL: cfg.Tasks.BaseURL,
			APIKey:  cfg.Tasks.APIKey,
			Timeout: timeout,
		})
		if err != nil {
			return nil, err
		}
		taskSvc = tc
	}

	reg := command.NewRegistry()
	disp := dispatch.NewRouter(reg, ad, log.With(logx.String("comp", "dispatch")), store)

	eng := scheduler.New(scheduler.Config{
		// A scheduler without a sheet to read has nothing to fire.
		Enabled:  cfg.Scheduler.Enabled && store != nil,
		Timezone: cfg.Timezone(),
	}, store, disp, log.With(logx.String("comp", "scheduler")))

	deps := commands.Deps{
		Store:   store,
		Tasks:   taskSvc,
		Rebuild: eng,
		Log:     log.With(logx.String("comp", "commands")),
	}
	commands.Register(reg, deps)

	botRouter := bot.NewRouter(bot.Config{
		OwnerUserIDs: cfg.OwnerUserIDs,
	}, reg, deps, ad, log.With(logx.String("comp", "bot")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		engine:  eng,
		disp:    disp,
		bot:     botRouter,
		reg:     reg,
		updates: make(chan transport.Update, 256),
	}, nil
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Chat.Enabled,
			ChannelID:  cfg.Logging.Chat.ChannelID,
			MinLevel:   cfg.Logging.Chat.MinLevel,
			RatePerSec: cfg.Logging.Chat.RatePerSec,
		},
	}
}

func mapStorageConfig(sc *config.StorageConfig) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	// First build of the timer set. A broken sheet is not fatal: the engine
	// logs and stays stopped until the next rebuild.
	if a.engine.Enabled() {
		rctx, cancel := context.WithTimeout(a.sup.Context(), 30*time.Second)
		if err := a.engine.Rebuild(rctx); err != nil {
			a.log.Warn("initial schedule rebuild failed", logx.Err(err))
		} else {
			n, timers := a.engine.LiveCount()
			a.log.Info("schedules armed", logx.Int("schedules", n), logx.Int("timers", timers))
		}
		cancel()
	}

	a.sup.Go("bot.route", func(c context.Context) error {
		return a.bot.Run(c, a.updates)
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a hot-reloaded config into the running components.
// Platform and storage changes need a restart; everything else applies live.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	if cfg == nil {
		return
	}

	// chat log target first so enabling the mirror never races an unset target
	a.logs.SetChatTarget(strings.TrimSpace(cfg.Logging.Chat.ChannelID))
	a.logs.Apply(mapLoggingConfig(cfg))

	a.bot.SetOwners(cfg.OwnerUserIDs)

	if err := a.engine.SetTimezone(ctx, cfg.Timezone()); err != nil {
		a.log.Warn("timezone change rebuild failed", logx.Err(err))
	}
	wantEnabled := cfg.Scheduler.Enabled && a.store != nil
	if wantEnabled != a.engine.Enabled() {
		if wantEnabled {
			a.log.Info("scheduler enabled via config")
		} else {
			a.log.Info("scheduler disabled via config")
		}
		if err := a.engine.SetEnabled(ctx, wantEnabled); err != nil {
			a.log.Warn("scheduler toggle rebuild failed", logx.Err(err))
		}
	}

	if cfg.Storage != nil && a.store == nil || cfg.Storage == nil && a.store != nil {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("scheduler", 5*time.Second, func(c context.Context) error {
		a.engine.Stop()
		return nil
	})
	step("adapter", 5*time.Second, func(c context.Context) error {
		return a.adapter.Stop(c)
	})
	step("supervisor", 5*time.Second, func(c context.Context) error {
		return a.sup.Wait(c)
	})
	if a.store != nil {
		step("storage", 3*time.Second, func(c context.Context) error {
			return a.store.Close()
		})
	}
	step("logging", 2*time.Second, func(c context.Context) error {
		return a.logs.Close()
	})

	a.log.Info("stopped")
	return nil
}
