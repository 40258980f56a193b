// Package commands holds the built-in command cores. Registration is
// static: everything is wired once at startup and the registry never
// changes afterwards.
package commands

import (
	"context"
	"time"

	"taskbot/internal/command"
	"taskbot/internal/storage"
	"taskbot/internal/tasks"
	"taskbot/pkg/logx"
)

// TaskService is the slice of the workspace-task client the cores use.
type TaskService interface {
	DueToday(ctx context.Context, day time.Time) ([]tasks.Task, error)
	Create(ctx context.Context, title, due string) (tasks.Task, error)
	Complete(ctx context.Context, id string) error
}

// Rebuilder re-syncs live timers with the store after a schedule mutation.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

type Deps struct {
	Store   storage.Store
	Tasks   TaskService // nil when the tasks service is not configured
	Rebuild Rebuilder
	Now     func() time.Time
	Log     logx.Logger
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Register wires every built-in command into the registry.
func Register(reg *command.Registry, d Deps) {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	reg.MustRegister(command.Spec{
		Name:        "ping",
		Description: "Liveness check",
		Run:         pingCore,
	})
	reg.MustRegister(command.Spec{
		Name:        "today",
		Description: "Tasks due today",
		Run:         d.todayCore,
	})
	reg.MustRegister(command.Spec{
		Name:        "newtask",
		Description: "Create a task: newtask <title> [due]",
		Run:         d.newTaskCore,
	})
	reg.MustRegister(command.Spec{
		Name:        "exercise",
		Description: "Log reps or show stats: exercise <type> <amount> | stats [timeframe]",
		Run:         d.exerciseCore,
	})
	reg.MustRegister(command.Spec{
		Name:        "schedule",
		Description: "Manage recurring triggers: schedule add|list|remove",
		Run:         d.scheduleCore,
	})
}

func pingCore(ctx context.Context, p command.Params) (*command.Result, error) {
	return &command.Result{Content: "Pong!"}, nil
}
