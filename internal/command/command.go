// Package command defines the command registry the dispatcher and the
// interactive bot resolve names against, plus the call contract a command
// core implements.
package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"taskbot/internal/transport"
)

// Params carries everything a core gets for one invocation. For scheduled
// runs the positional arguments are mapped in order: first to Subcommand,
// second to Amount, third to Timeframe. Args always holds the full list.
type Params struct {
	UserID    string
	ChannelID string

	Subcommand string
	Amount     string // raw second argument
	Timeframe  string

	// AmountValue is the parsed Amount; AmountOK reports whether parsing
	// succeeded. Cores that need a number check AmountOK instead of
	// re-parsing.
	AmountValue int
	AmountOK    bool

	Args []string
}

// Result is what a core hands back for delivery.
type Result struct {
	Content string
	Buttons [][]transport.Button
	Files   []transport.Attachment
}

// CoreFunc runs one command. Business failures ("no tasks today") are
// reported in Result.Content; an error return means the run itself failed.
type CoreFunc func(ctx context.Context, p Params) (*Result, error)

type Spec struct {
	Name        string
	Description string
	Run         CoreFunc
}

// Registry maps command names to cores. It is populated once during
// startup and read-only afterwards, so lookups during dispatch take no
// lock beyond the RWMutex read path.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

func NewRegistry() *Registry {
	return &Registry{specs: map[string]Spec{}}
}

func (r *Registry) Register(s Spec) error {
	name := strings.ToLower(strings.TrimSpace(s.Name))
	if name == "" {
		return fmt.Errorf("command name is empty")
	}
	if s.Run == nil {
		return fmt.Errorf("command %q has no core", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.specs[name]; dup {
		return fmt.Errorf("command %q registered twice", name)
	}
	s.Name = name
	r.specs[name] = s
	return nil
}

// MustRegister panics on a registration conflict; startup wiring is the
// only caller and a conflict there is a programming error.
func (r *Registry) MustRegister(s Spec) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Names returns all registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.specs))
	for n := range r.specs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// MenuCommands renders the registry as platform menu entries.
func (r *Registry) MenuCommands() []transport.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]transport.BotCommand, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, transport.BotCommand{Command: s.Name, Description: s.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}
