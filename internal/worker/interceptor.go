package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mmcdole/sarathi/internal/domain"
	"github.com/mmcdole/sarathi/internal/offline"
)

// State is the interceptor lifecycle state.
type State int

const (
	StateIdle State = iota
	StateInstalling
	StateReady
	StateActivating
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInstalling:
		return "installing"
	case StateReady:
		return "ready"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time view of the interceptor.
type Status struct {
	State    string `json:"state"`
	Version  string `json:"version"`
	Ready    string `json:"ready,omitempty"`
	Live     string `json:"live,omitempty"`
	Strategy string `json:"strategy"`
}

// cache is the subset of offline.Cache the interceptor drives.
type cache interface {
	Populate(ctx context.Context, tag string, assets []string, onProgress domain.ProgressFunc) error
	Activate(ctx context.Context, tag string) error
	Resolve(ctx context.Context, req *http.Request) offline.Result
	Live() (string, bool)
	Ready(tag string) bool
	Strategy() offline.Strategy
}

// Config selects the generation the interceptor installs.
type Config struct {
	Version     string
	Assets      []string
	SkipWaiting bool // activate immediately after a successful install
}

// Interceptor is the background worker: it installs and activates cache
// generations in response to lifecycle events and answers every fetch.
type Interceptor struct {
	cache  cache
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	state State
	ready string // populated, not yet live
}

// New creates an interceptor. It starts ready when the configured version
// was populated earlier but is not live, active when some other generation
// is live, and idle otherwise.
func New(c cache, cfg Config, logger *slog.Logger) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	i := &Interceptor{cache: c, cfg: cfg, logger: logger, state: StateIdle}

	live, ok := c.Live()
	switch {
	case cfg.Version != "" && live != cfg.Version && c.Ready(cfg.Version):
		i.state = StateReady
		i.ready = cfg.Version
	case ok:
		i.state = StateActive
	}
	return i
}

// State returns the current lifecycle state.
func (i *Interceptor) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Status reports the lifecycle state together with the cache generations.
func (i *Interceptor) Status() Status {
	i.mu.Lock()
	state, ready := i.state, i.ready
	i.mu.Unlock()

	live, _ := i.cache.Live()
	return Status{
		State:    state.String(),
		Version:  i.cfg.Version,
		Ready:    ready,
		Live:     live,
		Strategy: i.cache.Strategy().Name(),
	}
}

// transition moves from one of the allowed states to next, returning the
// state it left.
func (i *Interceptor) transition(next State, allowed ...State) (State, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, s := range allowed {
		if i.state == s {
			prev := i.state
			i.state = next
			return prev, nil
		}
	}
	if i.state == StateInstalling || i.state == StateActivating {
		return i.state, fmt.Errorf("%w: currently %s", domain.ErrInstallInProgress, i.state)
	}
	return i.state, fmt.Errorf("%w: cannot go from %s to %s", domain.ErrInvalidTransition, i.state, next)
}

func (i *Interceptor) settle(state State, ready string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = state
	i.ready = ready
}

// Install populates the configured generation. On failure the interceptor
// returns to the state it was in. With SkipWaiting the generation is
// activated right away.
func (i *Interceptor) Install(ctx context.Context, onProgress domain.ProgressFunc) error {
	prev, err := i.transition(StateInstalling, StateIdle, StateReady, StateActive)
	if err != nil {
		return err
	}

	i.mu.Lock()
	prevReady := i.ready
	i.mu.Unlock()

	tag := i.cfg.Version
	i.logger.Info("install started", "tag", tag, "assets", len(i.cfg.Assets))

	err = dispatch(ctx, "install", func(ev *Event) {
		ev.WaitUntil(func(ctx context.Context) error {
			return i.cache.Populate(ctx, tag, i.cfg.Assets, onProgress)
		})
	})
	if err != nil {
		i.settle(prev, prevReady)
		i.logger.Error("install failed", "error", err, "tag", tag)
		return fmt.Errorf("install %s: %w", tag, err)
	}

	i.settle(StateReady, tag)
	i.logger.Info("install finished", "tag", tag)

	if i.cfg.SkipWaiting {
		return i.Activate(ctx)
	}
	return nil
}

// Activate makes the installed generation live.
func (i *Interceptor) Activate(ctx context.Context) error {
	if _, err := i.transition(StateActivating, StateReady); err != nil {
		return err
	}

	i.mu.Lock()
	tag := i.ready
	i.mu.Unlock()

	err := dispatch(ctx, "activate", func(ev *Event) {
		ev.WaitUntil(func(ctx context.Context) error {
			return i.cache.Activate(ctx, tag)
		})
	})
	if err != nil {
		i.settle(StateReady, tag)
		i.logger.Error("activate failed", "error", err, "tag", tag)
		return fmt.Errorf("activate %s: %w", tag, err)
	}

	i.settle(StateActive, "")
	i.logger.Info("activated", "tag", tag)
	return nil
}

// Fetch answers a request in any state from the live generation.
func (i *Interceptor) Fetch(ctx context.Context, req *http.Request) offline.Result {
	var res offline.Result
	_ = dispatch(ctx, "fetch", func(ev *Event) {
		ev.WaitUntil(func(ctx context.Context) error {
			res = i.cache.Resolve(ctx, req.WithContext(ctx))
			return nil
		})
	})
	return res
}
