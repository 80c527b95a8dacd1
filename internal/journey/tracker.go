package journey

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/sarathi/internal/domain"
	"github.com/mmcdole/sarathi/internal/streak"
)

const defaultPushTimeout = 15 * time.Second

// pusher sends local progress to the remote copy (consumer-defined interface)
type pusher interface {
	Push(ctx context.Context, state domain.ProgressState) error
}

// Tracker owns the user's local progress.
// All reads and writes of durable progress go through it; the repository is
// loaded once and rewritten as a whole on every mutation.
type Tracker struct {
	repo   domain.ProgressRepository
	logger *slog.Logger

	mu     sync.Mutex
	state  domain.ProgressState
	pusher pusher

	total       int
	loc         *time.Location
	now         func() time.Time
	pushTimeout time.Duration

	pending sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTotal sets the length of the content sequence (0 = unbounded).
func WithTotal(total int) Option {
	return func(t *Tracker) { t.total = total }
}

// WithLocation sets the zone that decides calendar days.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithPushTimeout bounds each background push.
func WithPushTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.pushTimeout = d }
}

// NewTracker loads state from repo. A load failure is returned as-is
// (wrapping domain.ErrStorageUnavailable) so the caller can retry with an
// in-memory repository.
func NewTracker(repo domain.ProgressRepository, logger *slog.Logger, opts ...Option) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		repo:        repo,
		logger:      logger,
		loc:         time.UTC,
		now:         time.Now,
		pushTimeout: defaultPushTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}

	state, err := repo.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	t.state = state
	return t, nil
}

// Today returns the current calendar day in the tracker's zone.
func (t *Tracker) Today() domain.Date {
	return domain.DateOf(t.now().In(t.loc))
}

// Total returns the configured sequence length (0 = unbounded).
func (t *Tracker) Total() int {
	return t.total
}

// SetPusher attaches (or with nil, detaches) the remote push used after each advance.
func (t *Tracker) SetPusher(p pusher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pusher = p
}

// State returns the stored state as-is.
func (t *Tracker) State() domain.ProgressState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Position() int {
	return t.State().Position
}

func (t *Tracker) LastActiveDate() domain.Date {
	return t.State().LastActiveDate
}

// Streak returns the streak as of today without mutating anything.
func (t *Tracker) Streak() int {
	s := t.State()
	return streak.Compute(s.LastActiveDate, s.Streak, t.Today())
}

// Complete reports whether the last position of the sequence has been reached.
func (t *Tracker) Complete() bool {
	return t.total > 0 && t.Position() >= t.total-1
}

// SetPosition overwrites the position.
func (t *Tracker) SetPosition(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidPosition, n)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.state
	next.Position = n
	return t.commit(next)
}

// RecordActivityToday advances the streak at most once per calendar day.
func (t *Tracker) RecordActivityToday() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recordActivity(t.Today())
}

func (t *Tracker) recordActivity(today domain.Date) error {
	next := t.state
	next.Streak, next.LastActiveDate = streak.Advance(t.state.LastActiveDate, t.state.Streak, today)
	if next == t.state {
		return nil
	}
	return t.commit(next)
}

// Replace overwrites the whole state (used by reconciliation).
func (t *Tracker) Replace(state domain.ProgressState) error {
	if state.Position < 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidPosition, state.Position)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commit(state.Normalize())
}

// Advance moves one position forward and records today's activity in a
// single write, then pushes the result to the remote in the background.
func (t *Tracker) Advance(ctx context.Context) (domain.ProgressState, error) {
	t.mu.Lock()

	if t.total > 0 && t.state.Position >= t.total-1 {
		state := t.state
		t.mu.Unlock()
		return state, domain.ErrJourneyComplete
	}

	next := t.state
	next.Position++
	next.Streak, next.LastActiveDate = streak.Advance(t.state.LastActiveDate, t.state.Streak, t.Today())
	err := t.commit(next)
	p := t.pusher
	t.mu.Unlock()

	t.logger.Info("advanced journey", "position", next.Position, "streak", next.Streak)

	if p != nil {
		t.pushAsync(ctx, p, next)
	}
	return next, err
}

// Wait blocks until background pushes have settled.
func (t *Tracker) Wait() {
	t.pending.Wait()
}

// pushAsync is best-effort: failures are logged, never returned.
func (t *Tracker) pushAsync(ctx context.Context, p pusher, state domain.ProgressState) {
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()

		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.pushTimeout)
		defer cancel()

		if err := p.Push(pushCtx, state); err != nil {
			t.logger.Warn("progress push failed", "error", err, "position", state.Position)
			return
		}
		t.logger.Debug("progress pushed", "position", state.Position)
	}()
}

// commit keeps the new state in memory even when persisting fails, so the
// session continues in memory. Callers hold t.mu.
func (t *Tracker) commit(next domain.ProgressState) error {
	t.state = next
	if err := t.repo.Save(next); err != nil {
		t.logger.Error("failed to save progress", "error", err)
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}
