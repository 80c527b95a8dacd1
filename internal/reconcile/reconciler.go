package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/sarathi/internal/domain"
	"golang.org/x/sync/singleflight"
)

// callTimeout bounds a shared reconciliation, which outlives the caller that
// started it.
const callTimeout = 30 * time.Second

// local is the device-side progress owner (consumer-defined interface)
type local interface {
	State() domain.ProgressState
	Replace(state domain.ProgressState) error
}

// Reconciler merges local progress with the remote copy.
type Reconciler struct {
	remote domain.RemoteProgress
	local  local
	logger *slog.Logger

	// group keeps a single reconciliation in flight; concurrent callers
	// receive the result of the running one.
	group singleflight.Group
}

// NewReconciler creates a new Reconciler.
func NewReconciler(remote domain.RemoteProgress, local local, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{remote: remote, local: local, logger: logger}
}

// Reconcile fetches the remote snapshot, merges it with local state, pushes
// the merge to the remote and finally writes it locally. If the remote cannot
// be reached the local state is left untouched.
//
// A caller whose ctx ends stops waiting, but the shared run continues for
// any other callers that joined it.
func (r *Reconciler) Reconcile(ctx context.Context) (domain.ProgressState, error) {
	ch := r.group.DoChan("reconcile", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), callTimeout)
		defer cancel()
		return r.reconcile(runCtx)
	})

	select {
	case <-ctx.Done():
		return domain.ProgressState{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			r.logger.Debug("joined in-flight reconciliation")
		}
		state, _ := res.Val.(domain.ProgressState)
		return state, res.Err
	}
}

func (r *Reconciler) reconcile(ctx context.Context) (domain.ProgressState, error) {
	remote, err := r.remote.Snapshot(ctx)
	if err != nil {
		r.logger.Warn("failed to fetch remote progress", "error", err)
		return domain.ProgressState{}, fmt.Errorf("failed to fetch remote progress: %w", err)
	}

	local := r.local.State()
	merged := Merge(local, remote)

	echoed, err := r.remote.Push(ctx, merged)
	if err != nil {
		r.logger.Warn("failed to push reconciled progress", "error", err)
		return domain.ProgressState{}, fmt.Errorf("failed to push progress: %w", err)
	}
	if echoed != merged {
		// Last writer wins; another device may have pushed in between.
		r.logger.Warn("remote returned a different state",
			"merged_position", merged.Position,
			"remote_position", echoed.Position,
			"merged_streak", merged.Streak,
			"remote_streak", echoed.Streak,
		)
	}

	// Fold in anything recorded locally during the round trip.
	final := Merge(r.local.State(), merged)
	if err := r.local.Replace(final); err != nil {
		return final, err
	}

	r.logger.Info("reconciled progress",
		"local_position", local.Position,
		"remote_position", remote.Position,
		"position", final.Position,
		"streak", final.Streak,
		"last_active", final.LastActiveDate.String(),
	)
	return final, nil
}

// Push sends state to the remote without merging. Used for best-effort
// updates after each advance.
func (r *Reconciler) Push(ctx context.Context, state domain.ProgressState) error {
	_, err := r.remote.Push(ctx, state)
	return err
}
