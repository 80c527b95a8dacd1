package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mmcdole/sarathi/internal/adapter"
	"github.com/mmcdole/sarathi/internal/domain"
	"github.com/mmcdole/sarathi/internal/journey"
	"github.com/mmcdole/sarathi/internal/reconcile"
	"github.com/mmcdole/sarathi/internal/streak"
	"github.com/mmcdole/sarathi/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const sessionSyncTimeout = 15 * time.Second

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show journey position, streak and title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			tracker, cleanup, err := a.openTracker()
			if err != nil {
				return err
			}
			defer cleanup()

			printStatus(cmd.OutOrStdout(), tracker, a.cfg.IsLoggedIn())
			return nil
		},
	}
}

func advanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance",
		Short: "Move to the next shloka and record today's activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			tracker, cleanup, err := a.openTracker()
			if err != nil {
				return err
			}
			// cleanup waits for the background push
			defer cleanup()

			a.attachSync(tracker)

			state, err := tracker.Advance(cmd.Context())
			if errors.Is(err, domain.ErrJourneyComplete) {
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Journey complete")
				return nil
			}
			if err != nil && !errors.Is(err, domain.ErrStorageUnavailable) {
				return err
			}
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: progress could not be saved on this device")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Shloka %d  %s  streak %d\n",
				state.Shloka(), streak.Title(state.Position), tracker.Streak())
			return nil
		},
	}
}

func journeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "journey",
		Short: "Open the journey dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			tracker, cleanup, err := a.openTracker()
			if err != nil {
				return err
			}
			defer cleanup()

			var syncer tui.Syncer
			if r := a.attachSync(tracker); r != nil {
				a.startSession(cmd.Context(), r)
				if a.cfg.IsLoggedIn() {
					syncer = r
				} else {
					tracker.SetPusher(nil)
				}
			}

			if !term.IsTerminal(int(os.Stdout.Fd())) {
				printStatus(cmd.OutOrStdout(), tracker, a.cfg.IsLoggedIn())
				return nil
			}

			a.logger.Info("starting TUI")
			if err := tui.Run(tracker, syncer); err != nil {
				a.logger.Error("TUI error", "error", err)
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		},
	}
}

// startSession reconciles once when a stored session is still valid. An
// expired session is cleared; an unreachable service is ignored.
func (a *app) startSession(ctx context.Context, r *reconcile.Reconciler) {
	ctx, cancel := context.WithTimeout(ctx, sessionSyncTimeout)
	defer cancel()

	_, err := r.Reconcile(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAuthFailed):
		a.logger.Info("session expired, clearing token")
		a.cfg.Server.Token = ""
		if err := adapter.ClearSession(); err != nil {
			a.logger.Warn("failed to clear session", "error", err)
		}
	default:
		a.logger.Warn("session sync skipped", "error", err)
	}
}

func printStatus(w io.Writer, t *journey.Tracker, loggedIn bool) {
	state := t.State()

	if total := t.Total(); total > 0 {
		fmt.Fprintf(w, "Position:    %d / %d\n", state.Position, total)
	} else {
		fmt.Fprintf(w, "Position:    %d\n", state.Position)
	}
	fmt.Fprintf(w, "Title:       %s\n", streak.Title(state.Position))
	if next, ok := streak.NextRank(state.Position); ok {
		fmt.Fprintf(w, "Next title:  %s in %d\n", next.Title, next.Min-state.Position)
	}
	fmt.Fprintf(w, "Streak:      %d\n", t.Streak())
	if state.LastActiveDate.IsZero() {
		fmt.Fprintln(w, "Last active: never")
	} else {
		fmt.Fprintf(w, "Last active: %s\n", state.LastActiveDate)
	}
	if t.Complete() {
		fmt.Fprintln(w, "Journey complete")
	}
	if loggedIn {
		fmt.Fprintln(w, "Account:     logged in")
	} else {
		fmt.Fprintln(w, "Account:     local only (sarathi login to sync)")
	}
}
