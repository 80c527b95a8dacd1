package main

import (
	"errors"
	"fmt"

	"github.com/mmcdole/sarathi/internal/adapter"
	"github.com/mmcdole/sarathi/internal/domain"
	"github.com/mmcdole/sarathi/internal/reconcile"
	"github.com/mmcdole/sarathi/internal/remote"
	"github.com/spf13/cobra"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with your mobile number and sync your journey",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			client := a.remoteClient()
			var flow domain.AuthFlow = remote.NewAuthFlow(client, a.logger)

			result, err := flow.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			a.cfg.Server.Token = result.Token
			if err := adapter.SaveToken(result.Token); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}

			tracker, cleanup, err := a.openTracker()
			if err != nil {
				return err
			}
			defer cleanup()

			r := reconcile.NewReconciler(client, tracker, a.logger)
			state, err := r.Reconcile(cmd.Context())
			if err != nil {
				// Logged in either way; the next sync retries.
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: journey not synced: %v\n", err)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Journey synced: position %d, streak %d\n", state.Position, tracker.Streak())
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile local progress with your account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.cfg.IsLoggedIn() {
				return errors.New("not logged in (run: sarathi login)")
			}

			tracker, cleanup, err := a.openTracker()
			if err != nil {
				return err
			}
			defer cleanup()

			r := a.attachSync(tracker)
			state, err := r.Reconcile(cmd.Context())
			if errors.Is(err, domain.ErrAuthFailed) {
				_ = adapter.ClearSession()
				return errors.New("session expired, please log in again")
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Synced: position %d, streak %d\n", state.Position, tracker.Streak())
			return nil
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.IsLoggedIn() {
				a.remoteClient().Logout(cmd.Context())
			}
			if err := adapter.ClearSession(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
			return nil
		},
	}
}
