package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const syncTimeout = 30 * time.Second

// Command factories for async operations

// AdvanceCmd moves the journey forward one position
func AdvanceCmd(j Journey) tea.Cmd {
	return func() tea.Msg {
		state, err := j.Advance(context.Background())
		if err != nil {
			return ErrMsg{Err: err, Context: "advancing"}
		}
		return AdvancedMsg{State: state}
	}
}

// SyncCmd reconciles local progress with the remote copy
func SyncCmd(s Syncer) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()

		state, err := s.Reconcile(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "syncing"}
		}
		return SyncedMsg{State: state}
	}
}

// ClearStatusCmd clears the status line after a delay
func ClearStatusCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}
