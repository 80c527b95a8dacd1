package tui

import "github.com/mmcdole/sarathi/internal/domain"

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// AdvancedMsg signals that the journey moved one position forward
type AdvancedMsg struct {
	State domain.ProgressState
}

// SyncedMsg signals that reconciliation with the remote finished
type SyncedMsg struct {
	State domain.ProgressState
}

// ClearStatusMsg clears the status line
type ClearStatusMsg struct{}
