// Package reconcile folds local and remote journey progress together at login.
package reconcile

import "github.com/mmcdole/sarathi/internal/domain"

// Merge combines two progress states.
//
// Position never regresses: the furthest point reached on any device wins.
// Streak and last-active date travel together from the side that was active
// more recently; on equal dates (or both absent) the larger streak wins.
func Merge(local, remote domain.ProgressState) domain.ProgressState {
	local, remote = local.Normalize(), remote.Normalize()

	merged := domain.ProgressState{Position: max(local.Position, remote.Position)}

	recent := local
	switch {
	case local.LastActiveDate.Before(remote.LastActiveDate):
		recent = remote
	case remote.LastActiveDate.Before(local.LastActiveDate):
		recent = local
	case remote.Streak > local.Streak:
		recent = remote
	}

	merged.Streak = recent.Streak
	merged.LastActiveDate = recent.LastActiveDate
	return merged
}
