// Package streak computes daily-activity streaks.
//
// Reading and advancing are separate: Compute derives the streak to display
// without changing anything, while Advance is the write path and is a no-op
// when today has already been counted.
package streak

import "github.com/mmcdole/sarathi/internal/domain"

// Compute returns the streak as of today. A streak survives one missed day
// (activity yesterday, none yet today) and breaks after that.
func Compute(last domain.Date, streak int, today domain.Date) int {
	switch {
	case last.IsZero():
		return 0
	case last == today:
		return streak
	case last == today.AddDays(-1):
		return streak
	default:
		return 0
	}
}

// Advance records activity for today and returns the new streak and last date.
func Advance(last domain.Date, streak int, today domain.Date) (int, domain.Date) {
	switch {
	case !last.IsZero() && last == today:
		return streak, last
	case !last.IsZero() && last == today.AddDays(-1):
		return streak + 1, today
	default:
		return 1, today
	}
}
