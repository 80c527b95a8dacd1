package domain

// ProgressState is the user's journey progress.
// Position indexes a fixed ordered content sequence; Streak counts consecutive
// active calendar days ending at LastActiveDate.
type ProgressState struct {
	Position       int  `json:"journey_position"`
	Streak         int  `json:"journey_streak"`
	LastActiveDate Date `json:"journey_last_date"`
}

// Normalize clamps negative counters to zero.
func (s ProgressState) Normalize() ProgressState {
	if s.Position < 0 {
		s.Position = 0
	}
	if s.Streak < 0 {
		s.Streak = 0
	}
	return s
}

// Shloka is the 1-based number of the shloka at Position, as shown to users.
func (s ProgressState) Shloka() int {
	return s.Position + 1
}

// ProgressFunc reports progress of a multi-step operation (e.g. asset fetch).
type ProgressFunc func(loaded, total int)
