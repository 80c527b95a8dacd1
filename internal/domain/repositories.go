package domain

import (
	"context"
	"net/http"
)

// Fetcher performs network requests against the content origin.
type Fetcher interface {
	// Fetch sends req (whose URL may be origin-relative) and returns the full
	// response. Transport failures wrap ErrNetworkUnavailable; non-2xx
	// statuses are returned as responses, not errors.
	Fetch(ctx context.Context, req *http.Request) (*CachedResponse, error)
}

// GenerationStore persists cache generations and the live pointer.
type GenerationStore interface {
	// SaveGeneration writes every entry of a generation and marks it ready in
	// a single transaction. A failed save leaves nothing behind.
	SaveGeneration(tag string, entries map[string]*CachedResponse) error

	// IsReady reports whether tag was fully saved.
	IsReady(tag string) bool

	// Activate makes tag live and deletes every other generation in the same
	// transaction. Returns the evicted tags.
	Activate(tag string) ([]string, error)

	// Live returns the live tag, if any.
	Live() (string, bool)

	// Generations returns all stored tags.
	Generations() ([]string, error)

	GetEntry(tag, key string) (*CachedResponse, bool)
	PutEntry(tag, key string, resp *CachedResponse) error

	// Keys returns the request keys stored under tag.
	Keys(tag string) ([]string, error)

	Close() error
}

// ProgressRepository is durable storage for ProgressState.
// Implementations replace the whole state on Save, never part of it.
type ProgressRepository interface {
	Load() (ProgressState, error)
	Save(state ProgressState) error
	Close() error
}

// RemoteProgress is the authoritative progress copy held by the remote service.
type RemoteProgress interface {
	// Snapshot returns the remote state for the authenticated user.
	Snapshot(ctx context.Context) (ProgressState, error)

	// Push replaces the remote state and returns what the remote now holds.
	Push(ctx context.Context, state ProgressState) (ProgressState, error)
}

// AuthResult contains the result of a successful authentication
type AuthResult struct {
	Token string // Bearer token for API calls
	Phone string // Phone number the OTP was sent to
}

// AuthFlow defines an interactive authentication flow against the remote service.
type AuthFlow interface {
	// Run executes the authentication flow and returns credentials.
	// Implementations handle their own user interaction.
	Run(ctx context.Context) (*AuthResult, error)
}
