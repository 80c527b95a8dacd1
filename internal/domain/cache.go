package domain

import (
	"net/http"
	"time"
)

// Source identifies where a served response came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceOffline Source = "offline"
)

// CachedResponse is a stored HTTP response.
type CachedResponse struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// OK reports whether the response has a 2xx status.
func (r *CachedResponse) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Generation describes one versioned set of cached assets.
type Generation struct {
	Tag    string
	Assets []string
	Ready  bool
	Live   bool
}
