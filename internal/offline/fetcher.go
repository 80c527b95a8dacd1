package offline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/sarathi/internal/domain"
)

const defaultTimeout = 30 * time.Second

// hopHeaders are connection-scoped and never forwarded or stored.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

// HTTPFetcher implements domain.Fetcher against a single origin.
type HTTPFetcher struct {
	origin     *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPFetcher creates a fetcher for originURL. A zero timeout uses the default.
func NewHTTPFetcher(originURL string, timeout time.Duration, logger *slog.Logger) (*HTTPFetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	origin, err := url.Parse(strings.TrimRight(originURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid origin URL: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("origin URL must be absolute: %q", originURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPFetcher{
		origin: origin,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// Fetch forwards req to the origin, keeping its path and query.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*domain.CachedResponse, error) {
	target := *f.origin
	target.Path = f.origin.Path + req.URL.Path
	// Encoded separators such as %2F must reach the origin as sent.
	target.RawPath = f.origin.EscapedPath() + req.URL.EscapedPath()
	target.RawQuery = req.URL.RawQuery

	var body io.Reader
	if req.Body != nil && req.Body != http.NoBody {
		body = req.Body
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	removeHopHeaders(out.Header)

	f.logger.Debug("origin request", "method", req.Method, "url", target.String())

	resp, err := f.httpClient.Do(out)
	if err != nil {
		f.logger.Debug("origin request failed", "error", err, "url", target.String())
		return nil, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrNetworkUnavailable, err)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)

	return &domain.CachedResponse{
		Status:   resp.StatusCode,
		Header:   header,
		Body:     data,
		StoredAt: time.Now().UTC(),
	}, nil
}

func removeHopHeaders(h http.Header) {
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
