package offline

import (
	"fmt"
	"net/http"
	"strings"
)

// Mode is one of the two serving mechanics.
type Mode string

const (
	// NetworkFirst tries the origin, writes successful GETs through to the
	// live generation and falls back to the stored copy when offline.
	NetworkFirst Mode = "network-first"

	// CacheFirst serves the live generation and only goes to the origin on a
	// miss, without storing the result.
	CacheFirst Mode = "cache-first"
)

// Strategy names
const (
	StrategyNetworkFirst = string(NetworkFirst)
	StrategyCacheFirst   = string(CacheFirst)
	StrategyHybrid       = "hybrid"
)

// DefaultNetworkPrefixes are the live-data routes of the hybrid rule.
var DefaultNetworkPrefixes = []string{"/ask", "/api/", "/shloka/"}

// Strategy decides the serving mode per request. It is the single switch
// between cache policies; swapping policies never touches the cache itself.
type Strategy interface {
	Name() string
	ModeFor(req *http.Request) Mode
}

type uniform Mode

// Uniform applies one mode to every request.
func Uniform(mode Mode) Strategy {
	return uniform(mode)
}

func (u uniform) Name() string { return string(u) }

func (u uniform) ModeFor(*http.Request) Mode { return Mode(u) }

// PathRule serves requests under NetworkPrefixes network-first and everything
// else with Default.
type PathRule struct {
	NetworkPrefixes []string
	Default         Mode
}

func (p PathRule) Name() string { return StrategyHybrid }

func (p PathRule) ModeFor(req *http.Request) Mode {
	for _, prefix := range p.NetworkPrefixes {
		if strings.HasPrefix(req.URL.Path, prefix) {
			return NetworkFirst
		}
	}
	if p.Default == "" {
		return CacheFirst
	}
	return p.Default
}

// ParseStrategy builds a Strategy from its configured name.
func ParseStrategy(name string, networkPrefixes []string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyNetworkFirst:
		return Uniform(NetworkFirst), nil
	case StrategyCacheFirst:
		return Uniform(CacheFirst), nil
	case StrategyHybrid:
		if len(networkPrefixes) == 0 {
			networkPrefixes = DefaultNetworkPrefixes
		}
		return PathRule{NetworkPrefixes: networkPrefixes, Default: CacheFirst}, nil
	default:
		return nil, fmt.Errorf("unknown cache strategy: %q", name)
	}
}
