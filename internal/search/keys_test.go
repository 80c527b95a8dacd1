package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"/",
	"/static/css/style.css",
	"/static/js/app.js",
	"/static/js/voice.js",
	"/shloka/2/47",
	"/ask?q=karma",
}

func matchedKeys(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Key
	}
	return out
}

func TestFilter_EmptyQueryListsAllSorted(t *testing.T) {
	got := matchedKeys(FilterKeys("  ", keys))
	require.Len(t, got, len(keys))
	assert.Equal(t, "/", got[0])
	assert.IsNonDecreasing(t, got)
}

func TestFilter_Subsequence(t *testing.T) {
	got := FilterKeys("JS", keys)
	require.NotEmpty(t, got)
	assert.ElementsMatch(t, []string{"/static/js/app.js", "/static/js/voice.js"}, matchedKeys(got))
	assert.NotEmpty(t, got[0].MatchedIndexes)
}

func TestFilter_NoMatch(t *testing.T) {
	assert.Empty(t, FilterKeys("zzz", keys))
}

func TestFilter_NormalizedFallback(t *testing.T) {
	// "shloka" typed with a combining-accent variant still finds the route.
	got := FilterKeys("shlóka", keys)
	assert.Equal(t, []string{"/shloka/2/47"}, matchedKeys(got))
}
