package search

import (
	"sort"
	"strings"

	lfuzzy "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"
)

// Match is a cache key matching a query.
type Match struct {
	Key            string
	MatchedIndexes []int // Rune positions that matched, for highlighting
}

// KeyIndex implements sahilm/fuzzy.Source over request keys.
type KeyIndex struct {
	keys  []string
	lower []string
}

// NewKeyIndex builds an index over keys.
func NewKeyIndex(keys []string) *KeyIndex {
	lower := make([]string, len(keys))
	for i, k := range keys {
		lower[i] = strings.ToLower(k)
	}
	return &KeyIndex{keys: keys, lower: lower}
}

func (idx *KeyIndex) String(i int) string { return idx.lower[i] }

func (idx *KeyIndex) Len() int { return len(idx.keys) }

// Filter returns keys matching query, best first. An empty query returns
// every key in sorted order. Subsequence matching is tried first; when it
// finds nothing the query is matched with unicode normalization so that
// Devanagari paths with combining marks still match.
func (idx *KeyIndex) Filter(query string) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		all := make([]Match, len(idx.keys))
		for i, k := range idx.keys {
			all[i] = Match{Key: k}
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })
		return all
	}

	found := fuzzy.FindFrom(strings.ToLower(query), idx)
	if len(found) > 0 {
		matches := make([]Match, len(found))
		for i, m := range found {
			matches[i] = Match{Key: idx.keys[m.Index], MatchedIndexes: m.MatchedIndexes}
		}
		return matches
	}

	ranks := lfuzzy.RankFindNormalizedFold(query, idx.keys)
	sort.Sort(ranks)
	matches := make([]Match, len(ranks))
	for i, r := range ranks {
		matches[i] = Match{Key: r.Target}
	}
	return matches
}

// FilterKeys is a convenience for one-off filtering.
func FilterKeys(query string, keys []string) []Match {
	return NewKeyIndex(keys).Filter(query)
}
