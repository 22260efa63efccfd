package device

import (
	"fmt"
	"sort"
	"strings"
)

// Fuzzy-tier bounds, matching the search index the catalog was tuned on:
// at most two edits, first character must agree.
const (
	maxEditDistance = 2
	fuzzyPrefixLen  = 1
)

// ratioCutoff is the minimum sequence ratio for the fallback tier.
const ratioCutoff = 0.5

// Suggestion is one fuzzy candidate for an unresolved device name.
// Score is a coarse ranking signal in [0,1]; scores from the fuzzy and
// ratio tiers are not directly comparable.
type Suggestion struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Suggest produces up to n candidates for a name that exact search could
// not resolve. Tier one is a bounded-edit-distance term match over
// product_name, device_name, and aliases; when it yields nothing, tier two
// compares the whole name against every known product name by sequence
// ratio with cutoff 0.5. Results are sorted by descending score.
func (s *Store) Suggest(name string, n int) []Suggestion {
	if n <= 0 {
		return nil
	}
	root := s.root()

	cacheKey := fmt.Sprintf("%d:%s", n, strings.ToLower(name))
	if cached, ok := root.suggestCache.Get(cacheKey); ok {
		return cached
	}

	out := root.fuzzySuggest(name, n)
	if len(out) == 0 {
		out = root.ratioSuggest(name, n)
	}

	root.suggestCache.Add(cacheKey, out)
	return out
}

// fuzzySuggest matches each query token against the indexed name tokens
// within the edit bounds, then maps matched tokens back to product names.
// A product's score is the mean of its best per-token scores.
func (s *Store) fuzzySuggest(name string, n int) []Suggestion {
	qtoks := tokenize(name)
	if len(qtoks) == 0 {
		return nil
	}

	// product name -> per-query-token best score
	productScores := make(map[string][]float64)

	for qi, qt := range qtoks {
		for _, tok := range s.index.nameTokens {
			if tok[0] != qt[0] {
				continue
			}
			dist, ok := boundedEditDistance(qt, tok, maxEditDistance)
			if !ok {
				continue
			}
			longer := max(len(qt), len(tok))
			score := 1 - float64(dist)/float64(longer)

			for _, id := range s.index.postings[tok] {
				d, found := s.base[id]
				if !found {
					continue
				}
				pn := d.ProductName()
				if pn == "" {
					continue
				}
				scores, seen := productScores[pn]
				if !seen {
					scores = make([]float64, len(qtoks))
					productScores[pn] = scores
				}
				if score > scores[qi] {
					scores[qi] = score
				}
			}
		}
	}

	var out []Suggestion
	for pn, scores := range productScores {
		var sum float64
		for _, sc := range scores {
			sum += sc
		}
		out = append(out, Suggestion{Name: pn, Score: sum / float64(len(scores))})
	}
	return topN(out, n)
}

// ratioSuggest compares the whole name against all product names.
func (s *Store) ratioSuggest(name string, n int) []Suggestion {
	lower := strings.ToLower(name)

	var out []Suggestion
	for _, pn := range s.productNames {
		r := sequenceRatio(lower, strings.ToLower(pn))
		if r >= ratioCutoff {
			out = append(out, Suggestion{Name: pn, Score: r})
		}
	}
	return topN(out, n)
}

func topN(suggestions []Suggestion, n int) []Suggestion {
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Name < suggestions[j].Name
	})
	if len(suggestions) > n {
		suggestions = suggestions[:n]
	}
	return suggestions
}

// boundedEditDistance computes Levenshtein distance between a and b,
// bailing out (ok=false) once the distance must exceed bound. The first
// fuzzyPrefixLen characters must match exactly.
func boundedEditDistance(a, b string, bound int) (int, bool) {
	if len(a) >= fuzzyPrefixLen && len(b) >= fuzzyPrefixLen && a[:fuzzyPrefixLen] != b[:fuzzyPrefixLen] {
		return 0, false
	}
	if abs(len(a)-len(b)) > bound {
		return 0, false
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > bound {
			return 0, false
		}
		prev, curr = curr, prev
	}

	if prev[len(b)] > bound {
		return 0, false
	}
	return prev[len(b)], true
}

// sequenceRatio is 2*LCS/(len(a)+len(b)): 1 for identical strings, 0 for
// disjoint ones.
func sequenceRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
		for j := range curr {
			curr[j] = 0
		}
	}

	lcs := prev[len(b)]
	return 2 * float64(lcs) / float64(len(a)+len(b))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
