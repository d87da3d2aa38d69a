package errors

import (
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// maxTypoDistance bounds the edit distance for transposition-style typos
// that a subsequence match cannot catch (e.g. "ecoh" for "echo").
const maxTypoDistance = 2

// ClosestMatch returns the candidate that best matches name, or "" if none is close.
func ClosestMatch(name string, candidates []string) string {
	if name == "" || len(candidates) == 0 {
		return ""
	}

	ranks := fuzzy.RankFindFold(name, candidates)
	if len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDist := "", maxTypoDistance+1
	for _, c := range candidates {
		if d := fuzzy.LevenshteinDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// DidYouMean renders a hint for the closest candidate, or "" if none is close.
func DidYouMean(name string, candidates []string) string {
	if m := ClosestMatch(name, candidates); m != "" && m != name {
		return fmt.Sprintf("did you mean %q?", m)
	}
	return ""
}
