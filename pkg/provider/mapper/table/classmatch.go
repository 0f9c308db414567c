package table

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.88
)

// classMatcher resolves detector labels that are not in the table onto the
// closest table key. Labels that share a Double Metaphone code with a key
// need only the lower phonetic threshold on Jaro-Winkler similarity; other
// labels need the stricter fuzzy threshold. Multi-word labels are compared
// token by token, so "potted plant" reaches "plant".
type classMatcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

func newClassMatcher(fuzzy float64) classMatcher {
	if fuzzy <= 0 {
		fuzzy = defaultFuzzyThreshold
	}
	return classMatcher{
		phoneticThreshold: min(defaultPhoneticThreshold, fuzzy),
		fuzzyThreshold:    fuzzy,
	}
}

// match returns the best key for label, or false when nothing is close.
// Ties keep the earliest key, so callers pass keys in a stable order.
func (m classMatcher) match(label string, keys []string) (string, float64, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return "", 0, false
	}
	labelTokens := strings.Fields(label)
	labelCodes := codesFor(labelTokens)

	var (
		best      string
		bestScore float64
		phonetic  bool
	)
	for _, key := range keys {
		keyTokens := strings.Fields(key)
		score := similarity(labelTokens, keyTokens, label, key)
		if overlaps(labelCodes, codesFor(keyTokens)) {
			if score >= m.phoneticThreshold && (!phonetic || score > bestScore) {
				best, bestScore, phonetic = key, score, true
			}
		} else if !phonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = key, score
		}
	}
	return best, bestScore, best != ""
}

func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score between the full strings,
// their concatenated tokens, or any token pair.
func similarity(aTokens, bTokens []string, a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		if s := matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false); s > score {
			score = s
		}
	}
	for _, at := range aTokens {
		for _, bt := range bTokens {
			if s := matchr.JaroWinkler(at, bt, false); s > score {
				score = s
			}
		}
	}
	return score
}
