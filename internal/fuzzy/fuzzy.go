// Package fuzzy snaps free-text labels onto a closed vocabulary using the
// same similarity ratio as difflib's SequenceMatcher.
package fuzzy

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
)

// DefaultCutoff is the similarity a candidate must reach to count as a match.
const DefaultCutoff = 0.6

func characters(text string) []string {
	runes := []rune(text)
	out := make([]string, len(runes))
	for index, r := range runes {
		out[index] = string(r)
	}
	return out
}

// Fold normalizes case and surrounding space for comparisons.
func Fold(text string) string {
	return cases.Fold().String(strings.TrimSpace(text))
}

// Ratio returns 2*M/T over the characters of a and b, in [0, 1].
func Ratio(a, b string) float64 {
	return difflib.NewMatcher(characters(a), characters(b)).Ratio()
}

type scored struct {
	score float64
	label string
}

// CloseMatches returns up to n possibilities whose ratio against word is at
// least cutoff, best first. Ties go to the lexically greater candidate.
func CloseMatches(word string, possibilities []string, n int, cutoff float64) []string {
	if n <= 0 {
		return nil
	}
	matcher := difflib.NewMatcher(nil, characters(word))
	var candidates []scored
	for _, possibility := range possibilities {
		matcher.SetSeq1(characters(possibility))
		if matcher.RealQuickRatio() >= cutoff && matcher.QuickRatio() >= cutoff {
			if score := matcher.Ratio(); score >= cutoff {
				candidates = append(candidates, scored{score: score, label: possibility})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].label > candidates[j].label
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]string, len(candidates))
	for index, candidate := range candidates {
		out[index] = candidate.label
	}
	return out
}

// Nearest returns the label closest to word, comparing case-folded text.
// When no label reaches cutoff the fallback is returned.
func Nearest(word string, labels []string, cutoff float64, fallback string) string {
	folded := Fold(word)
	foldedLabels := make([]string, len(labels))
	for index, label := range labels {
		foldedLabels[index] = Fold(label)
		if foldedLabels[index] == folded {
			return label
		}
	}
	matches := CloseMatches(folded, foldedLabels, 1, cutoff)
	if len(matches) == 0 {
		return fallback
	}
	for index, foldedLabel := range foldedLabels {
		if foldedLabel == matches[0] {
			return labels[index]
		}
	}
	return fallback
}
