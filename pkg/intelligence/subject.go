// Package intelligence provides the heuristic layer of the memory graph:
// inferring a subject entity from free text and scoring the importance of
// learned lessons. Both heuristics have rule-based implementations and
// optional LLM-backed ones that fall back to rules on any failure.
package intelligence

import (
	"context"
	"strings"
	"unicode"
)

// Subject is an inferred subject entity for a piece of free text.
type Subject struct {
	// Name is the subject's display name.
	Name string

	// Kind is a coarse classification guess ("preference", "concept", ...).
	Kind string
}

// SubjectExtractor infers the subject entity implied by free text.
//
// The extractor is deliberately a narrow interface so a smarter
// implementation can be swapped in without touching the log or index
// contracts. Returning ok=false means no subject could be inferred and the
// caller should fall back to a synthetic entity.
type SubjectExtractor interface {
	Extract(ctx context.Context, text string) (Subject, bool)
}

// RuleExtractor is the default rule-based subject extractor.
//
// Rules, in order:
//  1. An explicitly quoted name ("Agent Zero" or 'Agent Zero') wins.
//  2. A leading run of capitalized words is taken as a proper-noun subject.
//  3. Otherwise the first word is the subject, unless it is a stopword.
type RuleExtractor struct{}

// stopwords are leading words that never make a useful subject.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "i": true, "it": true,
	"this": true, "that": true, "these": true, "those": true,
	"there": true, "here": true, "my": true, "our": true, "some": true,
	"when": true, "if": true, "to": true, "in": true, "on": true,
	"always": true, "never": true, "do": true, "don't": true, "dont": true,
}

// preferenceMarkers hint that the text records a preference.
var preferenceMarkers = []string{"prefer", "prefers", "like", "likes", "favorite", "favourite", "dislike", "hates", "loves"}

// Extract applies the rules above.
func (RuleExtractor) Extract(_ context.Context, text string) (Subject, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Subject{}, false
	}

	if name, ok := quotedName(text); ok {
		return Subject{Name: name, Kind: classify(text)}, true
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Subject{}, false
	}

	// A lone capitalized stopword is just sentence-initial casing.
	if run := capitalizedRun(fields); len(run) > 0 &&
		!(len(run) == 1 && stopwords[strings.ToLower(run[0])]) {
		return Subject{Name: strings.Join(run, " "), Kind: classify(text)}, true
	}

	first := strings.Trim(fields[0], ".,;:!?")
	if first == "" || stopwords[strings.ToLower(first)] || !alphabetic(first) {
		return Subject{}, false
	}
	return Subject{Name: first, Kind: classify(text)}, true
}

// quotedName returns the first single- or double-quoted span, if any.
func quotedName(text string) (string, bool) {
	for _, q := range []byte{'"', '\''} {
		start := strings.IndexByte(text, q)
		if start < 0 {
			continue
		}
		end := strings.IndexByte(text[start+1:], q)
		if end <= 0 {
			continue
		}
		name := strings.TrimSpace(text[start+1 : start+1+end])
		if name != "" {
			return name, true
		}
	}
	return "", false
}

// capitalizedRun returns the maximal leading run of capitalized words,
// e.g. ["Agent", "Zero"]. A single capitalized word only counts if the
// rest of the sentence is not also capitalized (title-case text carries no
// signal).
func capitalizedRun(fields []string) []string {
	var run []string
	for _, f := range fields {
		w := strings.Trim(f, ".,;:!?")
		if w == "" || !unicode.IsUpper(firstRune(w)) {
			break
		}
		run = append(run, w)
	}
	if len(run) == len(fields) && len(fields) > 2 {
		return nil
	}
	return run
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func alphabetic(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

// classify makes a coarse kind guess from the text.
func classify(text string) string {
	lower := strings.ToLower(text)
	for _, marker := range preferenceMarkers {
		if containsWord(lower, marker) {
			return "preference"
		}
	}
	return "concept"
}

func containsWord(text, word string) bool {
	for _, f := range strings.Fields(text) {
		if strings.Trim(f, ".,;:!?") == word {
			return true
		}
	}
	return false
}
