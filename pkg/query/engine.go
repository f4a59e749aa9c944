// Package query implements recall: ranking entities, observations, and
// relations against a query string using lexical relevance, recency, and
// importance.
package query

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/agentzero/graphmem-go/pkg/graph"
)

// MatchKind names what a match points at.
type MatchKind string

const (
	// MatchEntity is a match on an entity's name, aliases, or kind.
	MatchEntity MatchKind = "entity"

	// MatchObservation is a match on an observation's text.
	MatchObservation MatchKind = "observation"

	// MatchRelation is a match on an edge's endpoints or type.
	MatchRelation MatchKind = "relation"
)

// Match is one ranked recall result.
type Match struct {
	// Kind names the matched object variant.
	Kind MatchKind

	// EntityID anchors the match: the entity itself, the observation's
	// owner, or the relation's source.
	EntityID string

	// Score is the combined relevance score. Higher is better.
	Score float64

	// Summary is a short rendered description of the match.
	Summary string

	// Timestamp is the matched object's most recent time, used for
	// tie-breaking and display.
	Timestamp time.Time

	// Entity is set for entity matches (a reader-safe copy).
	Entity *graph.Entity

	// Observation is set for observation matches (a copy).
	Observation *graph.Observation

	// Relation is set for relation matches (a copy).
	Relation *graph.Relation
}

// Weights tunes how the three ranking signals combine. Lexical overlap
// always contributes directly; recency and importance are bonuses.
type Weights struct {
	// Recency scales the recency bonus.
	Recency float64

	// Importance scales the importance/strength bonus.
	Importance float64

	// RecencyHalflife is the age at which the recency bonus halves.
	RecencyHalflife time.Duration
}

// DefaultWeights are sensible defaults: relevance dominates, recency and
// importance break the field apart among similar matches.
func DefaultWeights() Weights {
	return Weights{
		Recency:         0.5,
		Importance:      0.5,
		RecencyHalflife: 7 * 24 * time.Hour,
	}
}

// DefaultLimit is the result bound when the caller does not pass one.
const DefaultLimit = 10

// Engine ranks graph objects against queries. It only ever reads the
// index; the caller is responsible for holding a read lock for the
// duration of a Recall call.
type Engine struct {
	weights Weights

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewEngine creates a query engine with the given weights.
func NewEngine(w Weights) *Engine {
	if w.RecencyHalflife <= 0 {
		w.RecencyHalflife = DefaultWeights().RecencyHalflife
	}
	return &Engine{weights: w, now: time.Now}
}

// Recall ranks the index against the query and returns at most k matches,
// best first. The caller validates that query is non-empty and k > 0; an
// empty result set is returned as an empty slice, never an error.
func (e *Engine) Recall(ix *graph.Index, query string, k int) []Match {
	terms := Tokenize(query)
	if len(terms) == 0 || k <= 0 {
		return nil
	}

	now := e.now()
	var matches []Match

	for _, ent := range ix.Entities() {
		if m, ok := e.scoreEntity(ent, terms, now); ok {
			matches = append(matches, m)
		}
		for _, obs := range ent.Observations {
			if m, ok := e.scoreObservation(ent, obs, terms, now); ok {
				matches = append(matches, m)
			}
		}
	}

	for _, rel := range ix.Relations() {
		if m, ok := e.scoreRelation(ix, rel, terms, now); ok {
			matches = append(matches, m)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.EntityID < b.EntityID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Tokenize splits a string into normalized terms: case-folded, punctuation
// stripped, empties dropped.
func Tokenize(s string) []string {
	f := func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}
	return strings.FieldsFunc(strings.ToLower(s), f)
}

// lexicalScore is the count of distinct query terms found in the text
// tokens, normalized by a log-scale length penalty so very long texts do
// not win on sheer surface area. Monotonic in overlapping-term count.
func lexicalScore(terms, textTokens []string) float64 {
	if len(textTokens) == 0 {
		return 0
	}
	present := make(map[string]bool, len(textTokens))
	for _, t := range textTokens {
		present[t] = true
	}
	overlap := 0
	for _, t := range dedupe(terms) {
		if present[t] {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	return float64(overlap) / (1 + math.Log(1+float64(len(textTokens))))
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// recencyBonus decays exponentially with age, halving every halflife.
func (e *Engine) recencyBonus(ts time.Time, now time.Time) float64 {
	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	return math.Exp2(-age.Hours() / e.weights.RecencyHalflife.Hours())
}

func (e *Engine) scoreEntity(ent *graph.Entity, terms []string, now time.Time) (Match, bool) {
	tokens := Tokenize(ent.Name)
	for _, alias := range ent.Aliases {
		tokens = append(tokens, Tokenize(alias)...)
	}
	tokens = append(tokens, Tokenize(ent.Kind)...)

	lex := lexicalScore(terms, tokens)
	if lex == 0 {
		return Match{}, false
	}

	score := lex + e.weights.Recency*e.recencyBonus(ent.UpdatedAt, now)
	return Match{
		Kind:      MatchEntity,
		EntityID:  ent.ID,
		Score:     score,
		Summary:   entitySummary(ent),
		Timestamp: ent.UpdatedAt,
		Entity:    ent.Clone(),
	}, true
}

func (e *Engine) scoreObservation(ent *graph.Entity, obs *graph.Observation, terms []string, now time.Time) (Match, bool) {
	lex := lexicalScore(terms, Tokenize(obs.Text))
	if lex == 0 {
		return Match{}, false
	}

	// Stored importance is on a 0-10 scale.
	importance := obs.Importance / 10.0
	score := lex +
		e.weights.Recency*e.recencyBonus(obs.CreatedAt, now) +
		e.weights.Importance*importance

	oc := *obs
	return Match{
		Kind:        MatchObservation,
		EntityID:    obs.EntityID,
		Score:       score,
		Summary:     observationSummary(ent, obs),
		Timestamp:   obs.CreatedAt,
		Observation: &oc,
	}, true
}

func (e *Engine) scoreRelation(ix *graph.Index, rel *graph.Relation, terms []string, now time.Time) (Match, bool) {
	tokens := Tokenize(rel.Type)
	if src, ok := ix.Entity(rel.SourceID); ok {
		tokens = append(tokens, Tokenize(src.Name)...)
	}
	if tgt, ok := ix.Entity(rel.TargetID); ok {
		tokens = append(tokens, Tokenize(tgt.Name)...)
	}

	lex := lexicalScore(terms, tokens)
	if lex == 0 {
		return Match{}, false
	}

	// Strength saturates: the second assertion matters more than the
	// tenth.
	strength := 1 - 1/math.Max(rel.Strength, 1)
	score := lex +
		e.weights.Recency*e.recencyBonus(rel.UpdatedAt, now) +
		e.weights.Importance*strength

	return Match{
		Kind:      MatchRelation,
		EntityID:  rel.SourceID,
		Score:     score,
		Summary:   relationSummary(ix, rel),
		Timestamp: rel.UpdatedAt,
		Relation:  rel.Clone(),
	}, true
}

func entitySummary(ent *graph.Entity) string {
	return fmt.Sprintf("%s (%s): %d observations", ent.Name, ent.Kind, len(ent.Observations))
}

func observationSummary(ent *graph.Entity, obs *graph.Observation) string {
	name := obs.EntityID
	if ent != nil {
		name = ent.Name
	}
	text := obs.Text
	if len(text) > 120 {
		text = text[:117] + "..."
	}
	return fmt.Sprintf("%s: %q", name, text)
}

func relationSummary(ix *graph.Index, rel *graph.Relation) string {
	src, tgt := rel.SourceID, rel.TargetID
	if e, ok := ix.Entity(rel.SourceID); ok {
		src = e.Name
	}
	if e, ok := ix.Entity(rel.TargetID); ok {
		tgt = e.Name
	}
	return fmt.Sprintf("%s -[%s]-> %s (strength %.0f)", src, rel.Type, tgt, rel.Strength)
}
