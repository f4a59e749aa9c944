// Package graph provides the in-memory graph index: entities, their
// observation histories, and typed relations, reconstructed by folding the
// record log.
package graph

import (
	"strings"
	"time"
)

// Entity is a named concept node in the memory graph.
type Entity struct {
	// ID is the unique, case-normalized identifier.
	ID string

	// Name is the display name as first seen (original casing).
	Name string

	// Kind is a free-form classification (e.g. "project", "preference").
	Kind string

	// Aliases are alternate names that resolve to this entity.
	Aliases []string

	// CreatedAt is when the entity was first created.
	CreatedAt time.Time

	// UpdatedAt is when the entity was last touched.
	UpdatedAt time.Time

	// Observations is the ordered sequence of facts attached to the
	// entity, oldest first.
	Observations []*Observation
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (e *Entity) Clone() *Entity {
	cp := *e
	cp.Aliases = append([]string(nil), e.Aliases...)
	cp.Observations = make([]*Observation, len(e.Observations))
	for i, o := range e.Observations {
		oc := *o
		cp.Observations[i] = &oc
	}
	return &cp
}

// Observation is an immutable timestamped fact attached to an entity.
type Observation struct {
	// ID is the unique observation identifier.
	ID int64

	// EntityID is the owning entity's case-normalized ID.
	EntityID string

	// Text is the fact itself.
	Text string

	// Importance is the derived importance score in [0, 10].
	Importance float64

	// Source names the operation that produced the observation.
	Source string

	// CreatedAt is when the observation was recorded.
	CreatedAt time.Time
}

// RelationKey is the natural identity of an edge. Repeat assertions of the
// same key reinforce the edge instead of duplicating it.
type RelationKey struct {
	SourceID string
	Type     string
	TargetID string
}

// Relation is a directed, typed edge between two entities.
type Relation struct {
	// ID is the unique relation identifier, stable across reinforcements.
	ID int64

	// SourceID is the source entity's case-normalized ID.
	SourceID string

	// TargetID is the target entity's case-normalized ID.
	TargetID string

	// Type is the free-form relation type (e.g. "uses", "fixes").
	Type string

	// Strength starts at 1.0 and grows on repeated assertion.
	Strength float64

	// CreatedAt is when the edge was first asserted.
	CreatedAt time.Time

	// UpdatedAt is when the edge was last reinforced.
	UpdatedAt time.Time
}

// Key returns the relation's natural identity.
func (r *Relation) Key() RelationKey {
	return RelationKey{SourceID: r.SourceID, Type: r.Type, TargetID: r.TargetID}
}

// Clone returns a copy safe to hand to concurrent readers.
func (r *Relation) Clone() *Relation {
	cp := *r
	return &cp
}

// NormalizeID converts a display name into the canonical entity ID:
// lower-cased, trimmed, inner whitespace collapsed to single spaces.
func NormalizeID(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
