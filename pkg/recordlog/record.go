// Package recordlog provides the append-only change log that backs the
// memory graph.
//
// The log is the single source of truth: the in-memory graph index is always
// the deterministic fold of all records in sequence order. Each record is one
// self-describing unit serialized as a single JSON object, so a reader can
// resynchronize after a partial write.
package recordlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the payload type carried by a record.
type Kind string

const (
	// KindEntity marks a record carrying an EntityUpsert payload.
	KindEntity Kind = "entity"

	// KindObservation marks a record carrying an ObservationAppend payload.
	KindObservation Kind = "observation"

	// KindRelation marks a record carrying a RelationUpsert payload.
	KindRelation Kind = "relation"
)

// EntityUpsert creates or updates an entity.
//
// Upserts are keyed by the case-normalized entity ID, never by sequence
// number, so replaying the same record twice leaves the graph unchanged.
type EntityUpsert struct {
	// ID is the unique, case-normalized entity identifier.
	ID string `json:"id"`

	// Name is the display name as first seen (original casing).
	Name string `json:"name"`

	// Kind is a free-form classification (e.g. "project", "preference").
	Kind string `json:"kind"`

	// Aliases are alternate names that resolve to this entity.
	Aliases []string `json:"aliases,omitempty"`

	// CreatedAt is when the entity was first created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the entity was last touched.
	UpdatedAt time.Time `json:"updated_at"`
}

// ObservationAppend attaches one immutable timestamped fact to an entity.
type ObservationAppend struct {
	// ID is the unique observation identifier (snowflake).
	ID int64 `json:"id"`

	// EntityID is the case-normalized ID of the owning entity.
	EntityID string `json:"entity_id"`

	// Text is the fact itself.
	Text string `json:"text"`

	// Importance is the derived importance score in [0, 10].
	Importance float64 `json:"importance"`

	// Source names the operation that produced the observation
	// ("remember" or "learn").
	Source string `json:"source"`

	// CreatedAt is when the observation was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// RelationUpsert creates or updates a directed, typed edge between two
// entities.
//
// Upserts are keyed by (source_id, type, target_id). The Strength field is
// absolute, not a delta, so replaying the same record twice is idempotent.
type RelationUpsert struct {
	// ID is the unique relation identifier (snowflake), stable across
	// reinforcements of the same edge.
	ID int64 `json:"id"`

	// SourceID is the case-normalized ID of the source entity.
	SourceID string `json:"source_id"`

	// TargetID is the case-normalized ID of the target entity.
	TargetID string `json:"target_id"`

	// Type is the free-form relation type (e.g. "uses", "fixes").
	Type string `json:"type"`

	// Strength starts at 1.0 and grows on repeated assertion.
	Strength float64 `json:"strength"`

	// CreatedAt is when the edge was first asserted.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the edge was last reinforced.
	UpdatedAt time.Time `json:"updated_at"`
}

// Record is one durable unit of the log.
//
// Exactly one of Entity, Observation, or Relation is set, matching Kind.
// Seq is assigned by the log on append and is strictly increasing within
// one log generation.
type Record struct {
	// Seq is the record's sequence number within the log.
	Seq int64

	// TS is when the record was appended.
	TS time.Time

	// Kind names the payload variant.
	Kind Kind

	// Entity is the payload when Kind == KindEntity.
	Entity *EntityUpsert

	// Observation is the payload when Kind == KindObservation.
	Observation *ObservationAppend

	// Relation is the payload when Kind == KindRelation.
	Relation *RelationUpsert
}

// envelope is the persisted JSON shape: {seq, ts, kind, payload}.
type envelope struct {
	Seq     int64           `json:"seq"`
	TS      time.Time       `json:"ts"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks that the record carries exactly the payload its Kind names.
func (r *Record) Validate() error {
	switch r.Kind {
	case KindEntity:
		if r.Entity == nil || r.Observation != nil || r.Relation != nil {
			return fmt.Errorf("record %d: kind %q payload mismatch", r.Seq, r.Kind)
		}
		if r.Entity.ID == "" {
			return fmt.Errorf("record %d: entity upsert with empty id", r.Seq)
		}
	case KindObservation:
		if r.Observation == nil || r.Entity != nil || r.Relation != nil {
			return fmt.Errorf("record %d: kind %q payload mismatch", r.Seq, r.Kind)
		}
		if r.Observation.EntityID == "" {
			return fmt.Errorf("record %d: observation with empty entity id", r.Seq)
		}
	case KindRelation:
		if r.Relation == nil || r.Entity != nil || r.Observation != nil {
			return fmt.Errorf("record %d: kind %q payload mismatch", r.Seq, r.Kind)
		}
		if r.Relation.SourceID == "" || r.Relation.TargetID == "" || r.Relation.Type == "" {
			return fmt.Errorf("record %d: relation with empty endpoint or type", r.Seq)
		}
	default:
		return fmt.Errorf("record %d: unknown kind %q", r.Seq, r.Kind)
	}
	return nil
}

// Marshal serializes a record as one JSON object without a trailing newline.
func Marshal(r *Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var payload any
	switch r.Kind {
	case KindEntity:
		payload = r.Entity
	case KindObservation:
		payload = r.Observation
	case KindRelation:
		payload = r.Relation
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return json.Marshal(&envelope{
		Seq:     r.Seq,
		TS:      r.TS,
		Kind:    r.Kind,
		Payload: raw,
	})
}

// Unmarshal parses one serialized record unit.
func Unmarshal(data []byte) (*Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	rec := &Record{
		Seq:  env.Seq,
		TS:   env.TS,
		Kind: env.Kind,
	}

	switch env.Kind {
	case KindEntity:
		rec.Entity = &EntityUpsert{}
		if err := json.Unmarshal(env.Payload, rec.Entity); err != nil {
			return nil, fmt.Errorf("unmarshal entity payload: %w", err)
		}
	case KindObservation:
		rec.Observation = &ObservationAppend{}
		if err := json.Unmarshal(env.Payload, rec.Observation); err != nil {
			return nil, fmt.Errorf("unmarshal observation payload: %w", err)
		}
	case KindRelation:
		rec.Relation = &RelationUpsert{}
		if err := json.Unmarshal(env.Payload, rec.Relation); err != nil {
			return nil, fmt.Errorf("unmarshal relation payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("unmarshal record: unknown kind %q", env.Kind)
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
