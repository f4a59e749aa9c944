package graph

import (
	"sort"

	"github.com/agentzero/graphmem-go/pkg/recordlog"
)

// Index is the in-memory reconstruction of the graph from the record log.
//
// Apply is the single mutation entry point, used identically by startup
// replay and by live mutation. All upserts are keyed by natural identity
// (entity ID, relation key, observation ID), never by sequence number, so
// applying the same record twice leaves the index unchanged beyond the
// first application.
//
// Index is not safe for concurrent use; the owning client serializes
// access (writers exclusively, readers behind a shared lock).
type Index struct {
	entities  map[string]*Entity
	relations map[RelationKey]*Relation

	// incoming is the reverse adjacency list: target entity ID to the
	// keys of edges pointing at it.
	incoming map[string][]RelationKey

	// aliases maps normalized alias names to entity IDs.
	aliases map[string]string

	// seenObs makes observation application idempotent under replay.
	seenObs map[int64]struct{}

	// obsOrder preserves the global append order of observations, which
	// compaction must reproduce.
	obsOrder []*Observation
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		entities:  make(map[string]*Entity),
		relations: make(map[RelationKey]*Relation),
		incoming:  make(map[string][]RelationKey),
		aliases:   make(map[string]string),
		seenObs:   make(map[int64]struct{}),
	}
}

// Apply folds one record into the index.
func (ix *Index) Apply(rec *recordlog.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	switch rec.Kind {
	case recordlog.KindEntity:
		ix.applyEntity(rec.Entity)
	case recordlog.KindObservation:
		ix.applyObservation(rec.Observation)
	case recordlog.KindRelation:
		ix.applyRelation(rec.Relation)
	}
	return nil
}

func (ix *Index) applyEntity(up *recordlog.EntityUpsert) {
	e, ok := ix.entities[up.ID]
	if !ok {
		e = &Entity{
			ID:        up.ID,
			Name:      up.Name,
			Kind:      up.Kind,
			CreatedAt: up.CreatedAt,
			UpdatedAt: up.UpdatedAt,
		}
		ix.entities[up.ID] = e
	} else {
		// A later upsert refines classification but never blanks it.
		if up.Kind != "" && up.Kind != "unknown" {
			e.Kind = up.Kind
		}
		if up.UpdatedAt.After(e.UpdatedAt) {
			e.UpdatedAt = up.UpdatedAt
		}
	}

	for _, alias := range up.Aliases {
		ix.addAlias(e, alias)
	}
}

func (ix *Index) addAlias(e *Entity, alias string) {
	norm := NormalizeID(alias)
	if norm == "" || norm == e.ID {
		return
	}
	if _, taken := ix.aliases[norm]; taken {
		return
	}
	ix.aliases[norm] = e.ID
	e.Aliases = append(e.Aliases, alias)
}

func (ix *Index) applyObservation(ap *recordlog.ObservationAppend) {
	if _, dup := ix.seenObs[ap.ID]; dup {
		return
	}
	ix.seenObs[ap.ID] = struct{}{}

	e, ok := ix.entities[ap.EntityID]
	if !ok {
		// Log order normally guarantees the entity upsert precedes its
		// observations; tolerate the gap the same way connect does.
		e = &Entity{
			ID:        ap.EntityID,
			Name:      ap.EntityID,
			Kind:      "unknown",
			CreatedAt: ap.CreatedAt,
			UpdatedAt: ap.CreatedAt,
		}
		ix.entities[ap.EntityID] = e
	}

	o := &Observation{
		ID:         ap.ID,
		EntityID:   ap.EntityID,
		Text:       ap.Text,
		Importance: ap.Importance,
		Source:     ap.Source,
		CreatedAt:  ap.CreatedAt,
	}
	e.Observations = append(e.Observations, o)
	if ap.CreatedAt.After(e.UpdatedAt) {
		e.UpdatedAt = ap.CreatedAt
	}
	ix.obsOrder = append(ix.obsOrder, o)
}

func (ix *Index) applyRelation(up *recordlog.RelationUpsert) {
	// Both endpoints must exist; absent ones are implicitly created with
	// kind "unknown".
	for _, id := range []string{up.SourceID, up.TargetID} {
		if _, ok := ix.entities[id]; !ok {
			ix.entities[id] = &Entity{
				ID:        id,
				Name:      id,
				Kind:      "unknown",
				CreatedAt: up.CreatedAt,
				UpdatedAt: up.CreatedAt,
			}
		}
	}

	key := RelationKey{SourceID: up.SourceID, Type: up.Type, TargetID: up.TargetID}
	r, ok := ix.relations[key]
	if !ok {
		r = &Relation{
			ID:        up.ID,
			SourceID:  up.SourceID,
			TargetID:  up.TargetID,
			Type:      up.Type,
			Strength:  up.Strength,
			CreatedAt: up.CreatedAt,
			UpdatedAt: up.UpdatedAt,
		}
		ix.relations[key] = r
		ix.incoming[up.TargetID] = append(ix.incoming[up.TargetID], key)
		return
	}

	// Strength is absolute in the record, so replaying the same
	// reinforcement twice converges instead of double-counting.
	if up.Strength > r.Strength {
		r.Strength = up.Strength
	}
	if up.UpdatedAt.After(r.UpdatedAt) {
		r.UpdatedAt = up.UpdatedAt
	}
}

// Entity looks up an entity by its normalized ID.
func (ix *Index) Entity(id string) (*Entity, bool) {
	e, ok := ix.entities[id]
	return e, ok
}

// Resolve maps a display name to an entity, following aliases.
func (ix *Index) Resolve(name string) (*Entity, bool) {
	id := NormalizeID(name)
	if e, ok := ix.entities[id]; ok {
		return e, true
	}
	if target, ok := ix.aliases[id]; ok {
		return ix.entities[target], true
	}
	return nil, false
}

// Relation looks up an edge by its natural key.
func (ix *Index) Relation(key RelationKey) (*Relation, bool) {
	r, ok := ix.relations[key]
	return r, ok
}

// Entities returns all entities sorted by ID.
func (ix *Index) Entities() []*Entity {
	out := make([]*Entity, 0, len(ix.entities))
	for _, e := range ix.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Relations returns all edges sorted by key.
func (ix *Index) Relations() []*Relation {
	out := make([]*Relation, 0, len(ix.relations))
	for _, r := range ix.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.TargetID < b.TargetID
	})
	return out
}

// RelationsFor returns all edges touching the entity: outgoing first, then
// incoming, each group sorted by key.
func (ix *Index) RelationsFor(id string) []*Relation {
	var out []*Relation
	for _, r := range ix.Relations() {
		if r.SourceID == id {
			out = append(out, r)
		}
	}
	for _, key := range ix.sortedIncoming(id) {
		if r, ok := ix.relations[key]; ok && r.SourceID != id {
			out = append(out, r)
		}
	}
	return out
}

func (ix *Index) sortedIncoming(id string) []RelationKey {
	keys := append([]RelationKey(nil), ix.incoming[id]...)
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.TargetID < b.TargetID
	})
	return keys
}

// Observations returns every observation in global append order.
func (ix *Index) Observations() []*Observation {
	return ix.obsOrder
}

// EntityCount reports the number of entities.
func (ix *Index) EntityCount() int { return len(ix.entities) }

// RelationCount reports the number of edges.
func (ix *Index) RelationCount() int { return len(ix.relations) }

// ObservationCount reports the number of observations.
func (ix *Index) ObservationCount() int { return len(ix.obsOrder) }

// Records emits the minimal record sequence that reproduces the index: one
// EntityUpsert per entity, one RelationUpsert per relation, and the full
// observation history in original append order. This is the compactor's
// source. Sequence numbers are assigned from 1; the replacing log backend
// may renumber.
func (ix *Index) Records() []*recordlog.Record {
	recs := make([]*recordlog.Record, 0, len(ix.entities)+len(ix.relations)+len(ix.obsOrder))

	for _, e := range ix.Entities() {
		recs = append(recs, &recordlog.Record{
			TS:   e.UpdatedAt,
			Kind: recordlog.KindEntity,
			Entity: &recordlog.EntityUpsert{
				ID:        e.ID,
				Name:      e.Name,
				Kind:      e.Kind,
				Aliases:   append([]string(nil), e.Aliases...),
				CreatedAt: e.CreatedAt,
				UpdatedAt: e.UpdatedAt,
			},
		})
	}

	for _, r := range ix.Relations() {
		recs = append(recs, &recordlog.Record{
			TS:   r.UpdatedAt,
			Kind: recordlog.KindRelation,
			Relation: &recordlog.RelationUpsert{
				ID:        r.ID,
				SourceID:  r.SourceID,
				TargetID:  r.TargetID,
				Type:      r.Type,
				Strength:  r.Strength,
				CreatedAt: r.CreatedAt,
				UpdatedAt: r.UpdatedAt,
			},
		})
	}

	for _, o := range ix.obsOrder {
		recs = append(recs, &recordlog.Record{
			TS:   o.CreatedAt,
			Kind: recordlog.KindObservation,
			Observation: &recordlog.ObservationAppend{
				ID:         o.ID,
				EntityID:   o.EntityID,
				Text:       o.Text,
				Importance: o.Importance,
				Source:     o.Source,
				CreatedAt:  o.CreatedAt,
			},
		})
	}

	for i, rec := range recs {
		rec.Seq = int64(i + 1)
	}
	return recs
}

// Equal reports whether two indexes hold identical graphs. Used by replay
// and compaction tests.
func (ix *Index) Equal(other *Index) bool {
	if len(ix.entities) != len(other.entities) ||
		len(ix.relations) != len(other.relations) ||
		len(ix.obsOrder) != len(other.obsOrder) {
		return false
	}

	for id, a := range ix.entities {
		b, ok := other.entities[id]
		if !ok || !entityEqual(a, b) {
			return false
		}
	}
	for key, a := range ix.relations {
		b, ok := other.relations[key]
		if !ok || !relationEqual(a, b) {
			return false
		}
	}
	for i, a := range ix.obsOrder {
		if !observationEqual(a, other.obsOrder[i]) {
			return false
		}
	}
	return true
}

func relationEqual(a, b *Relation) bool {
	return a.ID == b.ID && a.SourceID == b.SourceID && a.TargetID == b.TargetID &&
		a.Type == b.Type && a.Strength == b.Strength &&
		a.CreatedAt.Equal(b.CreatedAt) && a.UpdatedAt.Equal(b.UpdatedAt)
}

func observationEqual(a, b *Observation) bool {
	return a.ID == b.ID && a.EntityID == b.EntityID && a.Text == b.Text &&
		a.Importance == b.Importance && a.Source == b.Source &&
		a.CreatedAt.Equal(b.CreatedAt)
}

func entityEqual(a, b *Entity) bool {
	if a.ID != b.ID || a.Name != b.Name || a.Kind != b.Kind ||
		!a.CreatedAt.Equal(b.CreatedAt) || !a.UpdatedAt.Equal(b.UpdatedAt) ||
		len(a.Aliases) != len(b.Aliases) || len(a.Observations) != len(b.Observations) {
		return false
	}
	for i := range a.Aliases {
		if a.Aliases[i] != b.Aliases[i] {
			return false
		}
	}
	for i := range a.Observations {
		if !observationEqual(a.Observations[i], b.Observations[i]) {
			return false
		}
	}
	return true
}
