package core

import (
	"github.com/agentzero/graphmem-go/pkg/graph"
	"github.com/agentzero/graphmem-go/pkg/query"
)

// Match is one ranked recall result. Alias of query.Match so callers only
// need the core package for the common path.
type Match = query.Match

// EntityView is an entity together with every edge touching it, as
// returned by OpenEntity. All contained objects are reader-safe copies.
type EntityView struct {
	// Entity is the entity with its full observation history.
	Entity *graph.Entity

	// Relations are all edges touching the entity, outgoing first.
	Relations []*graph.Relation
}

// GraphSnapshot is a full copy of the memory graph, as returned by
// ReadGraph. Entities and relations are sorted by ID and key.
type GraphSnapshot struct {
	// Entities holds every entity with its observations.
	Entities []*graph.Entity

	// Relations holds every edge.
	Relations []*graph.Relation
}

// Stats summarizes the store's current size.
type Stats struct {
	// Entities is the number of entities in the graph.
	Entities int `json:"entities"`

	// Relations is the number of edges in the graph.
	Relations int `json:"relations"`

	// Observations is the number of observations in the graph.
	Observations int `json:"observations"`

	// Records is the number of records in the log; exceeds the sum of
	// live objects when the log carries superseded upserts.
	Records int `json:"records"`

	// Backend names the record log backend.
	Backend string `json:"backend"`
}
