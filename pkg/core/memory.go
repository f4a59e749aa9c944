package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	charmlog "github.com/charmbracelet/log"

	"github.com/agentzero/graphmem-go/pkg/graph"
	"github.com/agentzero/graphmem-go/pkg/intelligence"
	"github.com/agentzero/graphmem-go/pkg/llm"
	openaiLLM "github.com/agentzero/graphmem-go/pkg/llm/openai"
	"github.com/agentzero/graphmem-go/pkg/query"
	"github.com/agentzero/graphmem-go/pkg/recordlog"
	mysqlLog "github.com/agentzero/graphmem-go/pkg/recordlog/mysql"
	postgresLog "github.com/agentzero/graphmem-go/pkg/recordlog/postgres"
	sqliteLog "github.com/agentzero/graphmem-go/pkg/recordlog/sqlite"
)

// Client is the graphmem client: the single owner of the record log and
// the graph index.
//
// All mutations (Remember, Connect, Learn, Compact) are serialized behind
// a single-writer lock; each record's effects hit the index in one critical
// section, so concurrent Recall calls always observe a consistent graph.
// Multiple agent sessions share one Client as concurrent callers.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	id, _ := client.Remember(ctx, "user prefers Python for backend work")
//	matches, _ := client.Recall(ctx, "Python backend", core.WithLimit(5))
type Client struct {
	// config contains the client configuration.
	config *Config

	// log is the append-only record log, the single source of truth.
	log recordlog.Log

	// index is the in-memory graph, always the fold of the log.
	index *graph.Index

	// engine ranks recall queries against the index.
	engine *query.Engine

	// extractor infers subject entities from free text.
	extractor intelligence.SubjectExtractor

	// importance scores learned lessons.
	importance *intelligence.ImportanceEvaluator

	// llm is the optional LLM provider behind extractor/importance.
	llm llm.Provider

	// node generates unique IDs for observations and relations.
	node *snowflake.Node

	// logger reports internal events (crash repair, compaction).
	logger *charmlog.Logger

	// mu is the single-writer lock over log and index.
	mu sync.RWMutex

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewClient creates a new graphmem client.
//
// The client opens the configured record log backend, replays it into a
// fresh graph index, and initializes the heuristic layer. If the log's
// trailing record was torn by a crash it is silently discarded and logged;
// this is expected recovery, not an error.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &clientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	logger := options.logger
	if logger == nil {
		logger = charmlog.NewWithOptions(os.Stderr, charmlog.Options{Prefix: "graphmem"})
	}

	logStore := options.log
	if logStore == nil {
		var err error
		logStore, err = openLog(&cfg.Log)
		if err != nil {
			return nil, storageError("NewClient", err)
		}
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewMemoryError("NewClient", err)
	}

	var provider llm.Provider
	if cfg.LLM != nil {
		provider, err = openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
			BaseURL: cfg.LLM.BaseURL,
		})
		if err != nil {
			_ = logStore.Close()
			return nil, NewMemoryError("NewClient", err)
		}
	}

	extractor := options.extractor
	if extractor == nil {
		if provider != nil {
			extractor = intelligence.NewLLMExtractor(provider)
		} else {
			extractor = intelligence.RuleExtractor{}
		}
	}

	c := &Client{
		config:     cfg,
		log:        logStore,
		index:      graph.NewIndex(),
		extractor:  extractor,
		importance: intelligence.NewImportanceEvaluator(provider),
		llm:        provider,
		node:       node,
		logger:     logger,
		now:        time.Now,
	}
	c.engine = query.NewEngine(query.Weights{
		Recency:         query.DefaultWeights().Recency,
		Importance:      query.DefaultWeights().Importance,
		RecencyHalflife: cfg.recencyHalflife(),
	})

	if err := c.replay(context.Background()); err != nil {
		_ = logStore.Close()
		return nil, err
	}

	if r, ok := logStore.(recordlog.Repairer); ok && r.Repaired() > 0 {
		// Expected crash recovery, never surfaced as a failure.
		c.logger.Warn("discarded torn trailing record on startup",
			"repaired", r.Repaired(), "backend", logStore.Name())
	}

	return c, nil
}

// openLog opens the configured record log backend.
func openLog(cfg *LogConfig) (recordlog.Log, error) {
	switch cfg.Backend {
	case "file":
		return recordlog.OpenFile(&recordlog.FileConfig{Path: cfg.Path})
	case "sqlite":
		return sqliteLog.NewClient(&sqliteLog.Config{
			DBPath:    cfg.Path,
			TableName: cfg.TableName,
		})
	case "postgres":
		return postgresLog.NewClient(&postgresLog.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			User:      cfg.User,
			Password:  cfg.Password,
			DBName:    cfg.DBName,
			TableName: cfg.TableName,
			SSLMode:   cfg.SSLMode,
		})
	case "mysql":
		return mysqlLog.NewClient(&mysqlLog.Config{
			Host:      cfg.Host,
			Port:      cfg.Port,
			User:      cfg.User,
			Password:  cfg.Password,
			DBName:    cfg.DBName,
			TableName: cfg.TableName,
		})
	default:
		return nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

// replay folds the whole log into the index.
func (c *Client) replay(ctx context.Context) error {
	err := c.log.ReadAll(ctx, func(rec *recordlog.Record) error {
		return c.index.Apply(rec)
	})
	if err != nil {
		return storageError("replay", err)
	}
	return nil
}

// Remember stores a free-text fact as an observation on its inferred
// subject entity and returns the subject's entity ID.
//
// The subject is the first quoted name or leading noun phrase; if none can
// be inferred the fact lands on a synthetic timestamp-scoped "note" entity.
//
// Example:
//
//	id, err := client.Remember(ctx, "user prefers Python over JavaScript")
//	// id == "user"
func (c *Client) Remember(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", inputError("Remember", "empty text")
	}

	subject, ok := c.extractor.Extract(ctx, text)
	if !ok {
		subject = intelligence.Subject{
			Name: fmt.Sprintf("note-%s", c.node.Generate()),
			Kind: "note",
		}
	}

	importance := c.importance.Evaluate(ctx, text, "")

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entityID, err := c.upsertEntityLocked(ctx, "Remember", subject.Name, subject.Kind, now)
	if err != nil {
		return "", err
	}
	if _, err := c.appendObservationLocked(ctx, "Remember", entityID, text, importance, "remember", now); err != nil {
		return "", err
	}

	c.maybeCompactLocked(ctx)
	return entityID, nil
}

// RememberAbout attaches one or more facts to an explicitly named entity,
// creating it if missing, and returns the entity ID.
func (c *Client) RememberAbout(ctx context.Context, name string, facts ...string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", inputError("RememberAbout", "empty entity name")
	}
	if len(facts) == 0 {
		return "", inputError("RememberAbout", "no facts")
	}
	for _, f := range facts {
		if strings.TrimSpace(f) == "" {
			return "", inputError("RememberAbout", "empty fact")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entityID, err := c.upsertEntityLocked(ctx, "RememberAbout", name, "", now)
	if err != nil {
		return "", err
	}
	for _, f := range facts {
		importance := c.importance.Evaluate(ctx, f, "")
		if _, err := c.appendObservationLocked(ctx, "RememberAbout", entityID, strings.TrimSpace(f), importance, "remember", now); err != nil {
			return "", err
		}
	}

	c.maybeCompactLocked(ctx)
	return entityID, nil
}

// Connect asserts a directed, typed relation between two entities, creating
// either entity if missing (kind "unknown"), and returns the relation ID.
//
// Repeating an assertion reinforces the edge's strength instead of
// duplicating it:
//
//	client.Connect(ctx, "Agent Zero", "MCP Memory", "uses")
//	client.Connect(ctx, "Agent Zero", "MCP Memory", "uses") // strength 2
func (c *Client) Connect(ctx context.Context, a, b, relationType string) (int64, error) {
	relationType = strings.TrimSpace(relationType)
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0, inputError("Connect", "empty entity name")
	}
	if relationType == "" {
		return 0, inputError("Connect", "empty relation type")
	}
	if graph.NormalizeID(a) == graph.NormalizeID(b) {
		return 0, inputError("Connect", "self-relation not allowed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	id, err := c.connectLocked(ctx, "Connect", a, b, relationType, now)
	if err != nil {
		return 0, err
	}

	c.maybeCompactLocked(ctx)
	return id, nil
}

// Learn stores an experience and its outcome as two linked observations:
// the experience on an inferred or synthetic "lesson" entity, the outcome
// on its own entity, joined by a "results_in" relation. Importance is
// scored from the text (outcomes with resolution markers such as "fixed"
// score higher) and returned observations weight ranking in Recall.
//
// Returns the experience observation's ID.
func (c *Client) Learn(ctx context.Context, experience, outcome string) (int64, error) {
	experience = strings.TrimSpace(experience)
	outcome = strings.TrimSpace(outcome)
	if experience == "" {
		return 0, inputError("Learn", "empty experience")
	}
	if outcome == "" {
		return 0, inputError("Learn", "empty outcome")
	}

	expSubject, ok := c.extractor.Extract(ctx, experience)
	if !ok {
		expSubject = intelligence.Subject{
			Name: fmt.Sprintf("lesson-%s", c.node.Generate()),
			Kind: "lesson",
		}
	}
	outSubject, ok := c.extractor.Extract(ctx, outcome)
	if !ok {
		outSubject = intelligence.Subject{
			Name: fmt.Sprintf("outcome-%s", c.node.Generate()),
			Kind: "outcome",
		}
	}

	importance := c.importance.Evaluate(ctx, experience, outcome)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expID, err := c.upsertEntityLocked(ctx, "Learn", expSubject.Name, expSubject.Kind, now)
	if err != nil {
		return 0, err
	}
	obsID, err := c.appendObservationLocked(ctx, "Learn", expID, experience, importance, "learn", now)
	if err != nil {
		return 0, err
	}

	outID, err := c.upsertEntityLocked(ctx, "Learn", outSubject.Name, outSubject.Kind, now)
	if err != nil {
		return 0, err
	}
	if _, err := c.appendObservationLocked(ctx, "Learn", outID, outcome, importance, "learn", now); err != nil {
		return 0, err
	}

	if expID != outID {
		if _, err := c.connectLocked(ctx, "Learn", expSubject.Name, outSubject.Name, "results_in", now); err != nil {
			return 0, err
		}
	}

	c.maybeCompactLocked(ctx)
	return obsID, nil
}

// Recall ranks the graph against the query and returns at most k matches,
// best first. It never mutates state and returns an empty slice, not an
// error, when nothing matches.
func (c *Client) Recall(ctx context.Context, queryText string, opts ...RecallOption) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, inputError("Recall", "empty query")
	}

	options := applyRecallOptions(opts)
	limit := options.Limit
	if limit == 0 {
		limit = c.config.Query.DefaultLimit
	}
	if limit == 0 {
		limit = query.DefaultLimit
	}
	if limit < 0 {
		return nil, inputError("Recall", "non-positive limit")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := c.engine.Recall(c.index, queryText, limit)

	if len(options.Kinds) > 0 {
		allowed := make(map[query.MatchKind]bool, len(options.Kinds))
		for _, k := range options.Kinds {
			allowed[k] = true
		}
		filtered := matches[:0]
		for _, m := range matches {
			if allowed[m.Kind] {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}

	if matches == nil {
		matches = []Match{}
	}
	return matches, nil
}

// OpenEntity returns one entity (resolved through aliases) with its full
// observation history and every edge touching it.
func (c *Client) OpenEntity(ctx context.Context, name string) (*EntityView, error) {
	if strings.TrimSpace(name) == "" {
		return nil, inputError("OpenEntity", "empty entity name")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.index.Resolve(name)
	if !ok {
		return nil, NewMemoryError("OpenEntity", ErrNotFound)
	}

	view := &EntityView{Entity: e.Clone()}
	for _, r := range c.index.RelationsFor(e.ID) {
		view.Relations = append(view.Relations, r.Clone())
	}
	return view, nil
}

// ReadGraph returns a full copy of the memory graph.
func (c *Client) ReadGraph(ctx context.Context) (*GraphSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &GraphSnapshot{}
	for _, e := range c.index.Entities() {
		snap.Entities = append(snap.Entities, e.Clone())
	}
	for _, r := range c.index.Relations() {
		snap.Relations = append(snap.Relations, r.Clone())
	}
	return snap, nil
}

// Stats reports the store's current size.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	records, err := c.log.Len(ctx)
	if err != nil {
		return nil, storageError("Stats", err)
	}

	return &Stats{
		Entities:     c.index.EntityCount(),
		Relations:    c.index.RelationCount(),
		Observations: c.index.ObservationCount(),
		Records:      records,
		Backend:      c.log.Name(),
	}, nil
}

// Compact rewrites the log to the minimal record sequence reproducing the
// current graph. Observable query results are identical before and after.
// A failed compaction leaves the original log untouched and is safely
// retryable.
func (c *Client) Compact(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compactLocked(ctx)
}

func (c *Client) compactLocked(ctx context.Context) error {
	recs := c.index.Records()
	if err := c.log.Replace(ctx, recs); err != nil {
		return storageError("Compact", err)
	}
	c.logger.Info("compacted record log", "records", len(recs), "backend", c.log.Name())
	return nil
}

// maybeCompactLocked runs auto-compaction opportunistically after a
// mutation, when the log has grown well past its compact form.
func (c *Client) maybeCompactLocked(ctx context.Context) {
	if !c.config.Compaction.Auto {
		return
	}
	threshold := c.config.Compaction.Threshold
	if threshold <= 0 {
		threshold = 1024
	}
	growth := c.config.Compaction.GrowthFactor
	if growth <= 1 {
		growth = 1.5
	}

	logged, err := c.log.Len(ctx)
	if err != nil {
		return
	}
	live := c.index.EntityCount() + c.index.RelationCount() + c.index.ObservationCount()
	if logged < threshold || float64(logged) < growth*float64(live) {
		return
	}

	if err := c.compactLocked(ctx); err != nil {
		// Auto-compaction is best effort; the next mutation retries.
		c.logger.Error("auto-compaction failed", "err", err)
	}
}

// upsertEntityLocked appends an EntityUpsert (preserving existing identity
// fields on repeat) and applies it. Returns the normalized entity ID.
func (c *Client) upsertEntityLocked(ctx context.Context, op, name, kind string, now time.Time) (string, error) {
	id := graph.NormalizeID(name)

	up := &recordlog.EntityUpsert{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, ok := c.index.Entity(id); ok {
		up.Name = existing.Name
		up.CreatedAt = existing.CreatedAt
		if kind == "" || kind == "unknown" {
			up.Kind = existing.Kind
		}
		up.Aliases = append([]string(nil), existing.Aliases...)
	} else if kind == "" {
		up.Kind = "unknown"
	}

	rec := &recordlog.Record{TS: now, Kind: recordlog.KindEntity, Entity: up}
	return id, c.appendAndApplyLocked(ctx, op, rec)
}

// appendObservationLocked appends an ObservationAppend and applies it.
func (c *Client) appendObservationLocked(ctx context.Context, op, entityID, text string, importance float64, source string, now time.Time) (int64, error) {
	obsID := c.node.Generate().Int64()
	rec := &recordlog.Record{
		TS:   now,
		Kind: recordlog.KindObservation,
		Observation: &recordlog.ObservationAppend{
			ID:         obsID,
			EntityID:   entityID,
			Text:       text,
			Importance: importance,
			Source:     source,
			CreatedAt:  now,
		},
	}
	return obsID, c.appendAndApplyLocked(ctx, op, rec)
}

// connectLocked upserts both endpoints and the relation, reinforcing
// strength on repeat assertion. Returns the relation's stable ID.
func (c *Client) connectLocked(ctx context.Context, op, a, b, relationType string, now time.Time) (int64, error) {
	srcID, err := c.upsertEntityLocked(ctx, op, a, "", now)
	if err != nil {
		return 0, err
	}
	tgtID, err := c.upsertEntityLocked(ctx, op, b, "", now)
	if err != nil {
		return 0, err
	}

	up := &recordlog.RelationUpsert{
		ID:        c.node.Generate().Int64(),
		SourceID:  srcID,
		TargetID:  tgtID,
		Type:      relationType,
		Strength:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	key := graph.RelationKey{SourceID: srcID, Type: relationType, TargetID: tgtID}
	if existing, ok := c.index.Relation(key); ok {
		up.ID = existing.ID
		up.Strength = existing.Strength + 1
		up.CreatedAt = existing.CreatedAt
	}

	rec := &recordlog.Record{TS: now, Kind: recordlog.KindRelation, Relation: up}
	if err := c.appendAndApplyLocked(ctx, op, rec); err != nil {
		return 0, err
	}
	return up.ID, nil
}

// appendAndApplyLocked is the single write path: durably append to the
// log, then fold into the index. An append that fails is never reflected
// in the index.
func (c *Client) appendAndApplyLocked(ctx context.Context, op string, rec *recordlog.Record) error {
	if _, err := c.log.Append(ctx, rec); err != nil {
		return storageError(op, err)
	}
	if err := c.index.Apply(rec); err != nil {
		return NewMemoryError(op, err)
	}
	return nil
}

// Close closes the record log and any LLM provider.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.llm != nil {
		err = c.llm.Close()
	}
	if cerr := c.log.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
