package core_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentzero/graphmem-go/pkg/core"
	"github.com/agentzero/graphmem-go/pkg/query"
)

// newTestClient creates a file-backed client in a temp dir and returns it
// together with the log path so tests can reopen or corrupt the file.
func newTestClient(t *testing.T, mutate ...func(*core.Config)) (*core.Client, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "memory.jsonl")
	cfg := testConfig(path)
	for _, m := range mutate {
		m(cfg)
	}

	client, err := core.NewClient(cfg, core.WithLogger(charmlog.New(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, path
}

func testConfig(path string) *core.Config {
	return &core.Config{
		Log: core.LogConfig{
			Backend: "file",
			Path:    path,
		},
	}
}

func reopen(t *testing.T, path string) *core.Client {
	t.Helper()
	client, err := core.NewClient(testConfig(path), core.WithLogger(charmlog.New(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_RememberAndRecall(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.Remember(ctx, "user prefers Python over JavaScript for backend work")
	require.NoError(t, err)
	assert.Equal(t, "user", id)

	_, err = client.Remember(ctx, "the deploy pipeline lives in the infra repository")
	require.NoError(t, err)

	matches, err := client.Recall(ctx, "Python backend preference")
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	top := matches[0]
	assert.Equal(t, query.MatchObservation, top.Kind)
	assert.Equal(t, "user", top.EntityID)
	assert.Contains(t, top.Observation.Text, "Python")
}

func TestClient_Remember_SyntheticSubject(t *testing.T) {
	client, _ := newTestClient(t)

	id, err := client.Remember(context.Background(), "?!?!")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "note-"),
		"unextractable text should land on a synthetic note entity, got %q", id)
}

func TestClient_Connect_Reinforces(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	first, err := client.Connect(ctx, "Agent Zero", "MCP Memory", "uses")
	require.NoError(t, err)
	second, err := client.Connect(ctx, "Agent Zero", "MCP Memory", "uses")
	require.NoError(t, err)

	assert.Equal(t, first, second, "reinforcing must keep the relation ID stable")

	snap, err := client.ReadGraph(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Relations, 1)
	rel := snap.Relations[0]
	assert.Equal(t, "agent zero", rel.SourceID)
	assert.Equal(t, "mcp memory", rel.TargetID)
	assert.Equal(t, "uses", rel.Type)
	assert.Equal(t, 2.0, rel.Strength)
}

func TestClient_InputValidation(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"remember empty", func() error {
			_, err := client.Remember(ctx, "   ")
			return err
		}},
		{"remember about without facts", func() error {
			_, err := client.RememberAbout(ctx, "Agent Zero")
			return err
		}},
		{"remember about empty fact", func() error {
			_, err := client.RememberAbout(ctx, "Agent Zero", "uses Go", " ")
			return err
		}},
		{"connect empty endpoint", func() error {
			_, err := client.Connect(ctx, "", "Redis", "uses")
			return err
		}},
		{"connect empty type", func() error {
			_, err := client.Connect(ctx, "Agent Zero", "Redis", "")
			return err
		}},
		{"connect self relation", func() error {
			_, err := client.Connect(ctx, "Redis", "  redis ", "uses")
			return err
		}},
		{"learn empty experience", func() error {
			_, err := client.Learn(ctx, "", "fixed")
			return err
		}},
		{"learn empty outcome", func() error {
			_, err := client.Learn(ctx, "restarting helps", "")
			return err
		}},
		{"recall empty query", func() error {
			_, err := client.Recall(ctx, "")
			return err
		}},
		{"recall negative limit", func() error {
			_, err := client.Recall(ctx, "anything", core.WithLimit(-1))
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.call(), core.ErrInvalidInput)
		})
	}
}

func TestClient_Learn_BoostsResolvedLessons(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	plainID, err := client.Remember(ctx, "weather was mild this morning")
	require.NoError(t, err)

	_, err = client.Learn(ctx, "restarting the indexer clears stuck queues", "fixed in 10 minutes")
	require.NoError(t, err)

	plain, err := client.OpenEntity(ctx, plainID)
	require.NoError(t, err)
	require.NotEmpty(t, plain.Entity.Observations)

	lesson, err := client.OpenEntity(ctx, "restarting")
	require.NoError(t, err)
	require.NotEmpty(t, lesson.Entity.Observations)

	assert.Greater(t,
		lesson.Entity.Observations[0].Importance,
		plain.Entity.Observations[0].Importance,
		"a lesson with a confirmed resolution outranks an unremarkable fact")

	// Experience and outcome end up linked.
	require.Len(t, lesson.Relations, 1)
	assert.Equal(t, "results_in", lesson.Relations[0].Type)
}

func TestClient_PersistenceAcrossReopen(t *testing.T) {
	client, path := newTestClient(t)
	ctx := context.Background()

	_, err := client.Remember(ctx, "user prefers Python over JavaScript")
	require.NoError(t, err)
	_, err = client.Connect(ctx, "Agent Zero", "MCP Memory", "uses")
	require.NoError(t, err)
	before, err := client.Stats(ctx)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	client2 := reopen(t, path)
	after, err := client2.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	matches, err := client2.Recall(ctx, "Python")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "user", matches[0].EntityID)
}

func TestClient_TornTailRepairedOnReopen(t *testing.T) {
	client, path := newTestClient(t)
	ctx := context.Background()

	_, err := client.Remember(ctx, "user prefers Python over JavaScript")
	require.NoError(t, err)
	before, err := client.Stats(ctx)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	// A crash mid-append leaves a torn record at the tail.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":99,"ts":"2026-01-02T15:04:05Z","kind":"observation","payl`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	client2 := reopen(t, path)
	after, err := client2.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "torn record is discarded, intact prefix survives")

	matches, err := client2.Recall(ctx, "Python")
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

// matchKey is the time-independent identity of a recall result; scores
// carry a recency term so they drift between calls.
type matchKey struct {
	Kind     query.MatchKind
	EntityID string
	Summary  string
}

func matchKeys(matches []core.Match) []matchKey {
	out := make([]matchKey, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchKey{Kind: m.Kind, EntityID: m.EntityID, Summary: m.Summary})
	}
	return out
}

func TestClient_CompactionPreservesRecall(t *testing.T) {
	client, path := newTestClient(t)
	ctx := context.Background()

	_, err := client.Remember(ctx, "user prefers Python over JavaScript for backend work")
	require.NoError(t, err)
	_, err = client.Connect(ctx, "Agent Zero", "MCP Memory", "uses")
	require.NoError(t, err)
	_, err = client.Connect(ctx, "Agent Zero", "MCP Memory", "uses")
	require.NoError(t, err)

	statsBefore, err := client.Stats(ctx)
	require.NoError(t, err)
	recallBefore, err := client.Recall(ctx, "Agent Zero Python")
	require.NoError(t, err)
	require.NotEmpty(t, recallBefore)

	require.NoError(t, client.Compact(ctx))

	statsAfter, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Less(t, statsAfter.Records, statsBefore.Records,
		"superseded upserts are dropped")
	assert.Equal(t, statsBefore.Entities, statsAfter.Entities)
	assert.Equal(t, statsBefore.Relations, statsAfter.Relations)
	assert.Equal(t, statsBefore.Observations, statsAfter.Observations)

	recallAfter, err := client.Recall(ctx, "Agent Zero Python")
	require.NoError(t, err)
	assert.Equal(t, matchKeys(recallBefore), matchKeys(recallAfter))

	// The compacted log replays to the same graph.
	require.NoError(t, client.Close())
	client2 := reopen(t, path)
	recallReplayed, err := client2.Recall(ctx, "Agent Zero Python")
	require.NoError(t, err)
	assert.Equal(t, matchKeys(recallBefore), matchKeys(recallReplayed))

	snap, err := client2.ReadGraph(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Relations, 1)
	assert.Equal(t, 2.0, snap.Relations[0].Strength)
}

func TestClient_AutoCompaction(t *testing.T) {
	client, _ := newTestClient(t, func(cfg *core.Config) {
		cfg.Compaction = core.CompactionConfig{
			Auto:         true,
			Threshold:    4,
			GrowthFactor: 1.1,
		}
	})
	ctx := context.Background()

	// Each reinforcement appends three records but keeps the live graph at
	// two entities and one relation.
	for i := 0; i < 10; i++ {
		_, err := client.Connect(ctx, "Agent Zero", "MCP Memory", "uses")
		require.NoError(t, err)
	}

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 1, stats.Relations)
	assert.Less(t, stats.Records, 10, "auto-compaction keeps the log near its compact form")

	snap, err := client.ReadGraph(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Relations, 1)
	assert.Equal(t, 10.0, snap.Relations[0].Strength)
}

func TestClient_RememberAboutAndOpenEntity(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	id, err := client.RememberAbout(ctx, "Agent Zero", "written in Python", "stores memory as a graph")
	require.NoError(t, err)
	assert.Equal(t, "agent zero", id)

	_, err = client.Connect(ctx, "Agent Zero", "Redis", "caches_with")
	require.NoError(t, err)

	view, err := client.OpenEntity(ctx, "Agent Zero")
	require.NoError(t, err)
	assert.Equal(t, "Agent Zero", view.Entity.Name)
	assert.Len(t, view.Entity.Observations, 2)
	require.Len(t, view.Relations, 1)
	assert.Equal(t, "caches_with", view.Relations[0].Type)

	_, err = client.OpenEntity(ctx, "nobody ever mentioned this")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestClient_ReadGraphAndStats(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.RememberAbout(ctx, "pipeline", "deploys on merge", "runs tests first")
	require.NoError(t, err)
	_, err = client.Connect(ctx, "pipeline", "staging", "deploys_to")
	require.NoError(t, err)

	snap, err := client.ReadGraph(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Entities, 2)
	assert.Len(t, snap.Relations, 1)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 1, stats.Relations)
	assert.Equal(t, 2, stats.Observations)
	assert.Equal(t, "file", stats.Backend)
	assert.GreaterOrEqual(t, stats.Records, 5)
}

func TestClient_RecallKindsFilter(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.RememberAbout(ctx, "deploy", "deploy runs nightly")
	require.NoError(t, err)
	_, err = client.Connect(ctx, "deploy", "staging", "targets")
	require.NoError(t, err)

	matches, err := client.Recall(ctx, "deploy", core.WithKinds(query.MatchObservation))
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.Equal(t, query.MatchObservation, m.Kind)
	}
}

func TestClient_RecallLimit(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.RememberAbout(ctx, "pipeline",
		"deploy step builds images",
		"deploy step pushes to registry",
		"deploy step rolls out to staging",
		"deploy step smoke-tests the release",
		"deploy step promotes to production",
	)
	require.NoError(t, err)

	matches, err := client.Recall(ctx, "deploy step", core.WithLimit(2))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestClient_RecallNoMatches(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, err := client.Remember(ctx, "user prefers Python")
	require.NoError(t, err)

	matches, err := client.Recall(ctx, "zebra quantum harmonica")
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}
