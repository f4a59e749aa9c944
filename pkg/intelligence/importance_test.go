package intelligence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentzero/graphmem-go/pkg/intelligence"
	"github.com/agentzero/graphmem-go/pkg/llm"
)

func TestImportanceEvaluator_ResolutionBoost(t *testing.T) {
	e := intelligence.NewImportanceEvaluator(nil)
	ctx := context.Background()

	plain := e.Evaluate(ctx, "debugging is faster starting with error logs", "tried it once")
	boosted := e.Evaluate(ctx, "debugging is faster starting with error logs", "fixed in 10 minutes")

	assert.Greater(t, boosted, plain,
		"resolution marker in outcome must boost importance")
}

func TestImportanceEvaluator_ScoreStaysInRange(t *testing.T) {
	e := intelligence.NewImportanceEvaluator(nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		experience string
		outcome    string
	}{
		{"plain fact", "the sky is blue", ""},
		{"everything boosted", "always restart the broken crashed failing service immediately because it never recovers on its own!", "fixed resolved solved success!"},
		{"failure lesson", "the migration script broke replication", "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := e.Evaluate(ctx, tt.experience, tt.outcome)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, intelligence.ImportanceScale)
		})
	}
}

func TestImportanceEvaluator_FailureStillNoteworthy(t *testing.T) {
	e := intelligence.NewImportanceEvaluator(nil)
	ctx := context.Background()

	plain := e.Evaluate(ctx, "tried the new linter", "no opinion yet")
	failure := e.Evaluate(ctx, "tried the new linter", "broke the build")

	assert.Greater(t, failure, plain)
}

// failingProvider always errors, forcing the rule-based fallback.
type failingProvider struct{}

func (failingProvider) Generate(context.Context, string, ...llm.GenerateOption) (string, error) {
	return "", errors.New("provider down")
}

func (failingProvider) GenerateWithMessages(context.Context, []llm.Message, ...llm.GenerateOption) (string, error) {
	return "", errors.New("provider down")
}

func (failingProvider) Close() error { return nil }

func TestImportanceEvaluator_FallsBackToRules(t *testing.T) {
	withLLM := intelligence.NewImportanceEvaluator(failingProvider{})
	rulesOnly := intelligence.NewImportanceEvaluator(nil)
	ctx := context.Background()

	assert.Equal(t,
		rulesOnly.Evaluate(ctx, "restarting fixed the watcher", "works now"),
		withLLM.Evaluate(ctx, "restarting fixed the watcher", "works now"))
}

// scriptedProvider returns a fixed response.
type scriptedProvider struct{ response string }

func (p scriptedProvider) Generate(context.Context, string, ...llm.GenerateOption) (string, error) {
	return p.response, nil
}

func (p scriptedProvider) GenerateWithMessages(context.Context, []llm.Message, ...llm.GenerateOption) (string, error) {
	return p.response, nil
}

func (scriptedProvider) Close() error { return nil }

func TestImportanceEvaluator_ParsesLLMResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"clean json", `{"importance_score": 7.5}`, 7.5},
		{"json in prose", `Sure! Here you go: {"importance_score": 9.0} Hope that helps.`, 9.0},
		{"out of range clamped", `{"importance_score": 42}`, intelligence.ImportanceScale},
		{"bare number fallback", `I'd rate this 6 out of 10`, 6},
		{"unusable answer", `no idea`, intelligence.ImportanceScale / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := intelligence.NewImportanceEvaluator(scriptedProvider{response: tt.response})
			score := e.Evaluate(context.Background(), "experience", "outcome")
			assert.Equal(t, tt.want, score)
		})
	}
}
