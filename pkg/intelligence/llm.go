package intelligence

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agentzero/graphmem-go/pkg/llm"
)

// LLMExtractor infers subjects with an LLM provider, falling back to the
// rule-based extractor whenever the provider errors or answers with
// something unusable.
type LLMExtractor struct {
	llm      llm.Provider
	fallback RuleExtractor
}

// NewLLMExtractor creates an LLM-backed subject extractor.
func NewLLMExtractor(provider llm.Provider) *LLMExtractor {
	return &LLMExtractor{llm: provider}
}

// Extract asks the provider for the subject of the text.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (Subject, bool) {
	if strings.TrimSpace(text) == "" {
		return Subject{}, false
	}

	messages := []llm.Message{
		{
			Role: "system",
			Content: `You extract the subject entity from a fact to be stored in an agent's memory graph.
Answer with JSON only: {"subject": "<short entity name>", "kind": "<one word classification>"}.
If no clear subject exists, answer {"subject": ""}.`,
		},
		{Role: "user", Content: text},
	}

	response, err := e.llm.GenerateWithMessages(ctx, messages)
	if err != nil {
		return e.fallback.Extract(ctx, text)
	}

	subject, ok := parseSubjectResponse(response)
	if !ok {
		return e.fallback.Extract(ctx, text)
	}
	return subject, true
}

// parseSubjectResponse pulls the subject JSON out of a provider answer.
func parseSubjectResponse(response string) (Subject, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return Subject{}, false
	}

	var parsed struct {
		Subject string `json:"subject"`
		Kind    string `json:"kind"`
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return Subject{}, false
	}

	name := strings.TrimSpace(parsed.Subject)
	if name == "" {
		return Subject{}, false
	}

	kind := strings.TrimSpace(strings.ToLower(parsed.Kind))
	if kind == "" {
		kind = "concept"
	}
	return Subject{Name: name, Kind: kind}, true
}

var _ SubjectExtractor = (*LLMExtractor)(nil)
