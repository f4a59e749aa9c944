package intelligence

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/agentzero/graphmem-go/pkg/llm"
)

// ImportanceScale is the inclusive upper bound of importance scores.
// Scores always land in [0, ImportanceScale].
const ImportanceScale = 10.0

// importanceBase is the score of an unremarkable lesson before boosts.
const importanceBase = 3.0

// ImportanceEvaluator scores how important a learned lesson is.
//
// It supports two evaluation modes:
//   - Rule-based: keyword matching and simple heuristics (default)
//   - LLM-based: asks the configured provider, falling back to rules on
//     any failure
//
// The score later weights ranking in recall.
type ImportanceEvaluator struct {
	// llm is the provider for LLM-based evaluation. If nil the evaluator
	// is purely rule-based.
	llm llm.Provider
}

// NewImportanceEvaluator creates an importance evaluator. Pass nil to use
// rule-based evaluation only.
func NewImportanceEvaluator(provider llm.Provider) *ImportanceEvaluator {
	return &ImportanceEvaluator{llm: provider}
}

// resolutionMarkers signal that the outcome resolved something; lessons
// with a confirmed resolution are the ones most worth recalling.
var resolutionMarkers = []string{
	"fixed", "works", "worked", "working", "resolved", "solved",
	"success", "succeeded", "passed", "completed",
}

// failureMarkers still make a lesson noteworthy, just less so than a
// confirmed resolution.
var failureMarkers = []string{
	"failed", "broken", "broke", "regression", "error", "crash", "crashed",
}

// Evaluate scores a lesson's importance in [0, ImportanceScale].
//
// Parameters:
//   - ctx: Context for cancellation
//   - experience: The experience text
//   - outcome: The observed outcome text (may be empty for plain facts)
//
// Returns the importance score.
func (e *ImportanceEvaluator) Evaluate(ctx context.Context, experience, outcome string) float64 {
	if e.llm != nil {
		score, err := e.evaluateWithLLM(ctx, experience, outcome)
		if err == nil {
			return score
		}
		// Fall back to rule-based if the LLM fails
	}
	return e.evaluateWithRules(experience, outcome)
}

// evaluateWithRules scores importance using keyword heuristics.
func (e *ImportanceEvaluator) evaluateWithRules(experience, outcome string) float64 {
	score := importanceBase
	expLower := strings.ToLower(experience)
	outLower := strings.ToLower(outcome)

	for _, marker := range resolutionMarkers {
		if strings.Contains(outLower, marker) {
			score += 3.0
			break
		}
	}
	for _, marker := range failureMarkers {
		if strings.Contains(outLower, marker) || strings.Contains(expLower, marker) {
			score += 1.5
			break
		}
	}

	// Generalized lessons ("always", "never") transfer across tasks.
	if strings.Contains(expLower, "always") || strings.Contains(expLower, "never") {
		score += 1.0
	}

	if len(experience) > 80 {
		score += 0.5
	}
	if strings.Contains(experience, "!") || strings.Contains(outcome, "!") {
		score += 0.5
	}

	return clamp(score)
}

// evaluateWithLLM asks the provider for a score.
func (e *ImportanceEvaluator) evaluateWithLLM(ctx context.Context, experience, outcome string) (float64, error) {
	systemPrompt := fmt.Sprintf(`You are an importance evaluator for an agent's long-term memory.
Score how important the given lesson is to remember, from 0.0 to %.0f.
Confirmed resolutions and transferable lessons score high; trivia scores low.
Return a JSON object with an "importance_score" field.`, ImportanceScale)

	userPrompt := fmt.Sprintf("Experience: %s\nOutcome: %s\n\nReturn JSON: {\"importance_score\": 0.0-%.0f}",
		experience, outcome, ImportanceScale)

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	response, err := e.llm.GenerateWithMessages(ctx, messages)
	if err != nil {
		return 0, err
	}

	return parseImportanceResponse(response), nil
}

// parseImportanceResponse extracts a score from an LLM response.
func parseImportanceResponse(response string) float64 {
	// Try to extract JSON
	if start := strings.Index(response, "{"); start >= 0 {
		if end := strings.LastIndex(response, "}"); end > start {
			var result map[string]interface{}
			if err := json.Unmarshal([]byte(response[start:end+1]), &result); err == nil {
				if score, ok := result["importance_score"].(float64); ok {
					return clamp(score)
				}
			}
		}
	}

	// Fallback: first number in the response
	re := regexp.MustCompile(`\d+\.?\d*`)
	if match := re.FindString(response); match != "" {
		var score float64
		if _, err := fmt.Sscanf(match, "%f", &score); err == nil {
			return clamp(score)
		}
	}

	// Default medium importance
	return ImportanceScale / 2
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(ImportanceScale, score))
}
