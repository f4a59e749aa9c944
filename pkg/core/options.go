package core

import (
	charmlog "github.com/charmbracelet/log"

	"github.com/agentzero/graphmem-go/pkg/intelligence"
	"github.com/agentzero/graphmem-go/pkg/query"
	"github.com/agentzero/graphmem-go/pkg/recordlog"
)

// ClientOption configures a Client beyond what Config covers: injected
// collaborators that cannot be expressed as serializable settings.
type ClientOption func(*clientOptions)

type clientOptions struct {
	logger    *charmlog.Logger
	extractor intelligence.SubjectExtractor
	log       recordlog.Log
}

// WithLogger sets the logger used for internal events (crash repair,
// compaction). Defaults to a stderr logger with prefix "graphmem".
func WithLogger(logger *charmlog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithSubjectExtractor swaps the text-to-subject heuristic. The default is
// the rule-based extractor (or the LLM-backed one when an LLM provider is
// configured).
func WithSubjectExtractor(e intelligence.SubjectExtractor) ClientOption {
	return func(o *clientOptions) {
		o.extractor = e
	}
}

// WithRecordLog injects an already-open record log, bypassing the
// Config.Log backend selection. Useful for tests and custom backends.
func WithRecordLog(l recordlog.Log) ClientOption {
	return func(o *clientOptions) {
		o.log = l
	}
}

// RecallOption is a function type for configuring Recall operations.
type RecallOption func(*RecallOptions)

// RecallOptions contains configuration options for Recall operations.
type RecallOptions struct {
	// Limit bounds the number of matches returned. Zero means the
	// configured default; negative is invalid.
	Limit int

	// Kinds restricts results to the given match kinds. Empty means all.
	Kinds []query.MatchKind
}

// WithLimit sets the maximum number of matches for a Recall.
//
// Example:
//
//	matches, _ := client.Recall(ctx, "Python backend", core.WithLimit(5))
func WithLimit(limit int) RecallOption {
	return func(opts *RecallOptions) {
		opts.Limit = limit
	}
}

// WithKinds restricts a Recall to the given match kinds.
//
// Example:
//
//	matches, _ := client.Recall(ctx, "build failure",
//	    core.WithKinds(query.MatchObservation))
func WithKinds(kinds ...query.MatchKind) RecallOption {
	return func(opts *RecallOptions) {
		opts.Kinds = kinds
	}
}

// applyRecallOptions applies a slice of RecallOption functions.
func applyRecallOptions(opts []RecallOption) *RecallOptions {
	options := &RecallOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
