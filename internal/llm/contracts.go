package llm

import "context"

// ExtractRequest carries everything for a single extraction call.
type ExtractRequest struct {
	Document   []byte // PDF payload
	SchemaJSON string // canonical schema, embedded into the prompt
	Corrective string // optional corrective instruction on re-prompt
}

// RawResult is the model's structured output as returned, shape-unverified
// beyond schema validation. Consumers parse the JSON themselves; no model SDK
// types leak past this package.
type RawResult struct {
	JSON      []byte
	ModelName string
}

// Extractor is the single capability the pipeline depends on. Implementations
// issue exactly one request to the external model per call and persist
// nothing.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (RawResult, error)
}
