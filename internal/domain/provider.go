package domain

import "context"

// LLMProvider abstracts an LLM completion backend. Implementations never
// retry internally; retry policy belongs to the caller.
type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}
