// Package llm defines the Provider interface for Large Language Model backends.
//
// The LLM-backed mapper sends one prompt per unmapped object and expects a
// single JSON document back, so providers only expose a blocking Complete.
// Implementors must be safe for concurrent use.
package llm

import "context"

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the plain-text body of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Nil leaves the
	// provider default in place; the mapper pins it to 0.
	Temperature *float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int

	// SystemPrompt is prepended as a system-role message when non-empty.
	SystemPrompt string

	// JSON asks the backend for a JSON object reply where supported.
	JSON bool
}

// CompletionResponse is the result of a Complete call.
type CompletionResponse struct {
	// Content is the text of the first choice.
	Content string

	// Usage reports token consumption, when the backend returns it.
	Usage Usage
}

// Float returns a pointer to f, for CompletionRequest.Temperature.
func Float(f float64) *float64 { return &f }

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and blocks until the full response is available or
	// ctx is cancelled.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
