// Package llm provides the responder abstraction over text-generation backends.
package llm

import "context"

// Responder is a named, opaque text-generation capability.
type Responder interface {
	// Model returns the backend model identifier.
	Model() string

	// Generate returns the full completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream returns the completion as ordered fragments. The channel is
	// closed after a token with Done set or an Err.
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error)
}

// StreamToken is one fragment of a streamed completion.
type StreamToken struct {
	Content string
	Done    bool
	Err     error
}

// Ensure the backends implement Responder.
var (
	_ Responder = (*OllamaClient)(nil)
	_ Responder = (*OpenAIClient)(nil)
	_ Responder = (*MockClient)(nil)
)

// sendToken delivers tok unless ctx is cancelled first.
func sendToken(ctx context.Context, ch chan<- StreamToken, tok StreamToken) bool {
	select {
	case ch <- tok:
		return true
	case <-ctx.Done():
		return false
	}
}
