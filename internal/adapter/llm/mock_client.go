package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockClient is a deterministic Responder for offline runs and tests.
type MockClient struct {
	model string
}

// NewMockClient creates a new mock responder.
func NewMockClient(model string) *MockClient {
	return &MockClient{model: model}
}

// Model returns the model name.
func (m *MockClient) Model() string { return m.model }

// Generate returns a canned answer derived from the prompt.
func (m *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.generateMockResponse(prompt), nil
}

// GenerateStream simulates streaming by splitting the canned answer into chunks.
func (m *MockClient) GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunks := splitIntoChunks(m.generateMockResponse(prompt), 10)
	ch := make(chan StreamToken, len(chunks)+1)
	go func() {
		defer close(ch)
		for _, chunk := range chunks {
			if !sendToken(ctx, ch, StreamToken{Content: chunk}) {
				return
			}
		}
		sendToken(ctx, ch, StreamToken{Done: true})
	}()
	return ch, nil
}

func (m *MockClient) generateMockResponse(prompt string) string {
	// Classifier prompts get a parseable routing reply.
	if strings.Contains(prompt, `"route_to"`) {
		return `{"route_to": ["general_expert"], "reasoning": "mock routing"}`
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "[MOCK] This is a mock response."
	}
	return fmt.Sprintf("[MOCK %s] Received your prompt: %q. This is a mock response.", m.model, truncate(prompt, 100))
}

// splitIntoChunks splits a string into chunks of approximately the given size.
func splitIntoChunks(s string, chunkSize int) []string {
	var chunks []string
	for i := 0; i < len(s); i += chunkSize {
		end := i + chunkSize
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[i:end])
	}
	return chunks
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
