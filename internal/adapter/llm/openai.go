package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient is a Responder for any OpenAI-compatible chat completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client. baseURL should include the API version
// path, e.g. "http://litellm:4000/v1"; empty uses the public OpenAI endpoint.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the model name.
func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: stream,
	}
}

// Generate sends a single chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(prompt, false))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream streams the completion deltas.
func (c *OpenAIClient) GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(prompt, true))
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}

	ch := make(chan StreamToken, 64)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				sendToken(ctx, ch, StreamToken{Done: true})
				return
			}
			if err != nil {
				sendToken(ctx, ch, StreamToken{Err: fmt.Errorf("reading stream: %w", err)})
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if !sendToken(ctx, ch, StreamToken{Content: resp.Choices[0].Delta.Content}) {
				return
			}
		}
	}()

	return ch, nil
}
