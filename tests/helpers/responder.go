// Package helpers holds shared test fixtures.
package helpers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/conclave/internal/adapter/llm"
)

// Responder is a scriptable llm.Responder.
type Responder struct {
	Name  string
	Reply string
	Err   error
	Delay time.Duration

	// Fn, when set, replaces Reply/Err.
	Fn func(ctx context.Context, prompt string) (string, error)

	// StreamErr is delivered after the reply fragments instead of a Done token.
	StreamErr error

	Panic bool

	mu      sync.Mutex
	prompts []string
}

var _ llm.Responder = (*Responder)(nil)

// Model implements llm.Responder.
func (r *Responder) Model() string { return r.Name }

// Generate implements llm.Responder.
func (r *Responder) Generate(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.mu.Unlock()

	if r.Panic {
		panic("responder exploded")
	}
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.Fn != nil {
		return r.Fn(ctx, prompt)
	}
	return r.Reply, r.Err
}

// GenerateStream implements llm.Responder by streaming the Generate result word by word.
func (r *Responder) GenerateStream(ctx context.Context, prompt string) (<-chan llm.StreamToken, error) {
	text, err := r.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitAfter(text, " ")
	ch := make(chan llm.StreamToken, len(parts)+1)
	for _, p := range parts {
		if p != "" {
			ch <- llm.StreamToken{Content: p}
		}
	}
	if r.StreamErr != nil {
		ch <- llm.StreamToken{Err: r.StreamErr}
	} else {
		ch <- llm.StreamToken{Done: true}
	}
	close(ch)
	return ch, nil
}

// Calls returns how many times the responder was invoked.
func (r *Responder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

// Prompts returns a copy of every prompt received.
func (r *Responder) Prompts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts...)
}
