package stream

import (
	"context"
	"strings"
	"time"

	"github.com/xiaot623/conclave/internal/adapter/llm"
	"github.com/xiaot623/conclave/internal/domain"
)

// Emitter writes a request's events into a channel drained by a single writer.
type Emitter struct {
	delay time.Duration
}

// NewEmitter creates an emitter that pauses delay between chunks.
func NewEmitter(delay time.Duration) *Emitter {
	return &Emitter{delay: delay}
}

// Status sends the optional status event describing mode.
func (e *Emitter) Status(ctx context.Context, out chan<- domain.StreamEvent, mode domain.Mode) error {
	return send(ctx, out, domain.NewEvent(domain.EventStatus, mode.StatusText()))
}

// Answer sends text as word chunks followed by one Complete carrying the full text.
func (e *Emitter) Answer(ctx context.Context, out chan<- domain.StreamEvent, text string) error {
	for i, chunk := range SplitWords(text) {
		if i > 0 && e.delay > 0 {
			if err := sleep(ctx, e.delay); err != nil {
				return err
			}
		}
		if err := send(ctx, out, domain.NewEvent(domain.EventChunk, chunk)); err != nil {
			return err
		}
	}
	return send(ctx, out, domain.NewEvent(domain.EventComplete, text))
}

// Forward relays a native token stream as chunks. The Status for mode is
// sent just before the first chunk, and leading whitespace-only tokens are
// held back until real content arrives, so a stream that yields nothing
// visible sends no events. It returns the full text without sending a
// terminal event; the caller decides between Complete and Error.
func (e *Emitter) Forward(ctx context.Context, out chan<- domain.StreamEvent, mode domain.Mode, tokens <-chan llm.StreamToken) (string, error) {
	var sb strings.Builder
	started := false
	for {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		case tok, ok := <-tokens:
			if !ok {
				return sb.String(), nil
			}
			if tok.Err != nil {
				return sb.String(), tok.Err
			}
			sb.WriteString(tok.Content)
			switch {
			case started && tok.Content != "":
				if err := send(ctx, out, domain.NewEvent(domain.EventChunk, tok.Content)); err != nil {
					return sb.String(), err
				}
			case !started && strings.TrimSpace(sb.String()) != "":
				started = true
				if err := e.Status(ctx, out, mode); err != nil {
					return sb.String(), err
				}
				if err := send(ctx, out, domain.NewEvent(domain.EventChunk, sb.String())); err != nil {
					return sb.String(), err
				}
			}
			if tok.Done {
				return sb.String(), nil
			}
		}
	}
}

// Complete sends the terminal Complete event.
func (e *Emitter) Complete(ctx context.Context, out chan<- domain.StreamEvent, text string) error {
	return send(ctx, out, domain.NewEvent(domain.EventComplete, text))
}

// Fail sends the terminal Error event.
func (e *Emitter) Fail(ctx context.Context, out chan<- domain.StreamEvent, msg string) error {
	return send(ctx, out, domain.NewEvent(domain.EventError, msg))
}

func send(ctx context.Context, out chan<- domain.StreamEvent, ev domain.StreamEvent) error {
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
