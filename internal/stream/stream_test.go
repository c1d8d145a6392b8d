package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/conclave/internal/adapter/llm"
	"github.com/xiaot623/conclave/internal/domain"
)

func TestSplitWords(t *testing.T) {
	cases := map[string][]string{
		"":                        nil,
		"hello":                   {"hello"},
		"hello world":             {"hello ", "world"},
		"  leading and trailing ": {"  leading ", "and ", "trailing "},
		"multi\n\nline\ttabs":     {"multi\n\n", "line\t", "tabs"},
		"   ":                     {"   "},
		"naïve café":              {"naïve ", "café"},
	}
	for text, want := range cases {
		assert.Equal(t, want, SplitWords(text), "text %q", text)
	}
}

func TestSplitWordsConcatenation(t *testing.T) {
	texts := []string{
		"A bond is a loan you make to a government or company.",
		"\n\nStart with a newline.  Double  spaces.\r\n",
		"日本語 のテキスト",
	}
	for _, text := range texts {
		assert.Equal(t, text, strings.Join(SplitWords(text), ""))
	}
}

func collect(ch <-chan domain.StreamEvent) []domain.StreamEvent {
	var events []domain.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestEmitterAnswerOrdering(t *testing.T) {
	e := NewEmitter(time.Millisecond)
	out := make(chan domain.StreamEvent, 64)
	text := "Bonds pay  fixed interest.\n"

	require.NoError(t, e.Status(context.Background(), out, domain.ModeMultiExpert))
	require.NoError(t, e.Answer(context.Background(), out, text))
	close(out)

	events := collect(out)
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, domain.EventStatus, events[0].Type)
	assert.Equal(t, domain.ModeMultiExpert.StatusText(), events[0].Content)

	last := events[len(events)-1]
	assert.Equal(t, domain.EventComplete, last.Type)
	assert.Equal(t, text, last.Content)

	var sb strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		assert.Equal(t, domain.EventChunk, ev.Type)
		sb.WriteString(ev.Content)
	}
	assert.Equal(t, last.Content, sb.String())

	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
	}
}

func TestEmitterEmptyAnswer(t *testing.T) {
	out := make(chan domain.StreamEvent, 4)
	require.NoError(t, NewEmitter(0).Answer(context.Background(), out, ""))
	close(out)

	events := collect(out)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventComplete, events[0].Type)
	assert.Equal(t, "", events[0].Content)
}

func TestEmitterStopsOnCancel(t *testing.T) {
	e := NewEmitter(time.Hour)
	testboil.ReturnsOnContextCancel(t, func(ctx context.Context) {
		out := make(chan domain.StreamEvent, 64)
		err := e.Answer(ctx, out, "this would take hours")
		assert.ErrorIs(t, err, context.Canceled)
	}, time.Second)
}

func TestEmitterBlockedConsumerDoesNotLeak(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan domain.StreamEvent) // nobody reads

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.ErrorIs(t, NewEmitter(0).Answer(ctx, out, "stuck forever"), context.Canceled)
	}()
	cancel()
	wg.Wait()
}

func TestEmitterForward(t *testing.T) {
	tokens := make(chan llm.StreamToken, 8)
	tokens <- llm.StreamToken{Content: "Hello"}
	tokens <- llm.StreamToken{Content: ""}
	tokens <- llm.StreamToken{Content: " world"}
	tokens <- llm.StreamToken{Done: true}
	close(tokens)

	out := make(chan domain.StreamEvent, 8)
	text, err := NewEmitter(0).Forward(context.Background(), out, domain.ModeFallback, tokens)
	require.NoError(t, err)
	close(out)

	assert.Equal(t, "Hello world", text)
	events := collect(out)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventStatus, events[0].Type)
	assert.Equal(t, domain.ModeFallback.StatusText(), events[0].Content)
	assert.Equal(t, "Hello", events[1].Content)
	assert.Equal(t, " world", events[2].Content)
}

func TestEmitterForwardHoldsLeadingWhitespace(t *testing.T) {
	tokens := make(chan llm.StreamToken, 8)
	tokens <- llm.StreamToken{Content: "\n"}
	tokens <- llm.StreamToken{Content: "  "}
	tokens <- llm.StreamToken{Content: "Answer"}
	tokens <- llm.StreamToken{Content: " here"}
	tokens <- llm.StreamToken{Done: true}
	close(tokens)

	out := make(chan domain.StreamEvent, 8)
	text, err := NewEmitter(0).Forward(context.Background(), out, domain.ModeFallback, tokens)
	require.NoError(t, err)
	close(out)

	assert.Equal(t, "\n  Answer here", text)
	events := collect(out)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventStatus, events[0].Type)
	assert.Equal(t, "\n  Answer", events[1].Content)
	assert.Equal(t, " here", events[2].Content)
}

func TestEmitterForwardSendsNothingWithoutContent(t *testing.T) {
	cases := map[string][]llm.StreamToken{
		"immediate error":  {{Err: errors.New("connection refused")}},
		"whitespace only":  {{Content: "  "}, {Content: "\n"}, {Done: true}},
		"whitespace error": {{Content: " "}, {Err: errors.New("reset")}},
		"closed":           nil,
	}
	for name, toks := range cases {
		tokens := make(chan llm.StreamToken, len(toks))
		for _, tok := range toks {
			tokens <- tok
		}
		close(tokens)

		out := make(chan domain.StreamEvent, 8)
		_, _ = NewEmitter(0).Forward(context.Background(), out, domain.ModeFallback, tokens)
		close(out)
		assert.Empty(t, collect(out), name)
	}
}

func TestEmitterForwardError(t *testing.T) {
	tokens := make(chan llm.StreamToken, 4)
	tokens <- llm.StreamToken{Content: "partial"}
	tokens <- llm.StreamToken{Err: errors.New("connection reset")}
	close(tokens)

	out := make(chan domain.StreamEvent, 4)
	text, err := NewEmitter(0).Forward(context.Background(), out, domain.ModeFallback, tokens)
	assert.Error(t, err)
	assert.Equal(t, "partial", text)
	close(out)
	assert.Len(t, collect(out), 2)
}

type shape struct {
	Type    domain.EventType
	Content string
}

func shapes(events []domain.StreamEvent) []shape {
	out := make([]shape, len(events))
	for i, ev := range events {
		out[i] = shape{Type: ev.Type, Content: ev.Content}
	}
	return out
}

func TestEmitterAnswerIsRepeatable(t *testing.T) {
	texts := []string{
		"Index funds spread risk across the market.",
		"  \n\tLeading,  doubled   and trailing whitespace.\r\n  ",
		"   ",
		"",
	}
	e := NewEmitter(0)
	emit := func(text string) []shape {
		out := make(chan domain.StreamEvent, 64)
		require.NoError(t, e.Status(context.Background(), out, domain.ModeMultiExpert))
		require.NoError(t, e.Answer(context.Background(), out, text))
		close(out)
		return shapes(collect(out))
	}

	for _, text := range texts {
		first := emit(text)
		second := emit(text)
		assert.Equal(t, first, second, "text %q", text)
	}
}

func TestSessionBusy(t *testing.T) {
	s := NewSession("c1")
	assert.Equal(t, domain.SessionIdle, s.State())

	require.True(t, s.TryBegin())
	assert.Equal(t, domain.SessionProcessing, s.State())
	assert.False(t, s.TryBegin())

	assert.False(t, s.End(), "a refused message is still unanswered")
	assert.Equal(t, domain.SessionProcessing, s.State())
	assert.Equal(t, 1, s.TakeRejected())
	assert.Equal(t, 0, s.TakeRejected())

	require.True(t, s.End())
	assert.Equal(t, domain.SessionIdle, s.State())
	assert.True(t, s.TryBegin())
	assert.WithinDuration(t, time.Now(), s.LastActivity(), time.Second)
}

func TestSessionTryBeginIsExclusive(t *testing.T) {
	s := NewSession("c1")
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryBegin() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
