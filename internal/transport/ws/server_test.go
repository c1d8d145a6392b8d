package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/conclave/internal/config"
	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/hub"
	"github.com/xiaot623/conclave/internal/pipeline"
)

type runnerFunc func(ctx context.Context, connID string, q domain.Query, out chan<- domain.StreamEvent) pipeline.Outcome

func (f runnerFunc) Run(ctx context.Context, connID string, q domain.Query, out chan<- domain.StreamEvent) pipeline.Outcome {
	return f(ctx, connID, q, out)
}

func echoRunner() Runner {
	return runnerFunc(func(ctx context.Context, connID string, q domain.Query, out chan<- domain.StreamEvent) pipeline.Outcome {
		out <- domain.NewEvent(domain.EventStatus, domain.ModeMultiExpert.StatusText())
		for _, w := range strings.SplitAfter(q.Text, " ") {
			out <- domain.NewEvent(domain.EventChunk, w)
		}
		out <- domain.NewEvent(domain.EventComplete, q.Text)
		return pipeline.Outcome{Stage: pipeline.StageDone}
	})
}

func startServer(t *testing.T, runner Runner) (*Server, *hub.Hub, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub()
	go h.Run(ctx)

	cfg := config.Default()
	srv := NewServer(cfg, h, runner)

	e := echo.New()
	e.GET("/ws/chat", srv.HandleWebSocket)
	ts := httptest.NewServer(e)

	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
		ts.Close()
		cancel()
	})

	return srv, h, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readEvent(t *testing.T, c *websocket.Conn) domain.StreamEvent {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev domain.StreamEvent
	require.NoError(t, c.ReadJSON(&ev))
	return ev
}

func readUntilTerminal(t *testing.T, c *websocket.Conn) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	for {
		ev := readEvent(t, c)
		events = append(events, ev)
		if ev.IsTerminal() {
			return events
		}
	}
}

func TestServer_StreamsAnswer(t *testing.T) {
	_, _, url := startServer(t, echoRunner())
	c := dial(t, url)

	require.NoError(t, c.WriteJSON(ChatMessage{Message: "how do index funds work"}))
	events := readUntilTerminal(t, c)

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, domain.EventStatus, events[0].Type)

	var sb strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		assert.Equal(t, domain.EventChunk, ev.Type)
		sb.WriteString(ev.Content)
	}
	last := events[len(events)-1]
	assert.Equal(t, domain.EventComplete, last.Type)
	assert.Equal(t, last.Content, sb.String())
}

func TestServer_SequentialRequests(t *testing.T) {
	_, _, url := startServer(t, echoRunner())
	c := dial(t, url)

	for _, msg := range []string{"first question", "second question"} {
		require.NoError(t, c.WriteJSON(ChatMessage{Message: msg}))
		events := readUntilTerminal(t, c)
		assert.Equal(t, msg, events[len(events)-1].Content)
	}
}

func TestServer_InvalidMessages(t *testing.T) {
	_, _, url := startServer(t, echoRunner())
	c := dial(t, url)

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("not json")))
	ev := readEvent(t, c)
	assert.Equal(t, domain.EventError, ev.Type)

	require.NoError(t, c.WriteJSON(ChatMessage{Message: "   "}))
	ev = readEvent(t, c)
	assert.Equal(t, domain.EventError, ev.Type)
	assert.Contains(t, ev.Content, "message is required")
}

func TestServer_RejectsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var runs atomic.Int32
	runner := runnerFunc(func(ctx context.Context, connID string, q domain.Query, out chan<- domain.StreamEvent) pipeline.Outcome {
		runs.Add(1)
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return pipeline.Outcome{}
		}
		out <- domain.NewEvent(domain.EventComplete, "done")
		return pipeline.Outcome{Stage: pipeline.StageDone}
	})
	_, _, url := startServer(t, runner)
	c := dial(t, url)

	require.NoError(t, c.WriteJSON(ChatMessage{Message: "slow one"}))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("request never started")
	}

	require.NoError(t, c.WriteJSON(ChatMessage{Message: "impatient"}))
	require.NoError(t, c.WriteJSON(ChatMessage{Message: "very impatient"}))
	time.Sleep(50 * time.Millisecond)

	close(release)
	ev := readEvent(t, c)
	assert.Equal(t, domain.EventComplete, ev.Type)
	assert.Equal(t, "done", ev.Content)

	for i := 0; i < 2; i++ {
		ev = readEvent(t, c)
		assert.Equal(t, domain.EventError, ev.Type)
		assert.Equal(t, domain.ErrSessionBusy.Error(), ev.Content)
	}
	assert.Equal(t, int32(1), runs.Load())

	// The session is idle again once the refusals are answered.
	require.NoError(t, c.WriteJSON(ChatMessage{Message: "now"}))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("next request never started")
	}
	ev = readEvent(t, c)
	assert.Equal(t, domain.EventComplete, ev.Type)
}

func TestServer_CloseCancelsRequest(t *testing.T) {
	started := make(chan struct{}, 1)
	cancelled := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, connID string, q domain.Query, out chan<- domain.StreamEvent) pipeline.Outcome {
		started <- struct{}{}
		<-ctx.Done()
		close(cancelled)
		return pipeline.Outcome{}
	})
	_, h, url := startServer(t, runner)
	c := dial(t, url)

	require.NoError(t, c.WriteJSON(ChatMessage{Message: "never answered"}))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("request never started")
	}
	require.NoError(t, c.Close())

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("request context was not cancelled on close")
	}

	require.Eventually(t, func() bool { return h.GetConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
