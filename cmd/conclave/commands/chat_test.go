package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/conclave/internal/domain"
)

// chatServer answers every message by echoing it back word by word.
func chatServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				Message string `json:"message"`
			}
			json.Unmarshal(data, &msg)
			if msg.Message == "fail" {
				conn.WriteJSON(domain.NewEvent(domain.EventError, "Error: boom"))
				continue
			}
			conn.WriteJSON(domain.NewEvent(domain.EventStatus, domain.ModeMultiExpert.StatusText()))
			for _, word := range strings.SplitAfter(msg.Message, " ") {
				conn.WriteJSON(domain.NewEvent(domain.EventChunk, word))
			}
			conn.WriteJSON(domain.NewEvent(domain.EventComplete, msg.Message))
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestChatCmd(t *testing.T) {
	addr := chatServer(t)

	cmd := NewChatCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("hello there\n\nfail\nsecond question\n/quit\n"))
	cmd.SetArgs([]string{"--url", addr})

	testboil.CaptureStdout(t, func(t *testing.T) {
		if err := cmd.Execute(); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	})

	got := out.String()
	testboil.AssertStringContains(t, got, "hello there\n")
	testboil.AssertStringContains(t, got, "second question\n")
	testboil.AssertStringContains(t, got, "Bye!")
}

func TestChatCmd_ConnectFailure(t *testing.T) {
	cmd := NewChatCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--url", "ws://127.0.0.1:1/ws/chat"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected connection error")
	}
}
