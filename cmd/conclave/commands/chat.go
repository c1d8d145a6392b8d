package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/conclave/internal/domain"
)

// Client is a chat WebSocket client.
type Client struct {
	conn *websocket.Conn
}

// NewClient connects to the chat endpoint at addr.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Send sends one chat message.
func (c *Client) Send(message string) error {
	return c.conn.WriteJSON(map[string]string{"message": message})
}

// ReadAnswer prints events until the request's terminal event. Chunks are
// written as they arrive; status lines go to stderr unless quiet.
func (c *Client) ReadAnswer(out io.Writer) (domain.StreamEvent, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return domain.StreamEvent{}, fmt.Errorf("read: %w", err)
		}

		var ev domain.StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			ancli.PrintWarn(fmt.Sprintf("unreadable event: %v\n", err))
			continue
		}

		switch ev.Type {
		case domain.EventStatus:
			if !quiet {
				ancli.PrintOK(ev.Content + "\n")
			}
		case domain.EventChunk:
			fmt.Fprint(out, ev.Content)
		case domain.EventComplete:
			fmt.Fprintln(out)
			return ev, nil
		case domain.EventError:
			return ev, nil
		}
	}
}

// NewChatCmd creates the interactive chat command.
func NewChatCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a running server over WebSocket",
		Long: `Open an interactive session against a running conclave server.

Each line is sent as one question; the answer is streamed back as it arrives.
Type /quit to exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "url", "ws://localhost:8000/ws/chat", "WebSocket chat address")
	return cmd
}

func runChat(cmd *cobra.Command, addr string) error {
	out := cmd.OutOrStdout()

	client, err := NewClient(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer client.Close()

	if !quiet {
		ancli.Okf("connected to %s, type /quit to exit\n", addr)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" {
			fmt.Fprintln(out, "Bye!")
			return nil
		}

		if err := client.Send(input); err != nil {
			return fmt.Errorf("send: %w", err)
		}

		ev, err := client.ReadAnswer(out)
		if err != nil {
			return err
		}
		if ev.Type == domain.EventError {
			ancli.Errf("%s\n", ev.Content)
		}
	}
}
