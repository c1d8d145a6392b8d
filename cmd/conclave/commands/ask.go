package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/spf13/cobra"

	"github.com/xiaot623/conclave/internal/app"
	"github.com/xiaot623/conclave/internal/config"
	"github.com/xiaot623/conclave/internal/domain"
)

// NewAskCmd creates the one-shot ask command.
func NewAskCmd() *cobra.Command {
	var streamOut bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question in-process",
		Long: `Answer a single question without a server. The pipeline runs in this
process against the configured inference backend.

With --stream the answer is printed chunk by chunk as a chat client would see it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, strings.Join(args, " "), streamOut)
		},
		Example: `  conclave ask "Should I invest in index funds?"
  GOGO_MODE=MOCK conclave ask --stream "How do I reverse a list in Python?"`,
	}

	cmd.Flags().BoolVar(&streamOut, "stream", false, "Print the answer as it streams")
	return cmd
}

func runAsk(cmd *cobra.Command, question string, streamOut bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	q := domain.NewQuery(question)
	if streamOut {
		return askStreaming(ctx, cmd.OutOrStdout(), a, q)
	}

	outcome, err := a.Pipeline.Answer(ctx, q)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), outcome.Answer.Text)
	if !quiet {
		roles := make([]string, len(outcome.Answer.UsedRoles))
		for i, r := range outcome.Answer.UsedRoles {
			roles[i] = string(r)
		}
		ancli.Okf("mode: %s, experts: [%s], degraded: %v\n", outcome.Mode, strings.Join(roles, ", "), outcome.Answer.Degraded)
	}
	return nil
}

func askStreaming(ctx context.Context, out io.Writer, a *app.App, q domain.Query) error {
	events := make(chan domain.StreamEvent)
	done := make(chan error, 1)

	go func() {
		var failure error
		for ev := range events {
			switch ev.Type {
			case domain.EventStatus:
				if !quiet {
					ancli.PrintOK(ev.Content + "\n")
				}
			case domain.EventChunk:
				fmt.Fprint(out, ev.Content)
			case domain.EventComplete:
				fmt.Fprintln(out)
			case domain.EventError:
				failure = errors.New(strings.TrimPrefix(ev.Content, "Error: "))
			}
		}
		done <- failure
	}()

	a.Pipeline.Run(ctx, "", q, events)
	close(events)
	if err := <-done; err != nil {
		return err
	}
	return ctx.Err()
}
