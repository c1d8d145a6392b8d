package commands

import (
	"log"
	"os"

	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/spf13/cobra"
)

var quiet bool

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conclave",
		Short: "Multi-expert question answering service",
		Long: `conclave routes each question to finance, technical and general
expert models, merges their answers and streams the result to the client.
When the experts fail it falls back to a single model.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if misc.Truthy(os.Getenv("DEBUG")) {
				log.SetFlags(log.LstdFlags | log.Lshortfile)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress informational output")

	cmd.AddCommand(
		NewServeCmd(),
		NewChatCmd(),
		NewAskCmd(),
		NewHealthCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
