package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewHealthCmd creates the health command.
func NewHealthCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query a running server's readiness probe",
		Long:  `Fetch /health from a running server and print the configured roles and mode.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, url)
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:8000", "Server base URL")
	return cmd
}

type healthResponse struct {
	Status string            `json:"status"`
	Roles  map[string]string `json:"roles"`
	Mode   string            `json:"mode"`
}

func runHealth(cmd *cobra.Command, url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(url, "/")+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status: %s\n", health.Status)
	fmt.Fprintf(out, "mode:   %s\n", health.Mode)
	for _, role := range sortedKeys(health.Roles) {
		fmt.Fprintf(out, "  %-18s %s\n", role, health.Roles[role])
	}
	return nil
}
