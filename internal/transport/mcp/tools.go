// Package mcp exposes the query pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/pipeline"
)

// ToolAskExperts is the name of the question answering tool.
const ToolAskExperts = "ask_experts"

// Asker answers a query without streaming.
type Asker interface {
	Answer(ctx context.Context, q domain.Query) (pipeline.Outcome, error)
}

// Handlers holds the tool handlers.
type Handlers struct {
	asker Asker
}

// NewServer creates an MCP server with every tool registered.
func NewServer(name, version string, asker Asker) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer(name, version)
	RegisterTools(server, asker)
	return server
}

// RegisterTools registers the MCP tools with the server.
func RegisterTools(server *mcpserver.MCPServer, asker Asker) *Handlers {
	handlers := &Handlers{asker: asker}

	server.AddTool(mcp.Tool{
		Name:        ToolAskExperts,
		Description: "Answer a question by routing it to finance, technical and general experts and merging their answers.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The question to answer",
				},
			},
			Required: []string{"query"},
		},
	}, handlers.AskExperts)

	return handlers
}

// AskExperts handles the ask_experts tool.
func (h *Handlers) AskExperts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query argument is required and must be a non-empty string"), nil
	}

	outcome, err := h.asker.Answer(ctx, domain.NewQuery(query))
	if err != nil {
		log.Printf("ERROR: ask_experts: %v", err)
		return mcp.NewToolResultError(fmt.Sprintf("Error: %v", err)), nil
	}

	return mcp.NewToolResultText(formatAnswer(outcome)), nil
}

func formatAnswer(o pipeline.Outcome) string {
	var sb strings.Builder
	sb.WriteString(o.Answer.Text)

	var notes []string
	if len(o.Answer.UsedRoles) > 0 {
		roles := make([]string, len(o.Answer.UsedRoles))
		for i, r := range o.Answer.UsedRoles {
			roles[i] = string(r)
		}
		notes = append(notes, "experts: "+strings.Join(roles, ", "))
	}
	if o.Answer.Degraded {
		notes = append(notes, "degraded")
	}
	if o.Mode != "" {
		notes = append(notes, "mode: "+string(o.Mode))
	}
	if len(notes) > 0 {
		sb.WriteString("\n\n[")
		sb.WriteString(strings.Join(notes, "; "))
		sb.WriteString("]")
	}
	return sb.String()
}
