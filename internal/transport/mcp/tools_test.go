package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/pipeline"
)

type askerFunc func(ctx context.Context, q domain.Query) (pipeline.Outcome, error)

func (f askerFunc) Answer(ctx context.Context, q domain.Query) (pipeline.Outcome, error) {
	return f(ctx, q)
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = ToolAskExperts
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestAskExperts(t *testing.T) {
	var got string
	h := &Handlers{asker: askerFunc(func(ctx context.Context, q domain.Query) (pipeline.Outcome, error) {
		got = q.Text
		return pipeline.Outcome{
			Answer: domain.AggregatedAnswer{
				Text:      "Spread your money across index funds.",
				UsedRoles: []domain.RoleName{domain.RoleFinance, domain.RoleGeneral},
			},
			Mode: domain.ModeMultiExpert,
		}, nil
	})}

	res, err := h.AskExperts(context.Background(), callRequest(map[string]interface{}{"query": "How should I invest?"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "How should I invest?", got)

	text := resultText(t, res)
	assert.Contains(t, text, "Spread your money across index funds.")
	assert.Contains(t, text, "experts: finance_expert, general_expert")
	assert.Contains(t, text, "mode: multi-expert")
}

func TestAskExpertsMissingQuery(t *testing.T) {
	h := &Handlers{asker: askerFunc(func(ctx context.Context, q domain.Query) (pipeline.Outcome, error) {
		t.Fatal("asker should not be called")
		return pipeline.Outcome{}, nil
	})}

	for _, args := range []map[string]interface{}{{}, {"query": "  "}, {"query": 42}} {
		res, err := h.AskExperts(context.Background(), callRequest(args))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	}
}

func TestAskExpertsFailure(t *testing.T) {
	h := &Handlers{asker: askerFunc(func(ctx context.Context, q domain.Query) (pipeline.Outcome, error) {
		return pipeline.Outcome{}, errors.New("fallback model unavailable")
	})}

	res, err := h.AskExperts(context.Background(), callRequest(map[string]interface{}{"query": "hi"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "fallback model unavailable")
}

func TestFormatAnswerDegraded(t *testing.T) {
	text := formatAnswer(pipeline.Outcome{
		Answer: domain.AggregatedAnswer{Text: "plain", Degraded: true},
		Mode:   domain.ModeFallback,
	})
	assert.Equal(t, "plain\n\n[degraded; mode: fallback]", text)
}

func TestNewServerRegistersTool(t *testing.T) {
	s := NewServer("conclave", "test", askerFunc(func(ctx context.Context, q domain.Query) (pipeline.Outcome, error) {
		return pipeline.Outcome{}, nil
	}))
	require.NotNil(t, s)
}
