package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc/jsonrpc"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/conclave/internal/domain"
	"github.com/xiaot623/conclave/internal/pipeline"
)

type fakeAsker struct {
	err error
}

func (f fakeAsker) Answer(ctx context.Context, q domain.Query) (pipeline.Outcome, error) {
	if f.err != nil {
		return pipeline.Outcome{}, f.err
	}
	return pipeline.Outcome{
		RunID: "run_1",
		Answer: domain.AggregatedAnswer{
			Text:      "echo: " + q.Text,
			UsedRoles: []domain.RoleName{domain.RoleGeneral},
		},
		Mode: domain.ModeMultiExpert,
	}, nil
}

type fakeProber struct{}

func (fakeProber) Models() map[string]string { return map[string]string{"general_expert": "mistral:7b"} }
func (fakeProber) Mode() domain.Mode         { return domain.ModeMultiExpert }

func startServer(t *testing.T, asker Asker) string {
	t.Helper()

	srv, err := NewServer(asker, fakeProber{}, time.Second)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return ln.Addr().String()
}

func TestAskOverJSONRPC(t *testing.T) {
	addr := startServer(t, fakeAsker{})

	client, err := jsonrpc.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()

	var resp AskResponse
	require.NoError(t, client.Call(ServiceName+".Ask", &AskRequest{Message: "hi"}, &resp))
	assert.Equal(t, "echo: hi", resp.Answer)
	assert.Equal(t, "run_1", resp.RunID)
	assert.Equal(t, []domain.RoleName{domain.RoleGeneral}, resp.UsedRoles)
}

func TestAskErrors(t *testing.T) {
	addr := startServer(t, fakeAsker{err: errors.New("all models down")})

	client, err := jsonrpc.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()

	var resp AskResponse
	err = client.Call(ServiceName+".Ask", &AskRequest{Message: ""}, &resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message is required")

	err = client.Call(ServiceName+".Ask", &AskRequest{Message: "hi"}, &resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all models down")
}

func TestHealthOverJSONRPC(t *testing.T) {
	addr := startServer(t, fakeAsker{})

	client, err := jsonrpc.Dial("tcp", addr)
	require.NoError(t, err)
	defer client.Close()

	var resp HealthResponse
	require.NoError(t, client.Call(ServiceName+".Health", &HealthRequest{}, &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, domain.ModeMultiExpert, resp.Mode)
	assert.Equal(t, "mistral:7b", resp.Roles["general_expert"])
}

func TestShutdownWithoutStart(t *testing.T) {
	srv, err := NewServer(fakeAsker{}, fakeProber{}, 0)
	require.NoError(t, err)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
