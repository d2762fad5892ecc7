package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
)

// fakeService answers a handful of methods and pushes an instance update
// after every startWorkspace.
func fakeService(t *testing.T, gotAuth chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			gotAuth <- r.Header.Get("Authorization")
		}
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn := jsonrpc2.NewConn(NewStream(ws))
		conn.Go(r.Context(), func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
			var args []json.RawMessage
			_ = json.Unmarshal(req.Params(), &args)
			switch req.Method() {
			case MethodStartWorkspace:
				var wsid string
				_ = json.Unmarshal(args[0], &wsid)
				_ = conn.Notify(ctx, NotifyInstanceUpdate, []interface{}{core.WorkspaceInstance{
					ID: "i-1", WorkspaceID: wsid, Status: core.InstanceStatus{Phase: core.PhasePending},
				}})
				return reply(ctx, core.StartWorkspaceResult{InstanceID: "i-1"}, nil)
			case MethodGetWorkspace:
				data := json.RawMessage(`{"id":"missing"}`)
				return reply(ctx, nil, &jsonrpc2.Error{Code: jsonrpc2.Code(core.RPCNotFound), Message: "workspace not found", Data: &data})
			case MethodWatchWorkspaceImageBuildLogs:
				_ = conn.Notify(ctx, NotifyWorkspaceImageBuildLogs, []interface{}{
					map[string]string{"workspaceID": "ws-1", "instanceID": "i-1"},
					map[string]string{"text": "step 1/3"},
				})
				return reply(ctx, nil, nil)
			case MethodGetToken:
				return reply(ctx, nil, nil)
			}
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		})
		<-conn.Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func startClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(Config{
		Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:    "secret",
	}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, c.WaitConnected(waitCtx))
	return c
}

func TestClient_CallFailsWhenDisconnected(t *testing.T) {
	c := NewClient(Config{Endpoint: "ws://127.0.0.1:1/api/v1"}, zap.NewNop())
	_, err := c.StartWorkspace(context.Background(), "ws-1", core.StartWorkspaceOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.NotConnectedError))
}

func TestClient_StartAndPushedUpdate(t *testing.T) {
	auth := make(chan string, 4)
	srv := fakeService(t, auth)
	c := startClient(t, srv)
	assert.Equal(t, "Bearer secret", <-auth)

	updates := make(chan core.WorkspaceInstance, 1)
	d := c.RegisterClient(ClientHandlers{OnInstanceUpdate: func(i core.WorkspaceInstance) { updates <- i }})
	defer d.Dispose()

	res, err := c.StartWorkspace(context.Background(), "ws-1", core.StartWorkspaceOptions{ForceDefaultImage: true})
	require.NoError(t, err)
	assert.Equal(t, "i-1", res.InstanceID)

	select {
	case inst := <-updates:
		assert.Equal(t, "ws-1", inst.WorkspaceID)
		assert.Equal(t, core.PhasePending, inst.Status.Phase)
	case <-time.After(5 * time.Second):
		t.Fatal("no instance update delivered")
	}
}

func TestClient_RemoteErrorCarriesCodeAndData(t *testing.T) {
	srv := fakeService(t, nil)
	c := startClient(t, srv)

	_, err := c.GetWorkspace(context.Background(), "missing")
	require.Error(t, err)
	var appErr *core.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, core.ErrNotFound, appErr.Code)
	assert.Equal(t, core.RPCNotFound, appErr.RPCCode)
	assert.JSONEq(t, `{"id":"missing"}`, string(appErr.Data))
}

func TestClient_ImageBuildLogsPositional(t *testing.T) {
	srv := fakeService(t, nil)
	c := startClient(t, srv)

	logs := make(chan core.HeadlessLogEvent, 1)
	d := c.RegisterClient(ClientHandlers{OnWorkspaceImageBuildLogs: func(ev core.HeadlessLogEvent) { logs <- ev }})
	defer d.Dispose()

	require.NoError(t, c.WatchWorkspaceImageBuildLogs(context.Background(), "ws-1"))
	select {
	case ev := <-logs:
		assert.Equal(t, "ws-1", ev.WorkspaceID)
		assert.Equal(t, "step 1/3", ev.Text)
		assert.Equal(t, ImageBuildLogSource, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no log chunk delivered")
	}
}

func TestClient_GetTokenNull(t *testing.T) {
	srv := fakeService(t, nil)
	c := startClient(t, srv)

	tok, err := c.GetToken(context.Background(), "github.com")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestRegistry_DisposeIsIdempotent(t *testing.T) {
	var r Registry
	calls := 0
	d := r.Register(ClientHandlers{OnInstanceUpdate: func(core.WorkspaceInstance) { calls++ }})
	r.InstanceUpdate(core.WorkspaceInstance{})
	d.Dispose()
	d.Dispose()
	r.InstanceUpdate(core.WorkspaceInstance{})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.Len())
}

func TestDecodeParams_ByNameAndPositional(t *testing.T) {
	var a, b core.HeadlessLogEvent
	require.NoError(t, decodeParams(json.RawMessage(`{"workspaceID":"ws-1","text":"x"}`), &a))
	require.NoError(t, decodeParams(json.RawMessage(`[{"workspaceID":"ws-1","text":"x"}]`), &b))
	assert.Equal(t, a, b)
	require.Error(t, decodeParams(json.RawMessage(`[]`), &a))
}
