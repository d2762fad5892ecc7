package creator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
)

type fakeService struct {
	got core.CreateWorkspaceOptions
	res *core.CreateWorkspaceResult
	err error
}

func (f *fakeService) CreateWorkspace(_ context.Context, opts core.CreateWorkspaceOptions) (*core.CreateWorkspaceResult, error) {
	f.got = opts
	return f.res, f.err
}

func TestContextFromFragment(t *testing.T) {
	assert.Equal(t, "https://github.com/acme/app", ContextFromFragment("#/https://github.com/acme/app"))
	assert.Equal(t, "https://github.com/acme/app", ContextFromFragment("#https://github.com/acme/app"))
	assert.Equal(t, "", ContextFromFragment("#/"))
}

func TestCreate_Classifies(t *testing.T) {
	prebuild := &core.RunningPrebuild{PrebuildID: "pb-1", WorkspaceID: "ws-pb", Starting: "running"}
	cases := []struct {
		name string
		res  core.CreateWorkspaceResult
		want Outcome
	}{
		{"redirect", core.CreateWorkspaceResult{WorkspaceURL: "https://ws-1.example.com"}, Outcome{Kind: KindRedirect, URL: "https://ws-1.example.com"}},
		{"start", core.CreateWorkspaceResult{CreatedWorkspaceID: "ws-1"}, Outcome{Kind: KindStart, WorkspaceID: "ws-1"}},
		{"existing", core.CreateWorkspaceResult{ExistingWorkspaces: []core.WorkspaceInfo{{Workspace: core.Workspace{ID: "ws-0"}}}},
			Outcome{Kind: KindSelectExisting, Existing: []core.WorkspaceInfo{{Workspace: core.Workspace{ID: "ws-0"}}}}},
		{"prebuild", core.CreateWorkspaceResult{RunningWorkspacePrebuild: prebuild}, Outcome{Kind: KindRunningPrebuild, Prebuild: prebuild}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := tc.res
			svc := &fakeService{res: &res}
			out, err := New(svc, zap.NewNop()).Create(context.Background(), " https://github.com/acme/app ")
			require.NoError(t, err)
			assert.Equal(t, tc.want, *out)
			assert.Equal(t, core.CreateWorkspaceOptions{ContextURL: "https://github.com/acme/app", Mode: core.CreateModeSelectIfRunning}, svc.got)
		})
	}
}

func TestCreate_EmptyResult(t *testing.T) {
	_, err := New(&fakeService{res: &core.CreateWorkspaceResult{}}, zap.NewNop()).Create(context.Background(), "https://github.com/acme/app")
	assert.ErrorIs(t, err, core.NewAppError(core.ErrRequestFailure, ""))
}

func TestCreate_ErrorCopy(t *testing.T) {
	data := json.RawMessage(`{"host":"github.com"}`)
	cases := []struct {
		rpcCode int
		code    core.ErrorCode
		msg     string
	}{
		{core.RPCContextParse, core.ErrContextParse, "Unrecognized context: 'gh:nope'"},
		{core.RPCNotFound, core.ErrNotFound, "Not found: gh:nope"},
		{500, core.ErrRequestFailure, "internal"},
	}
	for _, tc := range cases {
		svc := &fakeService{err: core.NewRequestFailure(tc.rpcCode, "internal", data)}
		_, err := New(svc, zap.NewNop()).Create(context.Background(), "gh:nope")
		appErr := core.AsAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, tc.code, appErr.Code)
		assert.Equal(t, tc.msg, appErr.Message)
		assert.Equal(t, tc.rpcCode, appErr.RPCCode)
		assert.JSONEq(t, string(data), string(appErr.Data))
	}
}

func TestCreate_RequiresContext(t *testing.T) {
	svc := &fakeService{}
	_, err := New(svc, zap.NewNop()).Create(context.Background(), "  ")
	assert.ErrorIs(t, err, core.NewAppError(core.ErrBadRequest, ""))
	assert.Empty(t, svc.got.ContextURL)
}
