package startsession

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lzjever/mbos-dash/internal/core"
)

func instance(id, wsid string, phase core.InstancePhase) core.WorkspaceInstance {
	return core.WorkspaceInstance{ID: id, WorkspaceID: wsid, Status: core.InstanceStatus{Phase: phase}}
}

// started returns a session that has a start result for instance i-1.
func started(t *testing.T) State {
	t.Helper()
	s, effects := Step(Initial("ws-1"), StartRequested{})
	require.Len(t, effects, 1)
	s, effects = Step(s, StartSucceeded{Attempt: s.Attempt, Result: core.StartWorkspaceResult{InstanceID: "i-1"}})
	require.Equal(t, []Effect{FetchWorkspace{Attempt: 1, WorkspaceID: "ws-1"}}, effects)
	return s
}

func TestStep_StartGuard(t *testing.T) {
	s, effects := Step(Initial("ws-1"), StartRequested{ForceDefaultImage: true})
	require.Equal(t, []Effect{StartWorkspace{Attempt: 1, WorkspaceID: "ws-1", ForceDefaultImage: true}}, effects)

	again, effects := Step(s, StartRequested{})
	assert.Empty(t, effects, "in-flight start must suppress a second one")
	assert.Equal(t, s, again)

	s = started(t)
	_, effects = Step(s, StartRequested{})
	assert.Empty(t, effects, "started instance must suppress a second start")
}

func TestStep_RestartResets(t *testing.T) {
	s := started(t)
	s, _ = Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", core.PhaseStopped)})
	s.Error = core.NewAppError(core.ErrRequestFailure, "boom")

	s, effects := Step(s, StartRequested{Restart: true})
	require.Equal(t, []Effect{StartWorkspace{Attempt: 2, WorkspaceID: "ws-1"}}, effects)
	assert.Empty(t, s.StartedInstanceID)
	assert.Nil(t, s.Error)
	assert.Nil(t, s.Instance)
	assert.Equal(t, core.StartChecking, s.Phase)
}

func TestStep_StaleStartResultDropped(t *testing.T) {
	s, _ := Step(Initial("ws-1"), StartRequested{})
	s, _ = Step(s, StartRequested{Restart: true})

	next, effects := Step(s, StartSucceeded{Attempt: 1, Result: core.StartWorkspaceResult{InstanceID: "i-old"}})
	assert.Empty(t, effects)
	assert.Equal(t, s, next)
}

func TestStep_StartFailureHalts(t *testing.T) {
	s, _ := Step(Initial("ws-1"), StartRequested{})
	failure := core.NewRequestFailure(500, "no capacity", json.RawMessage(`{"retry":true}`))
	s, effects := Step(s, StartFailed{Attempt: 1, Err: failure})
	assert.Empty(t, effects)
	assert.Equal(t, failure, s.Error)
	assert.Equal(t, core.StartChecking, s.Phase)

	_, effects = Step(s, StartRequested{})
	assert.NotEmpty(t, effects, "user retry after a failed start must be allowed")
}

func TestStep_MismatchedUpdatesLeaveStateUnchanged(t *testing.T) {
	s := started(t)
	s, _ = Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", core.PhasePending)})

	for _, inst := range []core.WorkspaceInstance{
		instance("i-1", "ws-2", core.PhaseRunning),
		instance("i-0", "ws-1", core.PhaseRunning),
		instance("", "", core.PhaseStopped),
		instance("i-2", "ws-9", "bogus"),
	} {
		next, effects := Step(s, InstanceUpdated{Instance: inst})
		assert.Equal(t, s, next)
		assert.Empty(t, effects)
	}
}

func TestStep_UpdatesBeforeStartResultIgnored(t *testing.T) {
	s, _ := Step(Initial("ws-1"), StartRequested{})
	next, effects := Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", core.PhaseRunning)})
	assert.Equal(t, s, next)
	assert.Empty(t, effects)
}

func TestStep_PhaseMapping(t *testing.T) {
	s := started(t)
	steps := []struct {
		phase   core.InstancePhase
		display core.StartPhase
	}{
		{core.PhasePreparing, core.StartBuilding},
		{core.PhasePending, core.StartPreparing},
		{core.PhaseCreating, core.StartPreparing},
		{core.PhaseInitializing, core.StartStarting},
		{core.PhaseRunning, core.StartRunning},
		{core.PhaseInterrupted, core.StartRunning},
		{core.PhaseStopping, core.StartRunning},
		{core.PhaseStopped, core.StartRunning},
	}
	for _, st := range steps {
		s, _ = Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", st.phase)})
		assert.Equal(t, st.display, s.Phase, "phase %s", st.phase)
	}
	assert.Equal(t, "Stopped", s.Message)
}

func TestStep_UnknownPhase(t *testing.T) {
	s := started(t)
	s, effects := Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", core.PhaseUnknown)})
	assert.Equal(t, core.StartChecking, s.Phase)
	assert.Nil(t, s.Error)
	assert.Equal(t, []Effect{Bootstrap{InstanceID: "i-1"}}, effects)
}

func TestStep_UnrecognizedPhaseSetsErrorOnce(t *testing.T) {
	s := started(t)
	s, effects := Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", "hibernating")})
	assert.Equal(t, core.StartUnknown, s.Phase)
	require.NotNil(t, s.Error)
	assert.Equal(t, core.ErrUnexpectedPhase, s.Error.Code)
	assert.Empty(t, effects)

	existing := core.NewAppError(core.ErrRequestFailure, "earlier failure")
	s.Error = existing
	s, _ = Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", "frozen")})
	assert.Equal(t, existing, s.Error, "an existing error must be preserved")
	assert.Equal(t, core.StartUnknown, s.Phase)
}

func TestStep_StaleSnapshotDoesNotRegress(t *testing.T) {
	s := started(t)
	s, _ = Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", core.PhaseRunning)})

	next, effects := Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", core.PhasePending)})
	assert.Equal(t, s, next)
	assert.Empty(t, effects)

	next, _ = Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", core.PhaseUnknown)})
	assert.Equal(t, core.StartChecking, next.Phase, "unknown is always applied")
}

func TestStep_FetchRacesPush(t *testing.T) {
	s := started(t)
	pushed := instance("i-1", "ws-1", core.PhaseInitializing)
	s, _ = Step(s, InstanceUpdated{Instance: pushed})

	older := instance("i-1", "ws-1", core.PhasePreparing)
	next, effects := Step(s, WorkspaceFetched{Attempt: 1, Info: core.WorkspaceInfo{
		Workspace:      core.Workspace{ID: "ws-1", ContextURL: "https://github.com/acme/app"},
		LatestInstance: &older,
	}})
	assert.Equal(t, core.StartStarting, next.Phase)
	assert.Equal(t, "https://github.com/acme/app", next.ContextURL)
	assert.Empty(t, effects)
}

func TestStep_BootstrapBeforeRedirect(t *testing.T) {
	s := started(t)
	running := instance("i-1", "ws-1", core.PhaseRunning)
	running.IDEURL = "https://i-1.ws.example.com"

	s, effects := Step(s, InstanceUpdated{Instance: running})
	assert.Equal(t, []Effect{Bootstrap{InstanceID: "i-1"}}, effects)

	s, effects = Step(s, BootstrapCompleted{InstanceID: "i-1", Satisfied: true})
	assert.Equal(t, []Effect{Redirect{URL: "https://i-1.ws.example.com"}}, effects)

	_, effects = Step(s, InstanceUpdated{Instance: running})
	assert.Empty(t, effects, "redirect must happen once")
}

func TestStep_InterruptedDoesNotRedirect(t *testing.T) {
	s := started(t)
	inst := instance("i-1", "ws-1", core.PhaseInterrupted)
	inst.IDEURL = "https://i-1.ws.example.com"
	s, _ = Step(s, InstanceUpdated{Instance: inst})
	_, effects := Step(s, BootstrapCompleted{InstanceID: "i-1", Satisfied: true})
	assert.Empty(t, effects)
}

func TestStep_BootstrapNavigate(t *testing.T) {
	s := started(t)
	s, _ = Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", core.PhasePending)})
	s, effects := Step(s, BootstrapCompleted{InstanceID: "i-1", Navigate: "https://gitpod.example.com/login"})
	assert.Equal(t, []Effect{Redirect{URL: "https://gitpod.example.com/login"}}, effects)
	assert.False(t, s.Bootstrapped)
}

func TestStep_BootstrapFailureHaltsKeepsPhase(t *testing.T) {
	s := started(t)
	running := instance("i-1", "ws-1", core.PhaseRunning)
	running.IDEURL = "https://i-1.ws.example.com"
	s, _ = Step(s, InstanceUpdated{Instance: running})

	s, effects := Step(s, BootstrapFailed{InstanceID: "i-1", Err: core.NewAppError(core.ErrRequestFailure, "403")})
	assert.Empty(t, effects)
	assert.Equal(t, core.StartRunning, s.Phase)
	assert.Equal(t, "Opening IDE …", s.Message)

	_, effects = Step(s, BootstrapCompleted{InstanceID: "i-1", Satisfied: true})
	assert.Empty(t, effects, "halted session must not redirect")
}

func TestStep_PreparingWatchesBuildLogsOnce(t *testing.T) {
	s := started(t)
	s, effects := Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", core.PhasePreparing)})
	assert.Contains(t, effects, Effect(WatchImageBuildLogs{WorkspaceID: "ws-1"}))

	_, effects = Step(s, InstanceUpdated{Instance: instance("i-1", "ws-1", core.PhasePreparing)})
	assert.Empty(t, effects)
}

func TestStep_ParentState(t *testing.T) {
	s, _ := Step(Initial("ws-1"), ParentStateReceived{State: json.RawMessage(`{"ideFrontendFailureCause":"extension host crashed"}`)})
	assert.Equal(t, "extension host crashed", s.IDEFrontendFailureCause)

	next, _ := Step(s, ParentStateReceived{State: json.RawMessage(`not json`)})
	assert.Equal(t, s, next)
}
