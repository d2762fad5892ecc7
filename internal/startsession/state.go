// Package startsession drives a workspace from "start requested" to "user
// is in the IDE". Step is a pure transition function; Session runs the
// effects it returns.
package startsession

import (
	"encoding/json"

	"github.com/lzjever/mbos-dash/internal/core"
)

// State is the full display and bookkeeping state of one start session.
type State struct {
	WorkspaceID string          `json:"workspace_id"`
	ContextURL  string          `json:"context_url,omitempty"`
	Phase       core.StartPhase `json:"phase"`
	Message     string          `json:"message,omitempty"`
	// StartedInstanceID is set once per start and only cleared by a restart.
	StartedInstanceID string                  `json:"started_instance_id,omitempty"`
	WorkspaceURL      string                  `json:"workspace_url,omitempty"`
	Instance          *core.WorkspaceInstance `json:"instance,omitempty"`
	Error             *core.AppError          `json:"error,omitempty"`
	// IDEFrontendFailureCause is set by the embedding parent.
	IDEFrontendFailureCause string `json:"ide_frontend_failure_cause,omitempty"`

	Starting bool `json:"starting"`
	// Attempt numbers accepted starts so results of an abandoned attempt
	// can be told apart.
	Attempt int `json:"attempt"`
	// BootstrapInstanceID is the instance the auth cookie was requested for;
	// Bootstrapped marks it satisfied.
	BootstrapInstanceID string `json:"bootstrap_instance_id,omitempty"`
	Bootstrapped        bool   `json:"bootstrapped"`
	LogsWatchedFor      string `json:"logs_watched_for,omitempty"`
	RedirectedTo        string `json:"redirected_to,omitempty"`
}

// Initial is the state of a freshly mounted session.
func Initial(workspaceID string) State {
	return State{WorkspaceID: workspaceID, Phase: core.StartChecking}
}

// Halted reports whether automatic progression stopped on an error.
func (s State) Halted() bool {
	return s.Error != nil
}

// Event is anything Step reacts to.
type Event interface {
	event()
}

type StartRequested struct {
	Restart           bool
	ForceDefaultImage bool
}

type StartSucceeded struct {
	Attempt int
	Result  core.StartWorkspaceResult
}

type StartFailed struct {
	Attempt int
	Err     *core.AppError
}

type WorkspaceFetched struct {
	Attempt int
	Info    core.WorkspaceInfo
}

type FetchFailed struct {
	Attempt int
	Err     *core.AppError
}

type InstanceUpdated struct {
	Instance core.WorkspaceInstance
}

// BootstrapCompleted reports the auth-cookie outcome for InstanceID. When
// Navigate is set the service wants the user sent there first.
type BootstrapCompleted struct {
	InstanceID string
	Satisfied  bool
	Navigate   string
}

type BootstrapFailed struct {
	InstanceID string
	Err        *core.AppError
}

// ParentStateReceived carries a setState message from the embedding parent.
type ParentStateReceived struct {
	State json.RawMessage
}

func (StartRequested) event()      {}
func (StartSucceeded) event()      {}
func (StartFailed) event()         {}
func (WorkspaceFetched) event()    {}
func (FetchFailed) event()         {}
func (InstanceUpdated) event()     {}
func (BootstrapCompleted) event()  {}
func (BootstrapFailed) event()     {}
func (ParentStateReceived) event() {}

// Effect is a side effect requested by Step.
type Effect interface {
	effect()
}

type StartWorkspace struct {
	Attempt           int
	WorkspaceID       string
	ForceDefaultImage bool
}

type FetchWorkspace struct {
	Attempt     int
	WorkspaceID string
}

type Bootstrap struct {
	InstanceID string
}

type WatchImageBuildLogs struct {
	WorkspaceID string
}

// Redirect sends the user to URL: a relocate message to the parent when
// embedded, a navigation otherwise.
type Redirect struct {
	URL string
}

func (StartWorkspace) effect()      {}
func (FetchWorkspace) effect()      {}
func (Bootstrap) effect()           {}
func (WatchImageBuildLogs) effect() {}
func (Redirect) effect()            {}
