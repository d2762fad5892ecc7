package startsession

import (
	"encoding/json"

	"github.com/lzjever/mbos-dash/internal/core"
)

// Step applies ev to s. It never performs I/O; the returned effects are
// for the caller to run, and their results come back as events.
func Step(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case StartRequested:
		return requestStart(s, e)

	case StartSucceeded:
		if !s.Starting || e.Attempt != s.Attempt {
			return s, nil
		}
		s.Starting = false
		s.StartedInstanceID = e.Result.InstanceID
		s.WorkspaceURL = e.Result.WorkspaceURL
		// The instance may already be running and never push again.
		return s, []Effect{FetchWorkspace{Attempt: s.Attempt, WorkspaceID: s.WorkspaceID}}

	case StartFailed:
		if !s.Starting || e.Attempt != s.Attempt {
			return s, nil
		}
		s.Starting = false
		s.Error = e.Err
		return s, nil

	case WorkspaceFetched:
		if e.Attempt != s.Attempt {
			return s, nil
		}
		if e.Info.Workspace.ContextURL != "" {
			s.ContextURL = e.Info.Workspace.ContextURL
		}
		if e.Info.LatestInstance == nil {
			return s, nil
		}
		return applyInstance(s, *e.Info.LatestInstance)

	case FetchFailed:
		if e.Attempt != s.Attempt {
			return s, nil
		}
		s.Error = e.Err
		return s, nil

	case InstanceUpdated:
		return applyInstance(s, e.Instance)

	case BootstrapCompleted:
		if e.InstanceID != s.BootstrapInstanceID || s.Halted() {
			return s, nil
		}
		if e.Navigate != "" {
			if s.RedirectedTo != "" {
				return s, nil
			}
			s.RedirectedTo = e.Navigate
			return s, []Effect{Redirect{URL: e.Navigate}}
		}
		if !e.Satisfied {
			return s, nil
		}
		s.Bootstrapped = true
		return maybeRedirect(s)

	case BootstrapFailed:
		if e.InstanceID != s.BootstrapInstanceID {
			return s, nil
		}
		s.Error = e.Err
		return s, nil

	case ParentStateReceived:
		var patch struct {
			IDEFrontendFailureCause *string `json:"ideFrontendFailureCause"`
		}
		if err := json.Unmarshal(e.State, &patch); err != nil {
			return s, nil
		}
		if patch.IDEFrontendFailureCause != nil {
			s.IDEFrontendFailureCause = *patch.IDEFrontendFailureCause
		}
		return s, nil
	}
	return s, nil
}

func requestStart(s State, e StartRequested) (State, []Effect) {
	if !e.Restart && (s.Starting || s.StartedInstanceID != "") {
		return s, nil
	}
	if e.Restart {
		s = State{
			WorkspaceID: s.WorkspaceID,
			ContextURL:  s.ContextURL,
			Phase:       core.StartChecking,
			Attempt:     s.Attempt,
		}
	}
	s.Attempt++
	s.Starting = true
	s.Error = nil
	return s, []Effect{StartWorkspace{
		Attempt:           s.Attempt,
		WorkspaceID:       s.WorkspaceID,
		ForceDefaultImage: e.ForceDefaultImage,
	}}
}

// applyInstance handles one full instance snapshot. Snapshots for another
// workspace or instance, and snapshots older than what is displayed, leave
// the state untouched.
func applyInstance(s State, inst core.WorkspaceInstance) (State, []Effect) {
	if inst.WorkspaceID != s.WorkspaceID || s.StartedInstanceID == "" || inst.ID != s.StartedInstanceID {
		return s, nil
	}
	if isStale(s.Instance, inst) {
		return s, nil
	}

	s.Instance = &inst
	view := inst.Status.Phase.View()
	if view.Phase != "" {
		s.Phase = view.Phase
	}
	s.Message = view.Message
	if !view.Recognized && s.Error == nil {
		s.Error = core.UnexpectedPhaseError(inst.Status.Phase)
	}
	if s.Halted() {
		return s, nil
	}

	var effects []Effect
	if s.BootstrapInstanceID != inst.ID {
		s.BootstrapInstanceID = inst.ID
		s.Bootstrapped = false
		effects = append(effects, Bootstrap{InstanceID: inst.ID})
	}
	if inst.Status.Phase == core.PhasePreparing && s.LogsWatchedFor != inst.ID {
		s.LogsWatchedFor = inst.ID
		effects = append(effects, WatchImageBuildLogs{WorkspaceID: s.WorkspaceID})
	}
	s, redirect := maybeRedirect(s)
	return s, append(effects, redirect...)
}

func isStale(prev *core.WorkspaceInstance, next core.WorkspaceInstance) bool {
	if prev == nil || prev.ID != next.ID {
		return false
	}
	r := next.Status.Phase.Rank()
	return r >= 0 && r < prev.Status.Phase.Rank()
}

// maybeRedirect redirects once the instance runs with an IDE URL and the
// auth cookie is in place. It fires at most once per start.
func maybeRedirect(s State) (State, []Effect) {
	if s.RedirectedTo != "" || s.Halted() || !s.Bootstrapped || s.Instance == nil {
		return s, nil
	}
	if s.Instance.Status.Phase != core.PhaseRunning || s.Instance.IDEURL == "" {
		return s, nil
	}
	s.RedirectedTo = s.Instance.IDEURL
	return s, []Effect{Redirect{URL: s.Instance.IDEURL}}
}
