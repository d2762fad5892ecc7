package core

// InstancePhase is the lifecycle stage reported by the remote service.
type InstancePhase string

const (
	PhaseUnknown      InstancePhase = "unknown"
	PhasePreparing    InstancePhase = "preparing"
	PhasePending      InstancePhase = "pending"
	PhaseCreating     InstancePhase = "creating"
	PhaseInitializing InstancePhase = "initializing"
	PhaseRunning      InstancePhase = "running"
	PhaseInterrupted  InstancePhase = "interrupted"
	PhaseStopping     InstancePhase = "stopping"
	PhaseStopped      InstancePhase = "stopped"
)

// StartPhase is what a start session displays.
type StartPhase string

const (
	StartChecking  StartPhase = "Checking"
	StartPreparing StartPhase = "Preparing"
	StartBuilding  StartPhase = "Building"
	StartStarting  StartPhase = "Starting"
	StartRunning   StartPhase = "Running"
	StartUnknown   StartPhase = "Unknown"
)

type phaseEntry struct {
	ui      StartPhase
	keep    bool
	message string
	rank    int
}

var phaseTable = map[InstancePhase]phaseEntry{
	PhaseUnknown:      {ui: StartChecking, rank: -1},
	PhasePreparing:    {ui: StartBuilding, message: "Building Image …", rank: 1},
	PhasePending:      {ui: StartPreparing, message: "Allocating Resources …", rank: 2},
	PhaseCreating:     {ui: StartPreparing, message: "Pulling Container Image …", rank: 3},
	PhaseInitializing: {ui: StartStarting, message: "Cloning Repository …", rank: 4},
	PhaseRunning:      {ui: StartRunning, message: "Opening IDE …", rank: 5},
	PhaseInterrupted:  {ui: StartRunning, message: "Checking On Workspace …", rank: 5},
	PhaseStopping:     {keep: true, message: "Stopping …", rank: 6},
	PhaseStopped:      {keep: true, message: "Stopped", rank: 7},
}

// PhaseView is the display outcome of a remote phase.
type PhaseView struct {
	// Phase is empty when the current display phase must be kept.
	Phase      StartPhase
	Message    string
	Recognized bool
}

// View maps p onto its display phase and status line.
func (p InstancePhase) View() PhaseView {
	e, ok := phaseTable[p]
	if !ok {
		return PhaseView{Phase: StartUnknown}
	}
	v := PhaseView{Message: e.message, Recognized: true}
	if !e.keep {
		v.Phase = e.ui
	}
	return v
}

// Rank orders phases along the instance lifecycle. Unknown and unrecognized
// phases rank -1 and never count as a regression.
func (p InstancePhase) Rank() int {
	if e, ok := phaseTable[p]; ok {
		return e.rank
	}
	return -1
}

func (p InstancePhase) Known() bool {
	_, ok := phaseTable[p]
	return ok
}
