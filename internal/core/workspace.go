package core

import "time"

type Workspace struct {
	ID          string    `json:"id"`
	ContextURL  string    `json:"contextURL"`
	OwnerID     string    `json:"ownerId,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"creationTime,omitempty"`
}

type InstanceConditions struct {
	Failed  string `json:"failed,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type InstanceStatus struct {
	Phase      InstancePhase      `json:"phase"`
	Conditions InstanceConditions `json:"conditions"`
	Message    string             `json:"message,omitempty"`
}

// WorkspaceInstance is a full snapshot pushed by the remote service. Each
// snapshot replaces the previous one; nothing is merged.
type WorkspaceInstance struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspaceId"`
	IDEURL      string         `json:"ideUrl,omitempty"`
	Status      InstanceStatus `json:"status"`
}

type WorkspaceInfo struct {
	Workspace      Workspace          `json:"workspace"`
	LatestInstance *WorkspaceInstance `json:"latestInstance,omitempty"`
}

type StartWorkspaceOptions struct {
	ForceDefaultImage bool `json:"forceDefaultImage,omitempty"`
}

type StartWorkspaceResult struct {
	InstanceID   string `json:"instanceID"`
	WorkspaceURL string `json:"workspaceURL,omitempty"`
}

type CreateWorkspaceMode string

const (
	CreateModeDefault         CreateWorkspaceMode = "default"
	CreateModeForceNew        CreateWorkspaceMode = "force-new"
	CreateModeUsePrebuild     CreateWorkspaceMode = "use-last-successful-prebuild"
	CreateModeSelectIfRunning CreateWorkspaceMode = "select-if-running"
)

type CreateWorkspaceOptions struct {
	ContextURL string              `json:"contextUrl"`
	Mode       CreateWorkspaceMode `json:"mode,omitempty"`
}

type RunningPrebuild struct {
	PrebuildID  string `json:"prebuildID"`
	WorkspaceID string `json:"workspaceID"`
	Starting    string `json:"starting"`
	SameCluster bool   `json:"sameCluster"`
}

type CreateWorkspaceResult struct {
	WorkspaceURL             string           `json:"workspaceURL,omitempty"`
	CreatedWorkspaceID       string           `json:"createdWorkspaceId,omitempty"`
	ExistingWorkspaces       []WorkspaceInfo  `json:"existingWorkspaces,omitempty"`
	RunningWorkspacePrebuild *RunningPrebuild `json:"runningWorkspacePrebuild,omitempty"`
}

// HeadlessLogEvent carries one chunk of output from a headless (prebuild)
// workspace or an image build.
type HeadlessLogEvent struct {
	WorkspaceID string `json:"workspaceID"`
	InstanceID  string `json:"instanceID,omitempty"`
	Type        string `json:"type,omitempty"`
	Text        string `json:"text"`
}
