// Package creator creates workspaces from a context URL and classifies the
// result into what the caller should do next.
package creator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
)

type Service interface {
	CreateWorkspace(ctx context.Context, opts core.CreateWorkspaceOptions) (*core.CreateWorkspaceResult, error)
}

type Kind string

const (
	KindRedirect        Kind = "redirect"
	KindStart           Kind = "start"
	KindSelectExisting  Kind = "select-existing"
	KindRunningPrebuild Kind = "running-prebuild"
)

// Outcome is the classified result of a create call. Exactly one of the
// payload fields is set, matching Kind.
type Outcome struct {
	Kind        Kind                  `json:"kind"`
	URL         string                `json:"url,omitempty"`
	WorkspaceID string                `json:"workspace_id,omitempty"`
	Existing    []core.WorkspaceInfo  `json:"existing,omitempty"`
	Prebuild    *core.RunningPrebuild `json:"prebuild,omitempty"`
}

// ContextFromFragment extracts the context URL from a location fragment
// such as "#/https://github.com/acme/app".
func ContextFromFragment(fragment string) string {
	return strings.TrimLeft(fragment, "#/")
}

type Creator struct {
	svc Service
	log *zap.Logger
}

func New(svc Service, log *zap.Logger) *Creator {
	return &Creator{svc: svc, log: log}
}

// Create asks the service for a workspace on contextURL, reusing a running
// one when there is one.
func (c *Creator) Create(ctx context.Context, contextURL string) (*Outcome, error) {
	contextURL = strings.TrimSpace(contextURL)
	if contextURL == "" {
		return nil, core.NewAppError(core.ErrBadRequest, "context url is required")
	}
	log := c.log.With(zap.String("context_url", contextURL))

	res, err := c.svc.CreateWorkspace(ctx, core.CreateWorkspaceOptions{
		ContextURL: contextURL,
		Mode:       core.CreateModeSelectIfRunning,
	})
	if err != nil {
		appErr := describe(core.AsAppError(err), contextURL)
		log.Warn("create workspace failed", zap.String("code", string(appErr.Code)), zap.Error(err))
		return nil, appErr
	}

	out, err := classify(res)
	if err != nil {
		log.Error("unusable create result", zap.Error(err))
		return nil, err
	}
	log.Info("workspace create resolved", zap.String("kind", string(out.Kind)))
	return out, nil
}

func classify(res *core.CreateWorkspaceResult) (*Outcome, error) {
	switch {
	case res == nil:
		return nil, core.NewAppError(core.ErrRequestFailure, "empty create result")
	case res.WorkspaceURL != "":
		return &Outcome{Kind: KindRedirect, URL: res.WorkspaceURL}, nil
	case res.CreatedWorkspaceID != "":
		return &Outcome{Kind: KindStart, WorkspaceID: res.CreatedWorkspaceID}, nil
	case len(res.ExistingWorkspaces) > 0:
		return &Outcome{Kind: KindSelectExisting, Existing: res.ExistingWorkspaces}, nil
	case res.RunningWorkspacePrebuild != nil:
		return &Outcome{Kind: KindRunningPrebuild, Prebuild: res.RunningWorkspacePrebuild}, nil
	}
	return nil, core.NewAppError(core.ErrRequestFailure, "create result carries no outcome")
}

// describe swaps the remote message for user-facing copy on the codes the
// user can act on. RPC code and data are kept.
func describe(err *core.AppError, contextURL string) *core.AppError {
	out := *err
	switch err.Code {
	case core.ErrContextParse:
		out.Message = fmt.Sprintf("Unrecognized context: '%s'", contextURL)
	case core.ErrNotFound:
		out.Message = fmt.Sprintf("Not found: %s", contextURL)
	default:
		return err
	}
	return &out
}
