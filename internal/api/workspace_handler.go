package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/api/middleware"
	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/creator"
)

type CreateWorkspaceRequest struct {
	ContextURL string `json:"context_url"`
	// Fragment is accepted in place of ContextURL, as in "#/https://...".
	Fragment string `json:"fragment,omitempty"`
	// Start mounts a start session when a new workspace was created.
	Start bool `json:"start,omitempty"`
}

type CreateWorkspaceResponse struct {
	creator.Outcome
	Session *SessionView `json:"session,omitempty"`
}

// CreateWorkspace creates or selects a workspace for a context URL.
func (a *API) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		WriteError(w, appErr)
		return
	}
	contextURL := req.ContextURL
	if contextURL == "" {
		contextURL = creator.ContextFromFragment(req.Fragment)
	}
	if contextURL == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "context_url is required"))
		return
	}

	out, err := a.creator.Create(r.Context(), contextURL)
	if err != nil {
		WriteError(w, core.AsAppError(err))
		return
	}

	resp := CreateWorkspaceResponse{Outcome: *out}
	if req.Start && out.Kind == creator.KindStart {
		m, _ := a.mount(out.WorkspaceID, false)
		view := m.view()
		resp.Session = &view
		middleware.Log(a.log, r).Info("created workspace mounted",
			zap.String("workspace_id", out.WorkspaceID), zap.String("session_id", m.sess.ID))
	}
	WriteJSON(w, http.StatusOK, resp)
}
