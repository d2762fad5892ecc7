package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/api/middleware"
	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/handshake"
)

type AuthorizeRequest struct {
	Host   string   `json:"host"`
	Scopes []string `json:"scopes,omitempty"`
	Login  bool     `json:"login,omitempty"`
}

type ConnectRequest struct {
	Scopes []string `json:"scopes,omitempty"`
}

// Authorize runs one handshake and replies with its outcome. The request
// stays open until the window reports back, closes or times out.
func (a *API) Authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		WriteError(w, appErr)
		return
	}
	if req.Host == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "host is required"))
		return
	}
	log := middleware.Log(a.log, r).With(zap.String("host", req.Host))

	sess, err := a.auth.Open(r.Context(), handshake.Request{Host: req.Host, Scopes: req.Scopes, Login: req.Login})
	if err != nil {
		WriteError(w, core.AsAppError(err))
		return
	}
	if err := sess.Wait(r.Context()); err != nil {
		log.Info("authorization failed", zap.Error(err))
		WriteError(w, core.AsAppError(err))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "authorized", "host": req.Host})
}

func (a *API) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := a.integrations.List(r.Context())
	if err != nil {
		middleware.Log(a.log, r).Error("list providers failed", zap.Error(err))
		WriteError(w, core.AsAppError(err))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"providers": providers})
}

func (a *API) ConnectProvider(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		WriteError(w, appErr)
		return
	}
	host := chi.URLParam(r, "host")
	if err := a.integrations.Connect(r.Context(), host, req.Scopes); err != nil {
		WriteError(w, core.AsAppError(err))
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "connected", "host": host})
}

func (a *API) DisconnectProvider(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	if err := a.integrations.Disconnect(r.Context(), host); err != nil {
		WriteError(w, core.AsAppError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
