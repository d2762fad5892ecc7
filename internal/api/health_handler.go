package api

import (
	"net/http"
)

type readiness struct {
	Status   string `json:"status"`
	Remote   bool   `json:"remote_connected"`
	Sessions int    `json:"mounted_sessions"`
}

// HealthHandler returns 200 while the process serves requests.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ReadyHandler reports ready once the remote service channel is up. Start
// sessions keep running through a reconnect, so they do not count against it.
func (a *API) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	st := readiness{Status: "ready", Sessions: len(a.mounted)}
	a.mu.Unlock()

	st.Remote = a.remote != nil && a.remote.Connected()
	if !st.Remote {
		st.Status = "remote service unavailable"
		WriteJSON(w, http.StatusServiceUnavailable, st)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}
