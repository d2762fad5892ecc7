package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/api/middleware"
	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/startsession"
)

const writeTimeout = 10 * time.Second

type StartRequest struct {
	Restart           bool `json:"restart"`
	ForceDefaultImage bool `json:"force_default_image"`
}

type SessionView struct {
	SessionID               string         `json:"session_id"`
	WorkspaceID             string         `json:"workspace_id"`
	ContextURL              string         `json:"context_url,omitempty"`
	Phase                   string         `json:"phase"`
	Message                 string         `json:"message,omitempty"`
	InstanceID              string         `json:"instance_id,omitempty"`
	InstancePhase           string         `json:"instance_phase,omitempty"`
	IDEURL                  string         `json:"ide_url,omitempty"`
	RedirectedTo            string         `json:"redirected_to,omitempty"`
	IDEFrontendFailureCause string         `json:"ide_frontend_failure_cause,omitempty"`
	Error                   *ErrorResponse `json:"error,omitempty"`
	StatusHref              string         `json:"status_href"`
}

// eventFrame is sent to the embedding parent over the events socket.
type eventFrame struct {
	Type  string       `json:"type"`
	URL   string       `json:"url,omitempty"`
	State *SessionView `json:"state,omitempty"`
}

// mounted is a start session the gateway embeds. Its ParentChannel stands
// in for the embedding page.
type mounted struct {
	sess   *startsession.Session
	parent *startsession.ParentChannel
	cancel context.CancelFunc
}

func sessionHref(wsid string) string {
	return "/v1/workspaces/" + wsid + "/session"
}

func viewOf(id string, st startsession.State) SessionView {
	v := SessionView{
		SessionID:               id,
		WorkspaceID:             st.WorkspaceID,
		ContextURL:              st.ContextURL,
		Phase:                   string(st.Phase),
		Message:                 st.Message,
		InstanceID:              st.StartedInstanceID,
		RedirectedTo:            st.RedirectedTo,
		IDEFrontendFailureCause: st.IDEFrontendFailureCause,
		Error:                   errorResponse(st.Error),
		StatusHref:              sessionHref(st.WorkspaceID),
	}
	if st.Instance != nil {
		v.InstancePhase = string(st.Instance.Status.Phase)
		v.IDEURL = st.Instance.IDEURL
	}
	return v
}

func (m *mounted) view() SessionView {
	return viewOf(m.sess.ID, m.sess.Snapshot())
}

// mount returns the live session for wsid, starting one if needed.
func (a *API) mount(wsid string, forceDefaultImage bool) (*mounted, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if m, ok := a.mounted[wsid]; ok {
		select {
		case <-m.sess.Done():
			delete(a.mounted, wsid)
		default:
			return m, false
		}
	}

	parent := startsession.NewParentChannel()
	sess := startsession.New(a.remote, a.boot, startsession.Options{
		WorkspaceID:       wsid,
		ForceDefaultImage: forceDefaultImage,
		Parent:            parent,
		RequestTimeout:    a.reqTimeout,
	}, a.log)
	ctx, cancel := context.WithCancel(context.Background())
	m := &mounted{sess: sess, parent: parent, cancel: cancel}
	a.mounted[wsid] = m
	go func() { _ = sess.Run(ctx) }()
	return m, true
}

func (a *API) lookup(wsid string) *mounted {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mounted[wsid]
}

func (a *API) unmount(wsid string) bool {
	a.mu.Lock()
	m, ok := a.mounted[wsid]
	delete(a.mounted, wsid)
	a.mu.Unlock()
	if !ok {
		return false
	}
	m.cancel()
	<-m.sess.Done()
	return true
}

// Close unmounts every session.
func (a *API) Close() {
	a.mu.Lock()
	ids := make([]string, 0, len(a.mounted))
	for id := range a.mounted {
		ids = append(ids, id)
	}
	a.mu.Unlock()
	for _, id := range ids {
		a.unmount(id)
	}
}

// StartWorkspace mounts a start session for the workspace, or asks the
// mounted one to start again.
func (a *API) StartWorkspace(w http.ResponseWriter, r *http.Request) {
	wsid := chi.URLParam(r, "wsid")

	var req StartRequest
	if appErr := decodeBody(r, &req); appErr != nil {
		WriteError(w, appErr)
		return
	}

	m, created := a.mount(wsid, req.ForceDefaultImage)
	if !created {
		m.sess.Start(req.Restart, req.ForceDefaultImage)
	}
	middleware.Log(a.log, r).Info("start requested",
		zap.String("workspace_id", wsid),
		zap.String("session_id", m.sess.ID),
		zap.Bool("mounted", created),
		zap.Bool("restart", req.Restart),
	)
	WriteAccepted(w, m.view(), sessionHref(wsid))
}

func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	m := a.lookup(chi.URLParam(r, "wsid"))
	if m == nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "no start session for workspace"))
		return
	}
	WriteJSON(w, http.StatusOK, m.view())
}

// DeleteSession unmounts the session. Requests it still has in flight are
// abandoned.
func (a *API) DeleteSession(w http.ResponseWriter, r *http.Request) {
	wsid := chi.URLParam(r, "wsid")
	if !a.unmount(wsid) {
		WriteError(w, core.NewAppError(core.ErrNotFound, "no start session for workspace"))
		return
	}
	middleware.Log(a.log, r).Info("start session unmounted", zap.String("workspace_id", wsid))
	w.WriteHeader(http.StatusNoContent)
}

// SessionEvents speaks the embedding protocol over a websocket: relocate
// and state frames go out, setState frames come in.
func (a *API) SessionEvents(w http.ResponseWriter, r *http.Request) {
	wsid := chi.URLParam(r, "wsid")
	m := a.lookup(wsid)
	if m == nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "no start session for workspace"))
		return
	}
	log := middleware.Log(a.log, r).With(zap.String("workspace_id", wsid))

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("events upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	defer middleware.StreamOpened(r)()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	relocate := make(chan string, 4)
	changed := make(chan struct{}, 1)
	unsubscribe := m.parent.Subscribe(func(msg startsession.ParentMessage) {
		if msg.Type != startsession.MessageRelocate {
			return
		}
		select {
		case relocate <- msg.URL:
		default:
		}
	})
	defer unsubscribe()
	unwatch := m.sess.Watch(func(startsession.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unwatch()

	go func() {
		defer cancel()
		for {
			var msg startsession.ParentMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			if msg.Type == startsession.MessageSetState {
				m.parent.Deliver(msg)
			}
		}
	}()

	for {
		var frame eventFrame
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-m.sess.Done():
			conn.Close(websocket.StatusGoingAway, "session unmounted")
			return
		case url := <-relocate:
			frame = eventFrame{Type: startsession.MessageRelocate, URL: url}
		case <-changed:
			view := m.view()
			frame = eventFrame{Type: "state", State: &view}
		}
		if err := writeFrame(ctx, conn, frame); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("events write failed", zap.Error(err))
			}
			return
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
