package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/api/middleware"
	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/logrelay"
)

// StreamLogs relays the log stream of a workspace or instance id as text
// frames. A newer stream for the same id ends this one.
func (a *API) StreamLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	src, err := logrelay.ParseSource(r.URL.Query().Get("source"))
	if err != nil {
		WriteError(w, core.AsAppError(err))
		return
	}
	log := middleware.Log(a.log, r).With(zap.String("log_id", id), zap.String("source", string(src)))

	st, err := a.logs.Subscribe(r.Context(), src, id)
	if err != nil {
		log.Warn("log subscribe failed", zap.Error(err))
		WriteError(w, core.AsAppError(err))
		return
	}
	defer st.Close()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("logs upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	defer middleware.StreamOpened(r)()

	// Nothing is read from the client; this only watches for it going away.
	ctx := conn.CloseRead(r.Context())

	for {
		chunk, err := st.Next(ctx)
		switch {
		case errors.Is(err, logrelay.ErrSuperseded):
			conn.Close(websocket.StatusGoingAway, "superseded")
			return
		case err != nil:
			if !errors.Is(err, context.Canceled) {
				log.Debug("log stream ended", zap.Error(err))
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = conn.Write(wctx, websocket.MessageText, []byte(chunk))
		cancel()
		if err != nil {
			return
		}
	}
}
