// Package logrelay turns pushed log events into per-id text streams.
package logrelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/protocol"
)

type Source string

const (
	SourceHeadless   Source = "headless"
	SourceImageBuild Source = protocol.ImageBuildLogSource
)

func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case "", SourceHeadless:
		return SourceHeadless, nil
	case SourceImageBuild:
		return SourceImageBuild, nil
	}
	return "", core.NewAppError(core.ErrBadRequest, fmt.Sprintf("unknown log source %q", s))
}

var (
	ErrSuperseded = errors.New("logrelay: superseded by a newer subscription")
	ErrClosed     = errors.New("logrelay: stream closed")
)

// Service is the part of the remote service the relay needs.
type Service interface {
	WatchHeadlessWorkspaceLogs(ctx context.Context, workspaceID string) error
	WatchWorkspaceImageBuildLogs(ctx context.Context, workspaceID string) error
	RegisterClient(h protocol.ClientHandlers) protocol.Disposable
}

const rewatchTimeout = 10 * time.Second

// Relay keeps at most one live Stream per workspace or instance id.
type Relay struct {
	// Sink receives image build logs opened through WatchImageBuildLogs.
	// Nil discards them.
	Sink io.Writer

	svc Service
	log *zap.Logger

	mu     sync.Mutex
	active map[string]*Stream
}

func New(svc Service, log *zap.Logger) *Relay {
	return &Relay{svc: svc, log: log, active: make(map[string]*Stream)}
}

// Subscribe opens a stream of chunks for id, superseding any stream already
// open for it. The watch call is issued again after every reconnect.
func (r *Relay) Subscribe(ctx context.Context, src Source, id string) (*Stream, error) {
	if id == "" {
		return nil, core.NewAppError(core.ErrBadRequest, "log stream id is required")
	}
	st := newStream(r, src, id)

	onChunk := func(ev core.HeadlessLogEvent) {
		if ev.WorkspaceID != id && ev.InstanceID != id {
			return
		}
		st.push(ev.Text)
	}
	h := protocol.ClientHandlers{
		OnDidOpenConnection: func() {
			go func() {
				rctx, cancel := context.WithTimeout(context.Background(), rewatchTimeout)
				defer cancel()
				if err := r.watch(rctx, src, id); err != nil {
					st.log.Warn("re-watch after reconnect failed", zap.Error(err))
				}
			}()
		},
	}
	if src == SourceImageBuild {
		h.OnWorkspaceImageBuildLogs = onChunk
	} else {
		h.OnHeadlessWorkspaceLogs = onChunk
	}

	r.mu.Lock()
	old := r.active[id]
	r.active[id] = st
	r.mu.Unlock()
	if old != nil {
		old.end(ErrSuperseded)
	}
	st.setSubscription(r.svc.RegisterClient(h))

	if err := r.watch(ctx, src, id); err != nil {
		st.end(err)
		return nil, err
	}
	st.log.Debug("log stream opened")
	return st, nil
}

// WatchImageBuildLogs opens an image build stream for a workspace and copies
// it to Sink until superseded or the relay is closed.
func (r *Relay) WatchImageBuildLogs(ctx context.Context, workspaceID string) error {
	st, err := r.Subscribe(ctx, SourceImageBuild, workspaceID)
	if err != nil {
		return err
	}
	sink := r.Sink
	if sink == nil {
		sink = io.Discard
	}
	go func() {
		if err := st.CopyTo(context.Background(), sink); err != nil && !errors.Is(err, ErrSuperseded) {
			st.log.Warn("image build log copy stopped", zap.Error(err))
		}
	}()
	return nil
}

// Active reports whether a stream is open for id.
func (r *Relay) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// Close ends every open stream.
func (r *Relay) Close() {
	r.mu.Lock()
	streams := make([]*Stream, 0, len(r.active))
	for _, st := range r.active {
		streams = append(streams, st)
	}
	r.mu.Unlock()
	for _, st := range streams {
		st.Close()
	}
}

func (r *Relay) watch(ctx context.Context, src Source, id string) error {
	if src == SourceImageBuild {
		return r.svc.WatchWorkspaceImageBuildLogs(ctx, id)
	}
	return r.svc.WatchHeadlessWorkspaceLogs(ctx, id)
}

func (r *Relay) release(st *Stream) {
	r.mu.Lock()
	if r.active[st.ID] == st {
		delete(r.active, st.ID)
	}
	r.mu.Unlock()
}
