package startsession

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/observability"
	"github.com/lzjever/mbos-dash/internal/protocol"
	"github.com/lzjever/mbos-dash/internal/wsauth"
)

// Service is the part of the remote service a session needs.
type Service interface {
	StartWorkspace(ctx context.Context, workspaceID string, opts core.StartWorkspaceOptions) (*core.StartWorkspaceResult, error)
	GetWorkspace(ctx context.Context, workspaceID string) (*core.WorkspaceInfo, error)
	WatchWorkspaceImageBuildLogs(ctx context.Context, workspaceID string) error
	RegisterClient(h protocol.ClientHandlers) protocol.Disposable
}

type Bootstrapper interface {
	Ensure(ctx context.Context, instanceID string) (wsauth.Result, error)
}

// Navigator sends the user to a URL when the session is not embedded.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// LogWatcher opens the image build log stream for a workspace. When unset
// the session only issues the watch call.
type LogWatcher interface {
	WatchImageBuildLogs(ctx context.Context, workspaceID string) error
}

type Options struct {
	WorkspaceID       string
	ForceDefaultImage bool
	// Parent marks the session as embedded.
	Parent         Parent
	Navigator      Navigator
	Logs           LogWatcher
	RequestTimeout time.Duration
}

const eventBuffer = 64

// Session owns one State and runs the effects Step asks for. All state
// changes happen on the Run goroutine.
type Session struct {
	ID string

	svc  Service
	boot Bootstrapper
	opts Options
	log  *zap.Logger

	events chan Event
	done   chan struct{}

	mu       sync.RWMutex
	state    State
	nextW    int
	watchers map[int]func(State)
}

func New(svc Service, boot Bootstrapper, opts Options, log *zap.Logger) *Session {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	id := core.NewSessionID()
	return &Session{
		ID:       id,
		svc:      svc,
		boot:     boot,
		opts:     opts,
		log:      observability.SessionLogger(log, id, opts.WorkspaceID),
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
		state:    Initial(opts.WorkspaceID),
		watchers: make(map[int]func(State)),
	}
}

// Run subscribes to instance updates, issues the initial start and
// processes events until ctx is done. The push subscription and parent
// listener are released on every exit path. Requests still in flight at
// that point are left to finish; their results are dropped.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	sub := s.svc.RegisterClient(protocol.ClientHandlers{
		OnInstanceUpdate: func(inst core.WorkspaceInstance) {
			s.post(InstanceUpdated{Instance: inst})
		},
	})
	defer sub.Dispose()

	if s.opts.Parent != nil {
		remove := s.opts.Parent.AddListener(func(msg ParentMessage) {
			if msg.Type == MessageSetState {
				s.post(ParentStateReceived{State: msg.State})
			}
		})
		defer remove()
	}

	observability.ActiveSessions.Inc()
	defer observability.ActiveSessions.Dec()
	s.log.Info("start session mounted", zap.Bool("embedded", s.opts.Parent != nil))

	s.apply(ctx, StartRequested{ForceDefaultImage: s.opts.ForceDefaultImage})
	for {
		select {
		case <-ctx.Done():
			s.log.Info("start session unmounted")
			return ctx.Err()
		case ev := <-s.events:
			s.apply(ctx, ev)
		}
	}
}

// Start requests a start. Without restart it is a no-op once a start is in
// flight or has succeeded.
func (s *Session) Start(restart, forceDefaultImage bool) {
	s.post(StartRequested{Restart: restart, ForceDefaultImage: forceDefaultImage})
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Watch calls fn with the current state and then after every change, on the
// Run goroutine. fn must not block.
func (s *Session) Watch(fn func(State)) (cancel func()) {
	s.mu.Lock()
	s.nextW++
	id := s.nextW
	s.watchers[id] = fn
	st := s.state
	s.mu.Unlock()
	fn(st)
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// post hands ev to the Run loop, or drops it once the session is gone.
func (s *Session) post(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) apply(ctx context.Context, ev Event) {
	prev := s.Snapshot()
	next, effects := Step(prev, ev)

	if e, ok := ev.(InstanceUpdated); ok {
		result := "applied"
		if next == prev {
			result = "ignored"
			s.log.Debug("instance update ignored",
				zap.String("instance_id", e.Instance.ID),
				zap.String("instance_workspace_id", e.Instance.WorkspaceID),
				zap.String("phase", string(e.Instance.Status.Phase)))
		}
		observability.InstanceUpdatesTotal.WithLabelValues(result).Inc()
	}
	if next == prev {
		return
	}
	if prev.Phase != next.Phase {
		observability.PhaseTransitions.WithLabelValues(string(prev.Phase), string(next.Phase)).Inc()
		s.log.Info("phase changed", zap.String("from", string(prev.Phase)), zap.String("to", string(next.Phase)))
	}
	if next.Error != nil && prev.Error != next.Error {
		s.log.Warn("start session halted", zap.Error(next.Error))
	}

	s.mu.Lock()
	s.state = next
	watchers := make([]func(State), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(next)
	}

	for _, eff := range effects {
		s.run(ctx, eff)
	}
}

// requestContext detaches from the session so unmounting abandons a request
// without cancelling it.
func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.RequestTimeout)
}

func (s *Session) run(ctx context.Context, eff Effect) {
	switch e := eff.(type) {
	case StartWorkspace:
		go func() {
			rctx, cancel := s.requestContext(ctx)
			defer cancel()
			res, err := s.svc.StartWorkspace(rctx, e.WorkspaceID, core.StartWorkspaceOptions{ForceDefaultImage: e.ForceDefaultImage})
			if err != nil {
				observability.StartRequestsTotal.WithLabelValues("error").Inc()
				s.post(StartFailed{Attempt: e.Attempt, Err: core.AsAppError(err)})
				return
			}
			observability.StartRequestsTotal.WithLabelValues("ok").Inc()
			s.log.Info("workspace started", zap.String("instance_id", res.InstanceID))
			s.post(StartSucceeded{Attempt: e.Attempt, Result: *res})
		}()

	case FetchWorkspace:
		go func() {
			rctx, cancel := s.requestContext(ctx)
			defer cancel()
			info, err := s.svc.GetWorkspace(rctx, e.WorkspaceID)
			if err != nil {
				s.post(FetchFailed{Attempt: e.Attempt, Err: core.AsAppError(err)})
				return
			}
			s.post(WorkspaceFetched{Attempt: e.Attempt, Info: *info})
		}()

	case Bootstrap:
		go func() {
			rctx, cancel := s.requestContext(ctx)
			defer cancel()
			res, err := s.boot.Ensure(rctx, e.InstanceID)
			if err != nil {
				s.post(BootstrapFailed{InstanceID: e.InstanceID, Err: core.AsAppError(err)})
				return
			}
			s.post(BootstrapCompleted{InstanceID: e.InstanceID, Satisfied: res.Satisfied, Navigate: res.Navigate})
		}()

	case WatchImageBuildLogs:
		go func() {
			rctx, cancel := s.requestContext(ctx)
			defer cancel()
			var err error
			if s.opts.Logs != nil {
				err = s.opts.Logs.WatchImageBuildLogs(rctx, e.WorkspaceID)
			} else {
				err = s.svc.WatchWorkspaceImageBuildLogs(rctx, e.WorkspaceID)
			}
			if err != nil {
				s.log.Warn("watch image build logs failed", zap.Error(err))
			}
		}()

	case Redirect:
		s.redirect(ctx, e.URL)
	}
}

func (s *Session) redirect(ctx context.Context, url string) {
	log := s.log.With(zap.String("url", url))
	if s.opts.Parent != nil {
		observability.RedirectsTotal.WithLabelValues("parent").Inc()
		log.Info("relocating parent")
		if err := s.opts.Parent.PostMessage(ParentMessage{Type: MessageRelocate, URL: url}); err != nil {
			log.Warn("relocate message failed", zap.Error(err))
		}
		return
	}
	if s.opts.Navigator == nil {
		log.Warn("no navigator configured, redirect dropped")
		return
	}
	observability.RedirectsTotal.WithLabelValues("navigate").Inc()
	log.Info("navigating")
	go func() {
		rctx, cancel := s.requestContext(ctx)
		defer cancel()
		if err := s.opts.Navigator.Navigate(rctx, url); err != nil {
			log.Warn("navigation failed", zap.Error(err))
		}
	}()
}
