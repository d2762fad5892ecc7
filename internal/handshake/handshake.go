// Package handshake runs the authorization window exchange: open the
// service's authorize page in a named window and wait for it to report back
// with a "success" or "error:<base64>" message.
package handshake

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/hosturl"
	"github.com/lzjever/mbos-dash/internal/observability"
)

// WindowName is the slot every authorization window is opened in.
const WindowName = "gitpod-connect"

// DefaultTimeout bounds a handshake. It matches the 100 x 1s cap the service
// has historically allowed for the authorize page.
const DefaultTimeout = 100 * time.Second

const (
	successPrefix = "success"
	errorPrefix   = "error:"
)

// Window is an opened authorization window.
type Window interface {
	Close()
	// Done is closed when the window goes away. It may return nil if closure
	// cannot be observed.
	Done() <-chan struct{}
}

type Opener interface {
	Open(ctx context.Context, url, name string) (Window, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, url, name string) (Window, error)

func (f OpenerFunc) Open(ctx context.Context, url, name string) (Window, error) {
	return f(ctx, url, name)
}

// Closer is implemented by message sources that can be closed.
type Closer interface {
	Close()
}

// Message is one cross-window message delivered to the hosting context.
type Message struct {
	Data   string
	Origin string
	Source Closer
}

// MessageHub delivers messages to listeners until they are removed.
type MessageHub interface {
	AddListener(fn func(Message)) (remove func())
}

type Config struct {
	Timeout time.Duration
	// AllowedOrigin, when set, drops messages from any other origin. Empty
	// accepts every origin.
	AllowedOrigin string
	// ReturnTo is where the service sends the window once authorization
	// settles, for requests that do not name one. It must reach the
	// Receiver; see SuccessURL.
	ReturnTo string
}

// Request describes one authorization. OnSuccess and OnError are optional;
// exactly one of them fires per handshake.
type Request struct {
	Host   string
	Scopes []string
	// Login opens the login page instead of the authorize page.
	Login     bool
	ReturnTo  string
	OnSuccess func()
	OnError   func(error)
}

// Authorizer runs at most one handshake at a time.
type Authorizer struct {
	host   hosturl.HostURL
	opener Opener
	hub    MessageHub
	cfg    Config
	log    *zap.Logger

	mu      sync.Mutex
	pending *Session
}

func NewAuthorizer(host hosturl.HostURL, opener Opener, hub MessageHub, cfg Config, log *zap.Logger) *Authorizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Authorizer{host: host, opener: opener, hub: hub, cfg: cfg, log: log}
}

// URL is the page a request opens.
func (a *Authorizer) URL(req Request) string {
	returnTo := req.ReturnTo
	if returnTo == "" {
		returnTo = a.cfg.ReturnTo
	}
	if req.Login {
		return a.host.AsLogin(req.Host, returnTo).String()
	}
	return a.host.AsAuthorize(req.Host, req.Scopes, returnTo).String()
}

// Open starts a handshake. It fails with core.HandshakePendingError while
// another handshake is running, and with core.WindowBlockedError (also passed
// to OnError) if the window cannot be opened; neither case registers a
// listener. ctx bounds the whole handshake.
func (a *Authorizer) Open(ctx context.Context, req Request) (*Session, error) {
	s, err := a.open(ctx, req)
	if err != nil {
		if req.OnError != nil && errors.Is(err, core.WindowBlockedError) {
			req.OnError(err)
		}
		return nil, err
	}
	go s.watch(ctx, a.cfg.Timeout)
	return s, nil
}

func (a *Authorizer) open(ctx context.Context, req Request) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending != nil {
		return nil, core.HandshakePendingError
	}

	url := a.URL(req)
	log := a.log.With(zap.String("host", req.Host), zap.Strings("scopes", req.Scopes))

	win, err := a.opener.Open(ctx, url, WindowName)
	if err != nil || win == nil {
		observability.HandshakeTotal.WithLabelValues("blocked").Inc()
		log.Warn("authorization window blocked", zap.Error(err))
		if err != nil {
			return nil, core.NewAppError(core.ErrWindowBlocked, fmt.Sprintf("window could not be opened: %v", err))
		}
		return nil, core.WindowBlockedError
	}

	s := &Session{
		ID:            core.NewSessionID(),
		URL:           url,
		win:           win,
		allowedOrigin: a.cfg.AllowedOrigin,
		onSuccess:     req.OnSuccess,
		onError:       req.OnError,
		started:       time.Now(),
		done:          make(chan struct{}),
		log:           log,
	}
	s.release = func() {
		a.mu.Lock()
		if a.pending == s {
			a.pending = nil
		}
		a.mu.Unlock()
	}
	a.pending = s
	s.setRemove(a.hub.AddListener(s.receive))

	log.Info("authorization window opened", zap.String("handshake_id", s.ID))
	return s, nil
}

// Pending reports whether a handshake is running.
func (a *Authorizer) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}

// Session is one running handshake.
type Session struct {
	ID  string
	URL string

	win           Window
	allowedOrigin string
	onSuccess     func()
	onError       func(error)
	release       func()
	started       time.Time
	log           *zap.Logger

	mu       sync.Mutex
	remove   func()
	finished bool

	once sync.Once
	done chan struct{}
	err  error
}

// setRemove stores the listener removal, running it at once if a message
// already settled the session.
func (s *Session) setRemove(remove func()) {
	s.mu.Lock()
	if !s.finished {
		s.remove = remove
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	remove()
}

func (s *Session) removeListener() {
	s.mu.Lock()
	s.finished = true
	remove := s.remove
	s.remove = nil
	s.mu.Unlock()
	if remove != nil {
		remove()
	}
}

func (s *Session) receive(msg Message) {
	if s.allowedOrigin != "" && msg.Origin != s.allowedOrigin {
		s.log.Debug("ignoring message from foreign origin", zap.String("origin", msg.Origin))
		return
	}
	var err error
	switch {
	case strings.HasPrefix(msg.Data, successPrefix):
	case strings.HasPrefix(msg.Data, errorPrefix):
		err = core.AuthHandshakeError(decodeErrorPayload(msg.Data[len(errorPrefix):]))
	default:
		return
	}
	s.settle(err, func() {
		if msg.Source != nil {
			msg.Source.Close()
		}
	})
}

func (s *Session) watch(ctx context.Context, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
	case <-timer.C:
		s.finish(core.AuthHandshakeTimeoutError, true)
	case <-s.win.Done():
		s.finish(core.AuthHandshakeError("authorization window was closed"), false)
	case <-ctx.Done():
		s.finish(ctx.Err(), true)
	}
}

// Cancel abandons the handshake and closes its window. OnError receives
// context.Canceled.
func (s *Session) Cancel() {
	s.finish(context.Canceled, true)
}

// finish settles the session once: the listener is removed before any
// callback runs.
func (s *Session) finish(err error, closeWindow bool) {
	s.settle(err, func() {
		if closeWindow {
			s.win.Close()
		}
	})
}

// settle runs closeSource only for the message or event that settles the
// session; later ones are dropped untouched.
func (s *Session) settle(err error, closeSource func()) {
	s.once.Do(func() {
		s.removeListener()
		closeSource()
		s.err = err
		close(s.done)
		s.release()

		observability.HandshakeDuration.Observe(time.Since(s.started).Seconds())
		observability.HandshakeTotal.WithLabelValues(outcome(err)).Inc()
		if err != nil {
			s.log.Warn("authorization failed", zap.String("handshake_id", s.ID), zap.Error(err))
			if s.onError != nil {
				s.onError(err)
			}
			return
		}
		s.log.Info("authorization succeeded", zap.String("handshake_id", s.ID))
		if s.onSuccess != nil {
			s.onSuccess()
		}
	})
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err is nil until the session is done, and nil after success.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the handshake settles or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decodeErrorPayload falls back to the raw payload when it is not base64.
func decodeErrorPayload(payload string) string {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(payload); err == nil {
			return string(b)
		}
	}
	return payload
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case err == core.AuthHandshakeTimeoutError:
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
