// Package protocol is the client side of the remote workspace service: a
// JSON-RPC 2.0 channel over a websocket carrying request/reply calls and
// pushed notifications.
package protocol

import (
	"context"
	"sync"

	"github.com/lzjever/mbos-dash/internal/core"
)

// Server is the contract of the remote workspace service.
type Server interface {
	CreateWorkspace(ctx context.Context, opts core.CreateWorkspaceOptions) (*core.CreateWorkspaceResult, error)
	StartWorkspace(ctx context.Context, workspaceID string, opts core.StartWorkspaceOptions) (*core.StartWorkspaceResult, error)
	GetWorkspace(ctx context.Context, workspaceID string) (*core.WorkspaceInfo, error)
	GetLoggedInUser(ctx context.Context) (*core.User, error)
	GetToken(ctx context.Context, host string) (*core.Token, error)
	GetAuthProviders(ctx context.Context) ([]core.AuthProviderInfo, error)
	GetOwnAuthProviders(ctx context.Context) ([]core.AuthProviderEntry, error)
	UpdateOwnAuthProvider(ctx context.Context, entry core.AuthProviderEntryUpdate) (*core.AuthProviderEntry, error)
	WatchWorkspaceImageBuildLogs(ctx context.Context, workspaceID string) error
	WatchHeadlessWorkspaceLogs(ctx context.Context, workspaceID string) error
	RegisterClient(h ClientHandlers) Disposable
}

// ClientHandlers receive pushed events. They run on the connection's read
// loop and must not block.
type ClientHandlers struct {
	OnInstanceUpdate          func(core.WorkspaceInstance)
	OnHeadlessWorkspaceLogs   func(core.HeadlessLogEvent)
	OnWorkspaceImageBuildLogs func(core.HeadlessLogEvent)
	// OnDidOpenConnection fires after every (re)connect.
	OnDidOpenConnection func()
}

// Disposable releases a registration. Dispose is idempotent.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a function to Disposable; it runs at most once.
func DisposeFunc(fn func()) Disposable {
	return &disposer{fn: fn}
}

type disposer struct {
	once sync.Once
	fn   func()
}

func (d *disposer) Dispose() {
	d.once.Do(d.fn)
}

// Registry is a set of ClientHandlers that can be fanned out to. It backs
// Client and in-memory fakes alike.
type Registry struct {
	mu       sync.Mutex
	next     uint64
	handlers map[uint64]ClientHandlers
}

func (r *Registry) Register(h ClientHandlers) Disposable {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[uint64]ClientHandlers)
	}
	r.next++
	id := r.next
	r.handlers[id] = h
	return DisposeFunc(func() {
		r.mu.Lock()
		delete(r.handlers, id)
		r.mu.Unlock()
	})
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

func (r *Registry) snapshot() []ClientHandlers {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ClientHandlers, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	return out
}

func (r *Registry) InstanceUpdate(inst core.WorkspaceInstance) {
	for _, h := range r.snapshot() {
		if h.OnInstanceUpdate != nil {
			h.OnInstanceUpdate(inst)
		}
	}
}

func (r *Registry) HeadlessLogs(ev core.HeadlessLogEvent) {
	for _, h := range r.snapshot() {
		if h.OnHeadlessWorkspaceLogs != nil {
			h.OnHeadlessWorkspaceLogs(ev)
		}
	}
}

func (r *Registry) ImageBuildLogs(ev core.HeadlessLogEvent) {
	for _, h := range r.snapshot() {
		if h.OnWorkspaceImageBuildLogs != nil {
			h.OnWorkspaceImageBuildLogs(ev)
		}
	}
}

func (r *Registry) DidOpenConnection() {
	for _, h := range r.snapshot() {
		if h.OnDidOpenConnection != nil {
			h.OnDidOpenConnection()
		}
	}
}
