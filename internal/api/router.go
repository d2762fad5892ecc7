package api

import (
	"context"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/api/middleware"
	"github.com/lzjever/mbos-dash/internal/creator"
	"github.com/lzjever/mbos-dash/internal/handshake"
	"github.com/lzjever/mbos-dash/internal/integrations"
	"github.com/lzjever/mbos-dash/internal/logrelay"
	"github.com/lzjever/mbos-dash/internal/startsession"
)

// Remote is the remote service as the gateway uses it.
type Remote interface {
	startsession.Service
	Connected() bool
}

// Authorizer runs authorization handshakes.
type Authorizer interface {
	Open(ctx context.Context, req handshake.Request) (*handshake.Session, error)
}

type Deps struct {
	Remote       Remote
	Bootstrap    startsession.Bootstrapper
	Receiver     *handshake.Receiver
	Authorizer   Authorizer
	Creator      *creator.Creator
	Integrations *integrations.Manager
	Logs         *logrelay.Relay
	// RequestTimeout bounds each remote call a start session makes.
	RequestTimeout time.Duration
}

type API struct {
	remote       Remote
	boot         startsession.Bootstrapper
	receiver     *handshake.Receiver
	auth         Authorizer
	creator      *creator.Creator
	integrations *integrations.Manager
	logs         *logrelay.Relay
	reqTimeout   time.Duration
	log          *zap.Logger

	mu      sync.Mutex
	mounted map[string]*mounted
}

func NewAPI(deps Deps, log *zap.Logger) *API {
	return &API{
		remote:       deps.Remote,
		boot:         deps.Bootstrap,
		receiver:     deps.Receiver,
		auth:         deps.Authorizer,
		creator:      deps.Creator,
		integrations: deps.Integrations,
		logs:         deps.Logs,
		reqTimeout:   deps.RequestTimeout,
		log:          log,
		mounted:      make(map[string]*mounted),
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.Recoverer(a.log))
	r.Use(middleware.Logger)

	// Health endpoints
	r.Get("/healthz", a.HealthHandler)
	r.Get("/readyz", a.ReadyHandler)

	// Authorization window callbacks post plain text.
	if a.receiver != nil {
		a.receiver.Routes(r)
	}

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/json"))

		// Workspaces
		r.Post("/workspaces", a.CreateWorkspace)
		r.Post("/workspaces/{wsid}/start", a.StartWorkspace)
		r.Get("/workspaces/{wsid}/session", a.GetSession)
		r.Delete("/workspaces/{wsid}/session", a.DeleteSession)
		r.Get("/workspaces/{wsid}/events", a.SessionEvents)

		// Logs
		r.Get("/logs/{id}", a.StreamLogs)

		// Auth providers
		r.Post("/auth/authorize", a.Authorize)
		r.Get("/providers", a.ListProviders)
		r.Post("/providers/{host}/connect", a.ConnectProvider)
		r.Delete("/providers/{host}", a.DisconnectProvider)
	})

	return r
}
