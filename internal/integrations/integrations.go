// Package integrations manages the user's git provider connections: which
// providers are connected with which scopes, and (re)authorizing them.
package integrations

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/handshake"
	"github.com/lzjever/mbos-dash/internal/hosturl"
)

type Service interface {
	GetLoggedInUser(ctx context.Context) (*core.User, error)
	GetToken(ctx context.Context, host string) (*core.Token, error)
	GetAuthProviders(ctx context.Context) ([]core.AuthProviderInfo, error)
	GetOwnAuthProviders(ctx context.Context) ([]core.AuthProviderEntry, error)
	UpdateOwnAuthProvider(ctx context.Context, entry core.AuthProviderEntryUpdate) (*core.AuthProviderEntry, error)
}

type Authorizer interface {
	Open(ctx context.Context, req handshake.Request) (*handshake.Session, error)
}

// DefaultPropagationDelay is how long Activate waits for a provider update
// to reach every service replica before authorizing against it.
const DefaultPropagationDelay = 2 * time.Second

// Provider is an auth provider as seen by the current user.
type Provider struct {
	core.AuthProviderInfo
	Name      string   `json:"name"`
	Connected bool     `json:"connected"`
	Username  string   `json:"username,omitempty"`
	Granted   []string `json:"granted_scopes,omitempty"`
}

type Manager struct {
	PropagationDelay time.Duration

	host   hosturl.HostURL
	svc    Service
	auth   Authorizer
	client *http.Client
	log    *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds a Manager. client carries the user's credentials for the
// deauthorize call.
func New(host hosturl.HostURL, svc Service, auth Authorizer, client *http.Client, log *zap.Logger) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		PropagationDelay: DefaultPropagationDelay,
		host:             host,
		svc:              svc,
		auth:             auth,
		client:           client,
		log:              log,
		sleep:            sleepCtx,
	}
}

// List returns every provider with the user's connection state. Granted
// scopes come from the stored token of each connected provider.
func (m *Manager) List(ctx context.Context) ([]Provider, error) {
	user, err := m.svc.GetLoggedInUser(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := m.svc.GetAuthProviders(ctx)
	if err != nil {
		return nil, err
	}

	identities := make(map[string]core.Identity, len(user.Identities))
	for _, id := range user.Identities {
		identities[id.AuthProviderID] = id
	}

	out := make([]Provider, 0, len(infos))
	for _, info := range infos {
		p := Provider{AuthProviderInfo: info, Name: SimplifyProviderName(info.Host)}
		if id, ok := identities[info.AuthProviderID]; ok {
			p.Connected = true
			p.Username = id.AuthName
			tok, err := m.svc.GetToken(ctx, info.Host)
			if err != nil {
				m.log.Warn("token lookup failed", zap.String("host", info.Host), zap.Error(err))
			} else if tok != nil {
				p.Granted = append([]string(nil), tok.Scopes...)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Connect authorizes host. Without scopes the provider's default
// requirements are requested.
func (m *Manager) Connect(ctx context.Context, host string, scopes []string) error {
	if len(scopes) == 0 {
		info, err := m.provider(ctx, host)
		if err != nil {
			return err
		}
		if info.Requirements != nil {
			scopes = info.Requirements.Default
		}
	}
	return m.authorize(ctx, host, scopes)
}

// UpdatePermissions re-authorizes host with exactly scopes. It is a no-op
// when the stored token already carries them.
func (m *Manager) UpdatePermissions(ctx context.Context, host string, scopes []string) error {
	tok, err := m.svc.GetToken(ctx, host)
	if err != nil {
		return err
	}
	if tok != nil && ScopesEqual(tok.Scopes, scopes) {
		m.log.Debug("scopes unchanged", zap.String("host", host))
		return nil
	}
	return m.authorize(ctx, host, scopes)
}

func (m *Manager) Disconnect(ctx context.Context, host string) error {
	u := m.host.AsDeauthorize(host, "")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build deauthorize request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return core.NewAppError(core.ErrRequestFailure, fmt.Sprintf("deauthorize %s: %v", host, err))
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &core.AppError{
			Code:    core.ErrRequestFailure,
			Message: fmt.Sprintf("deauthorize %s: %s", host, resp.Status),
			RPCCode: resp.StatusCode,
		}
	}
	m.log.Info("provider disconnected", zap.String("host", host))
	return nil
}

func (m *Manager) OwnProviders(ctx context.Context) ([]core.AuthProviderEntry, error) {
	return m.svc.GetOwnAuthProviders(ctx)
}

// Activate registers or updates a self-managed provider and then authorizes
// against it once the change has propagated.
func (m *Manager) Activate(ctx context.Context, entry core.AuthProviderEntryUpdate) (*core.AuthProviderEntry, error) {
	saved, err := m.svc.UpdateOwnAuthProvider(ctx, entry)
	if err != nil {
		return nil, err
	}
	log := m.log.With(zap.String("host", saved.Host), zap.String("provider_id", saved.ID))
	log.Info("own provider saved", zap.String("status", saved.Status))

	if err := m.sleep(ctx, m.PropagationDelay); err != nil {
		return saved, err
	}
	if err := m.authorize(ctx, saved.Host, nil); err != nil {
		return saved, err
	}
	return saved, nil
}

// CallbackURL is the redirect URL a self-managed provider must be
// configured with.
func (m *Manager) CallbackURL(host string) string {
	return m.host.CallbackURL(host).String()
}

func (m *Manager) provider(ctx context.Context, host string) (*core.AuthProviderInfo, error) {
	infos, err := m.svc.GetAuthProviders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if infos[i].Host == host {
			return &infos[i], nil
		}
	}
	return nil, core.NewAppError(core.ErrNotFound, fmt.Sprintf("no auth provider for %s", host))
}

func (m *Manager) authorize(ctx context.Context, host string, scopes []string) error {
	sess, err := m.auth.Open(ctx, handshake.Request{Host: host, Scopes: scopes})
	if err != nil {
		return err
	}
	return sess.Wait(ctx)
}

// SimplifyProviderName returns the display name of well-known hosts and the
// host itself otherwise.
func SimplifyProviderName(host string) string {
	switch host {
	case "github.com":
		return "GitHub"
	case "gitlab.com":
		return "GitLab"
	case "bitbucket.org":
		return "Bitbucket"
	default:
		return host
	}
}

// ScopesEqual compares scope sets, ignoring order and duplicates.
func ScopesEqual(a, b []string) bool {
	return slices.Equal(normalize(a), normalize(b))
}

func normalize(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
