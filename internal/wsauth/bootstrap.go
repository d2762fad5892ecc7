// Package wsauth obtains the owner cookie a workspace origin requires before
// it serves content.
package wsauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/hosturl"
	"github.com/lzjever/mbos-dash/internal/observability"
)

// Result of a bootstrap. When Navigate is set the service redirected and
// the caller must send the user there; the cookie is not yet in place.
type Result struct {
	Satisfied bool
	Navigate  string
}

type Bootstrapper struct {
	host   hosturl.HostURL
	client *http.Client
	log    *zap.Logger
}

// New returns a Bootstrapper with its own cookie jar. token, when set, is
// sent as a bearer credential.
func New(host hosturl.HostURL, token string, timeout time.Duration, log *zap.Logger) (*Bootstrapper, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	var transport http.RoundTripper = http.DefaultTransport
	if token != "" {
		transport = bearerTransport{host: host.Host(), token: token, next: transport}
	}
	return &Bootstrapper{
		host:   host,
		client: &http.Client{Jar: jar, Timeout: timeout, Transport: transport},
		log:    log,
	}, nil
}

// Client exposes the cookie-carrying client so later requests to the
// workspace origin present the owner cookie.
func (b *Bootstrapper) Client() *http.Client {
	return b.client
}

// HasOwnerCookie reports whether the jar already holds the instance's owner
// cookie for the service origin.
func (b *Bootstrapper) HasOwnerCookie(instanceID string) bool {
	marker := hosturl.OwnerCookieMarker(instanceID)
	for _, c := range b.client.Jar.Cookies(b.host.With("/", "")) {
		if strings.Contains(c.Name, marker) {
			return true
		}
	}
	return false
}

// Ensure makes sure the owner cookie for instanceID is present. A failed
// first request is retried once against the forced endpoint; nothing else
// is retried.
func (b *Bootstrapper) Ensure(ctx context.Context, instanceID string) (Result, error) {
	log := b.log.With(zap.String("instance_id", instanceID))
	if b.HasOwnerCookie(instanceID) {
		observability.BootstrapTotal.WithLabelValues("cached").Inc()
		return Result{Satisfied: true}, nil
	}

	res, status, err := b.fetch(ctx, b.host.AsWorkspaceAuth(instanceID, false).String())
	if err != nil {
		observability.BootstrapTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	if res.Satisfied || res.Navigate != "" {
		observability.BootstrapTotal.WithLabelValues(resultLabel(res)).Inc()
		return res, nil
	}

	log.Info("workspace auth rejected, forcing re-authentication", zap.Int("status", status))
	res, status, err = b.fetch(ctx, b.host.AsWorkspaceAuth(instanceID, true).String())
	if err != nil {
		observability.BootstrapTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	if res.Satisfied || res.Navigate != "" {
		observability.BootstrapTotal.WithLabelValues(resultLabel(res)).Inc()
		return res, nil
	}
	observability.BootstrapTotal.WithLabelValues("failed").Inc()
	return Result{}, &core.AppError{
		Code:    core.ErrRequestFailure,
		Message: fmt.Sprintf("workspace auth failed with status %d", status),
		RPCCode: status,
	}
}

// fetch performs one GET. Redirects are followed by the client; a final URL
// different from the requested one means the service redirected.
func (b *Bootstrapper) fetch(ctx context.Context, url string) (Result, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, 0, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return Result{}, 0, core.NewAppError(core.ErrRequestFailure, fmt.Sprintf("workspace auth: %v", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if final := resp.Request.URL.String(); final != url {
		return Result{Navigate: final}, resp.StatusCode, nil
	}
	if resp.StatusCode == http.StatusOK {
		return Result{Satisfied: true}, resp.StatusCode, nil
	}
	return Result{}, resp.StatusCode, nil
}

func resultLabel(r Result) string {
	if r.Navigate != "" {
		return "redirect"
	}
	return "ok"
}

// bearerTransport adds the token to requests for the service host only,
// never to redirect targets elsewhere.
type bearerTransport struct {
	host  string
	token string
	next  http.RoundTripper
}

func (t bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != t.host {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.next.RoundTrip(req)
}
