// Package hosturl builds the service URLs a dashboard client talks to.
package hosturl

import (
	"fmt"
	"net/url"
	"strings"
)

// HostURL is the origin of the remote service, e.g. https://gitpod.example.com.
type HostURL struct {
	base *url.URL
}

func Parse(raw string) (HostURL, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return HostURL{}, fmt.Errorf("parse host url: %w", err)
	}
	if u.Host == "" {
		return HostURL{}, fmt.Errorf("parse host url: missing host in %q", raw)
	}
	return HostURL{base: &url.URL{Scheme: u.Scheme, Host: u.Host}}, nil
}

func MustParse(raw string) HostURL {
	h, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return h
}

func (h HostURL) Host() string { return h.base.Host }

func (h HostURL) String() string { return h.base.String() }

// With returns the URL for path (and an optional raw query) on this host.
func (h HostURL) With(path, rawQuery string) *url.URL {
	u := *h.base
	u.Path = "/" + strings.TrimPrefix(path, "/")
	u.RawQuery = rawQuery
	return &u
}

// WithAPI is With under the /api prefix.
func (h HostURL) WithAPI(path, rawQuery string) *url.URL {
	return h.With("/api/"+strings.TrimPrefix(path, "/"), rawQuery)
}

// LoginSuccess is the page the authorization window lands on when done.
func (h HostURL) LoginSuccess() *url.URL {
	return h.With("/login-success", "")
}

// AsAuthorize builds the provider authorization URL. The query string keeps
// the field order the service has always accepted.
func (h HostURL) AsAuthorize(providerHost string, scopes []string, returnTo string) *url.URL {
	if returnTo == "" {
		returnTo = h.LoginSuccess().String()
	}
	q := fmt.Sprintf("returnTo=%s&host=%s&override=true&scopes=%s",
		url.QueryEscape(returnTo), providerHost, strings.Join(scopes, ","))
	return h.WithAPI("/authorize", q)
}

// AsLogin builds the login URL used when the user has no session yet.
func (h HostURL) AsLogin(providerHost string, returnTo string) *url.URL {
	if returnTo == "" {
		returnTo = h.LoginSuccess().String()
	}
	q := fmt.Sprintf("host=%s&returnTo=%s", providerHost, url.QueryEscape(returnTo))
	return h.WithAPI("/login", q)
}

func (h HostURL) AsDeauthorize(providerHost string, returnTo string) *url.URL {
	if returnTo == "" {
		returnTo = h.With("/integrations", "").String()
	}
	q := fmt.Sprintf("returnTo=%s&host=%s", url.QueryEscape(returnTo), providerHost)
	return h.WithAPI("/deauthorize", q)
}

// AsWorkspaceAuth is the endpoint that sets the owner cookie for an
// instance. The forced variant asks the service to re-authenticate.
func (h HostURL) AsWorkspaceAuth(instanceID string, forced bool) *url.URL {
	q := ""
	if forced {
		q = "redirect"
	}
	return h.WithAPI("/auth/workspace-cookie/"+url.PathEscape(instanceID), q)
}

// ServerEndpoint is the websocket URL of the JSON-RPC channel.
func (h HostURL) ServerEndpoint() *url.URL {
	u := h.WithAPI("/v1", "")
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	return u
}

// CallbackURL is where a self-managed auth provider redirects after consent.
func (h HostURL) CallbackURL(providerHost string) *url.URL {
	return h.With("/auth/"+providerHost+"/callback", "")
}

// OwnerCookieMarker is the substring identifying the owner cookie of an
// instance.
func OwnerCookieMarker(instanceID string) string {
	return instanceID + "_owner_"
}
