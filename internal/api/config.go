package api

import (
	"time"

	"github.com/lzjever/mbos-dash/internal/handshake"
)

type Config struct {
	HTTPAddr        string        `envconfig:"DASH_HTTP_ADDR" default:"127.0.0.1:8080"`
	MetricsAddr     string        `envconfig:"DASH_METRICS_ADDR" default:"127.0.0.1:9090"`
	LogLevel        string        `envconfig:"DASH_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"DASH_SHUTDOWN_TIMEOUT" default:"30s"`

	// HostURL is the base URL of the workspace service.
	HostURL string `envconfig:"DASH_HOST_URL" required:"true"`
	Token   string `envconfig:"DASH_TOKEN"`

	DialTimeout      time.Duration `envconfig:"DASH_DIAL_TIMEOUT" default:"10s"`
	RequestTimeout   time.Duration `envconfig:"DASH_REQUEST_TIMEOUT" default:"30s"`
	HandshakeTimeout time.Duration `envconfig:"DASH_HANDSHAKE_TIMEOUT" default:"100s"`
	// AllowedOrigin restricts handshake messages to one origin when set.
	AllowedOrigin string `envconfig:"DASH_ALLOWED_ORIGIN"`
	// PublicURL is where browsers reach this gateway. Authorization windows
	// return to its /login-success. Defaults to http://<DASH_HTTP_ADDR>.
	PublicURL string `envconfig:"DASH_PUBLIC_URL"`
}

// ReturnTo is the handshake return target on this gateway's receiver.
func (c Config) ReturnTo() (string, error) {
	public := c.PublicURL
	if public == "" {
		public = "http://" + c.HTTPAddr
	}
	return handshake.SuccessURL(public)
}
