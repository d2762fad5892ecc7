package handshake

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxMessageBytes = 64 << 10

const closePage = `<!doctype html><html><body><p>%s</p><script>window.close()</script></body></html>`

// Receiver is a MessageHub fed over HTTP: the authorize page's return target
// points at it, so completion messages reach listeners in this process.
type Receiver struct {
	log *zap.Logger

	mu        sync.Mutex
	next      uint64
	listeners map[uint64]func(Message)
}

func NewReceiver(log *zap.Logger) *Receiver {
	return &Receiver{log: log, listeners: make(map[uint64]func(Message))}
}

func (r *Receiver) AddListener(fn func(Message)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Listeners returns the number of registered listeners.
func (r *Receiver) Listeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Dispatch delivers msg to every listener registered at call time.
func (r *Receiver) Dispatch(msg Message) {
	r.mu.Lock()
	fns := make([]func(Message), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

// SuccessURL is the return target that lands on the receiver's
// /login-success route when the receiver is served at publicURL.
func SuccessURL(publicURL string) (string, error) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", fmt.Errorf("parse public url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("public url %q must be an absolute http(s) URL", publicURL)
	}
	return u.JoinPath("login-success").String(), nil
}

// Routes mounts the receiver endpoints:
//
//	POST /auth/message   raw message body
//	GET  /login-success  delivers "success"
//	GET  /login-error    delivers "error:<message>" (message is base64)
func (r *Receiver) Routes(router chi.Router) {
	router.Post("/auth/message", r.postMessage)
	router.Get("/login-success", r.loginSuccess)
	router.Get("/login-error", r.loginError)
}

func (r *Receiver) postMessage(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "bad message", http.StatusBadRequest)
		return
	}
	r.Dispatch(Message{Data: string(body), Origin: req.Header.Get("Origin")})
	w.WriteHeader(http.StatusNoContent)
}

func (r *Receiver) loginSuccess(w http.ResponseWriter, req *http.Request) {
	r.Dispatch(Message{Data: successPrefix, Origin: originOf(req)})
	writeClosePage(w, "Authorization complete. You can close this window.")
}

func (r *Receiver) loginError(w http.ResponseWriter, req *http.Request) {
	msg := req.URL.Query().Get("message")
	r.log.Debug("authorization error page hit", zap.String("message", msg))
	r.Dispatch(Message{Data: errorPrefix + msg, Origin: originOf(req)})
	writeClosePage(w, "Authorization failed. You can close this window.")
}

func originOf(req *http.Request) string {
	if o := req.Header.Get("Origin"); o != "" {
		return o
	}
	return req.Header.Get("Referer")
}

func writeClosePage(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, fmt.Sprintf(closePage, html.EscapeString(text)))
}
