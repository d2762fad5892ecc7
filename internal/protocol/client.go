package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/observability"
)

// Remote method names.
const (
	MethodCreateWorkspace              = "createWorkspace"
	MethodStartWorkspace               = "startWorkspace"
	MethodGetWorkspace                 = "getWorkspace"
	MethodGetLoggedInUser              = "getLoggedInUser"
	MethodGetToken                     = "getToken"
	MethodGetAuthProviders             = "getAuthProviders"
	MethodGetOwnAuthProviders          = "getOwnAuthProviders"
	MethodUpdateOwnAuthProvider        = "updateOwnAuthProvider"
	MethodWatchWorkspaceImageBuildLogs = "watchWorkspaceImageBuildLogs"
	MethodWatchHeadlessWorkspaceLogs   = "watchHeadlessWorkspaceLogs"

	NotifyInstanceUpdate          = "onInstanceUpdate"
	NotifyHeadlessWorkspaceLogs   = "onHeadlessWorkspaceLogs"
	NotifyWorkspaceImageBuildLogs = "onWorkspaceImageBuildLogs"
)

type Config struct {
	// Endpoint is the websocket URL, e.g. wss://host/api/v1.
	Endpoint string
	// Token is sent as a bearer credential on every connect.
	Token       string
	DialTimeout time.Duration
}

// Client keeps a JSON-RPC connection to the remote service alive and
// implements Server on top of it. Calls made while disconnected fail with
// core.NotConnectedError.
type Client struct {
	cfg        Config
	log        *zap.Logger
	registry   Registry
	newBackoff func() backoff.BackOff

	mu   sync.RWMutex
	conn jsonrpc2.Conn
	up   chan struct{}
}

var _ Server = (*Client)(nil)

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		log:        log,
		newBackoff: newDefaultBackoff,
		up:         make(chan struct{}),
	}
}

// Run connects and reconnects until ctx is done.
func (c *Client) Run(ctx context.Context) {
	bo := c.newBackoff()
	for {
		start := time.Now()
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(start) >= resetThreshold {
			bo.Reset()
		}

		interval := bo.NextBackOff()
		observability.RPCReconnectsTotal.Inc()
		c.log.Warn("disconnected from remote service, reconnecting",
			zap.Error(err), zap.Duration("backoff", interval))
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// connect runs one connection until it drops.
func (c *Client) connect(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	ws, _, err := websocket.Dial(dialCtx, c.cfg.Endpoint, &websocket.DialOptions{HTTPHeader: header})
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.Endpoint, err)
	}

	conn := jsonrpc2.NewConn(NewStream(ws))
	conn.Go(ctx, c.handle)
	c.setConn(conn)
	defer c.setConn(nil)

	c.log.Info("connected to remote service", zap.String("endpoint", c.cfg.Endpoint))
	c.registry.DidOpenConnection()

	select {
	case <-ctx.Done():
		_ = conn.Close()
		<-conn.Done()
		return ctx.Err()
	case <-conn.Done():
		return conn.Err()
	}
}

func (c *Client) setConn(conn jsonrpc2.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	if conn != nil {
		close(c.up)
	} else {
		c.up = make(chan struct{})
	}
}

func (c *Client) current() jsonrpc2.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool {
	return c.current() != nil
}

// WaitConnected blocks until a connection is up or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	c.mu.RLock()
	up := c.up
	c.mu.RUnlock()
	select {
	case <-up:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) RegisterClient(h ClientHandlers) Disposable {
	return c.registry.Register(h)
}

// call issues method with positional params.
func (c *Client) call(ctx context.Context, method string, result interface{}, params ...interface{}) error {
	conn := c.current()
	if conn == nil {
		return core.NotConnectedError
	}
	if params == nil {
		params = []interface{}{}
	}
	start := time.Now()
	_, err := conn.Call(ctx, method, params, result)
	observability.RPCCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		return translateError(method, err)
	}
	return nil
}

func translateError(method string, err error) error {
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		var data json.RawMessage
		if rpcErr.Data != nil {
			data = *rpcErr.Data
		}
		return core.NewRequestFailure(int(rpcErr.Code), rpcErr.Message, data)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return core.NewAppError(core.ErrRequestFailure, fmt.Sprintf("%s: %v", method, err))
}

func (c *Client) CreateWorkspace(ctx context.Context, opts core.CreateWorkspaceOptions) (*core.CreateWorkspaceResult, error) {
	var res core.CreateWorkspaceResult
	if err := c.call(ctx, MethodCreateWorkspace, &res, opts); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) StartWorkspace(ctx context.Context, workspaceID string, opts core.StartWorkspaceOptions) (*core.StartWorkspaceResult, error) {
	var res core.StartWorkspaceResult
	if err := c.call(ctx, MethodStartWorkspace, &res, workspaceID, opts); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetWorkspace(ctx context.Context, workspaceID string) (*core.WorkspaceInfo, error) {
	var res core.WorkspaceInfo
	if err := c.call(ctx, MethodGetWorkspace, &res, workspaceID); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetLoggedInUser(ctx context.Context) (*core.User, error) {
	var res core.User
	if err := c.call(ctx, MethodGetLoggedInUser, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetToken returns nil when the user holds no token for host.
func (c *Client) GetToken(ctx context.Context, host string) (*core.Token, error) {
	var res *core.Token
	if err := c.call(ctx, MethodGetToken, &res, map[string]string{"host": host}); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) GetAuthProviders(ctx context.Context) ([]core.AuthProviderInfo, error) {
	var res []core.AuthProviderInfo
	if err := c.call(ctx, MethodGetAuthProviders, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) GetOwnAuthProviders(ctx context.Context) ([]core.AuthProviderEntry, error) {
	var res []core.AuthProviderEntry
	if err := c.call(ctx, MethodGetOwnAuthProviders, &res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Client) UpdateOwnAuthProvider(ctx context.Context, entry core.AuthProviderEntryUpdate) (*core.AuthProviderEntry, error) {
	var res core.AuthProviderEntry
	if err := c.call(ctx, MethodUpdateOwnAuthProvider, &res, map[string]interface{}{"entry": entry}); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) WatchWorkspaceImageBuildLogs(ctx context.Context, workspaceID string) error {
	return c.call(ctx, MethodWatchWorkspaceImageBuildLogs, nil, workspaceID)
}

func (c *Client) WatchHeadlessWorkspaceLogs(ctx context.Context, workspaceID string) error {
	return c.call(ctx, MethodWatchHeadlessWorkspaceLogs, nil, workspaceID)
}
