package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/browser"
	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/hosturl"
	"github.com/lzjever/mbos-dash/internal/logrelay"
	"github.com/lzjever/mbos-dash/internal/protocol"
	"github.com/lzjever/mbos-dash/internal/startsession"
	"github.com/lzjever/mbos-dash/internal/wsauth"
)

const (
	dialTimeout    = 10 * time.Second
	requestTimeout = 30 * time.Second
	connectTimeout = 30 * time.Second
)

// remote bundles the pieces a command needs to talk to the workspace
// service directly.
type remote struct {
	host     hosturl.HostURL
	client   *protocol.Client
	boot     *wsauth.Bootstrapper
	launcher *browser.Launcher
	relay    *logrelay.Relay
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// dialRemote connects to the service and waits for the channel to come up.
func dialRemote(ctx context.Context) (*remote, error) {
	if hostURL == "" {
		return nil, fmt.Errorf("no workspace service URL, set --host or DASH_HOST_URL")
	}
	host, err := hosturl.Parse(hostURL)
	if err != nil {
		return nil, err
	}
	client := protocol.NewClient(protocol.Config{
		Endpoint:    host.ServerEndpoint().String(),
		Token:       token,
		DialTimeout: dialTimeout,
	}, log.Named("rpc"))
	go client.Run(ctx)

	wctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.WaitConnected(wctx); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", host, err)
	}

	boot, err := wsauth.New(host, token, requestTimeout, log.Named("wsauth"))
	if err != nil {
		return nil, err
	}
	launcher := browser.NewLauncher()
	launcher.Fallback = os.Stderr

	relay := logrelay.New(client, log.Named("logs"))
	relay.Sink = os.Stdout
	return &remote{host: host, client: client, boot: boot, launcher: launcher, relay: relay}, nil
}

// navigated forwards to the launcher and reports when the first navigation
// has been attempted.
type navigated struct {
	launcher *browser.Launcher
	done     chan error
}

func (n *navigated) Navigate(ctx context.Context, url string) error {
	err := n.launcher.Navigate(ctx, url)
	select {
	case n.done <- err:
	default:
	}
	return err
}

// runStart drives a standalone start session until the browser has been sent
// to the IDE or the session halts on an error. With restart, a workspace
// found stopped is started again once.
func (rm *remote) runStart(ctx context.Context, wsid string, restart, forceDefaultImage bool) error {
	nav := &navigated{launcher: rm.launcher, done: make(chan error, 1)}
	sess := startsession.New(rm.client, rm.boot, startsession.Options{
		WorkspaceID:       wsid,
		ForceDefaultImage: forceDefaultImage,
		Navigator:         nav,
		Logs:              rm.relay,
		RequestTimeout:    requestTimeout,
	}, log)

	halted := make(chan *core.AppError, 1)
	var last startsession.State
	var again *stopRestarter
	if restart {
		again = &stopRestarter{sess: sess, forceDefaultImage: forceDefaultImage}
	}
	unwatch := sess.Watch(func(st startsession.State) {
		if st.Phase != last.Phase || st.Message != last.Message {
			printPhase(st)
		}
		last = st
		if again != nil {
			again.observe(st)
		}
		if st.Error != nil {
			select {
			case halted <- st.Error:
			default:
			}
		}
	})
	defer unwatch()

	sctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		<-sess.Done()
	}()
	go func() { _ = sess.Run(sctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case appErr := <-halted:
		return appErr
	case err := <-nav.done:
		if err != nil {
			return err
		}
		log.Debug("workspace opened", zap.String("workspace_id", wsid))
		return nil
	}
}

type starter interface {
	Start(restart, forceDefaultImage bool)
}

// stopRestarter starts the workspace again the first time the started
// instance is reported stopped. The displayed phase does not change on a
// stop, so it watches the instance itself.
type stopRestarter struct {
	sess              starter
	forceDefaultImage bool
	fired             bool
}

// observe runs on the session goroutine; Start is posted from another one
// so the watcher never blocks on the event queue.
func (r *stopRestarter) observe(st startsession.State) bool {
	if r.fired || st.Starting || st.Instance == nil || st.Instance.Status.Phase != core.PhaseStopped {
		return false
	}
	r.fired = true
	go r.sess.Start(true, r.forceDefaultImage)
	return true
}

func printPhase(st startsession.State) {
	if output == "json" {
		printResult(sessionRow(st, ""))
		return
	}
	if st.Message != "" {
		fmt.Fprintf(os.Stderr, "%s: %s\n", st.Phase, st.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "%s\n", st.Phase)
}

func sessionRow(st startsession.State, id string) SessionRow {
	row := SessionRow{
		SessionID:   id,
		WorkspaceID: st.WorkspaceID,
		ContextURL:  st.ContextURL,
		Phase:       string(st.Phase),
		Message:     st.Message,
		InstanceID:  st.StartedInstanceID,
		Redirected:  st.RedirectedTo,
	}
	if st.Instance != nil {
		row.IDEURL = st.Instance.IDEURL
	}
	if st.Error != nil {
		row.Error = &ErrorRow{Code: string(st.Error.Code), Message: st.Error.Message}
	}
	return row
}
