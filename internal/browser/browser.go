// Package browser opens URLs in the user's desktop browser.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"github.com/lzjever/mbos-dash/internal/handshake"
)

// ErrUnsupported is returned when no launcher exists for this platform.
var ErrUnsupported = errors.New("browser: no launcher for " + runtime.GOOS)

// Tab is a window opened under a name. The desktop browser never tells us
// when the user closes it, so Done only fires on Close or when the slot is
// reused.
type Tab struct {
	URL  string
	Name string

	once   sync.Once
	closed chan struct{}
}

func newTab(url, name string) *Tab {
	return &Tab{URL: url, Name: name, closed: make(chan struct{})}
}

func (t *Tab) Close() {
	t.once.Do(func() { close(t.closed) })
}

func (t *Tab) Done() <-chan struct{} {
	return t.closed
}

// Launcher opens URLs with the platform's opener command. Windows are tracked
// by name so opening the same name again replaces the earlier tab instead of
// accumulating them.
type Launcher struct {
	// Fallback, when set, receives the URL whenever the launch command fails,
	// and the open is treated as successful.
	Fallback io.Writer

	run func(ctx context.Context, url string) error

	mu    sync.Mutex
	slots map[string]*Tab
}

func NewLauncher() *Launcher {
	return &Launcher{run: launch, slots: make(map[string]*Tab)}
}

// Open shows url in the slot called name.
func (l *Launcher) Open(ctx context.Context, url, name string) (*Tab, error) {
	if err := l.show(ctx, url); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.slots[name]; ok {
		prev.Close()
	}
	t := newTab(url, name)
	l.slots[name] = t
	return t, nil
}

// Navigate shows url without tracking a slot.
func (l *Launcher) Navigate(ctx context.Context, url string) error {
	return l.show(ctx, url)
}

func (l *Launcher) show(ctx context.Context, url string) error {
	err := l.run(ctx, url)
	if err == nil {
		return nil
	}
	if l.Fallback != nil {
		fmt.Fprintf(l.Fallback, "Open this URL in a browser:\n\n  %s\n\n", url)
		return nil
	}
	return err
}

func launch(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return ErrUnsupported
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: launch: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// Opener adapts the launcher to the handshake window contract.
func (l *Launcher) Opener() handshake.Opener {
	return handshake.OpenerFunc(func(ctx context.Context, url, name string) (handshake.Window, error) {
		tab, err := l.Open(ctx, url, name)
		if err != nil {
			return nil, err
		}
		return tab, nil
	})
}
