package startsession

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/protocol"
	"github.com/lzjever/mbos-dash/internal/wsauth"
)

// journal records side effects in the order they happen.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) index(s string) int {
	for i, e := range j.list() {
		if e == s {
			return i
		}
	}
	return -1
}

type fakeService struct {
	protocol.Registry
	j       *journal
	starts  atomic.Int32
	latest  core.WorkspaceInstance
	release chan struct{}
	startCt chan context.Context
}

func (f *fakeService) StartWorkspace(ctx context.Context, wsid string, _ core.StartWorkspaceOptions) (*core.StartWorkspaceResult, error) {
	f.starts.Add(1)
	f.j.add("start:" + wsid)
	if f.release != nil {
		f.startCt <- ctx
		<-f.release
	}
	return &core.StartWorkspaceResult{InstanceID: "i-1"}, nil
}

func (f *fakeService) GetWorkspace(_ context.Context, wsid string) (*core.WorkspaceInfo, error) {
	f.j.add("fetch:" + wsid)
	inst := f.latest
	return &core.WorkspaceInfo{Workspace: core.Workspace{ID: wsid}, LatestInstance: &inst}, nil
}

func (f *fakeService) WatchWorkspaceImageBuildLogs(_ context.Context, wsid string) error {
	f.j.add("watch:" + wsid)
	return nil
}

func (f *fakeService) RegisterClient(h protocol.ClientHandlers) protocol.Disposable {
	return f.Register(h)
}

type fakeBoot struct{ j *journal }

func (b fakeBoot) Ensure(_ context.Context, instanceID string) (wsauth.Result, error) {
	b.j.add("bootstrap:" + instanceID)
	return wsauth.Result{Satisfied: true}, nil
}

type fakeNavigator struct{ j *journal }

func (n fakeNavigator) Navigate(_ context.Context, url string) error {
	n.j.add("navigate:" + url)
	return nil
}

func newHarness(t *testing.T, opts Options) (*Session, *fakeService, *journal, context.CancelFunc) {
	t.Helper()
	j := &journal{}
	svc := &fakeService{j: j, latest: instance("i-1", "ws-1", core.PhasePreparing)}
	opts.WorkspaceID = "ws-1"
	if opts.Navigator == nil {
		opts.Navigator = fakeNavigator{j: j}
	}
	s := New(svc, fakeBoot{j: j}, opts, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s, svc, j, cancel
}

func TestSession_StartToRedirect(t *testing.T) {
	s, svc, j, _ := newHarness(t, Options{})

	require.Eventually(t, func() bool { return s.Snapshot().Phase == core.StartBuilding },
		2*time.Second, 5*time.Millisecond, "explicit fetch must show Building before any push")
	require.Eventually(t, func() bool { return j.index("watch:ws-1") >= 0 }, 2*time.Second, 5*time.Millisecond)

	running := instance("i-1", "ws-1", core.PhaseRunning)
	running.IDEURL = "https://i-1.ws.example.com"
	svc.InstanceUpdate(running)

	require.Eventually(t, func() bool { return j.index("navigate:https://i-1.ws.example.com") >= 0 },
		2*time.Second, 5*time.Millisecond)
	assert.Less(t, j.index("bootstrap:i-1"), j.index("navigate:https://i-1.ws.example.com"))
	assert.Equal(t, core.StartRunning, s.Snapshot().Phase)
	assert.Equal(t, int32(1), svc.starts.Load())
}

func TestSession_DuplicateStartIssuesOneRequest(t *testing.T) {
	s, svc, _, _ := newHarness(t, Options{})
	s.Start(false, false)
	s.Start(false, false)

	require.Eventually(t, func() bool { return s.Snapshot().StartedInstanceID == "i-1" }, 2*time.Second, 5*time.Millisecond)
	s.Start(false, false)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), svc.starts.Load())

	s.Start(true, false)
	require.Eventually(t, func() bool { return svc.starts.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestSession_UnmountReleasesSubscriptions(t *testing.T) {
	parent := NewParentChannel()
	s, svc, _, cancel := newHarness(t, Options{Parent: parent})

	require.Eventually(t, func() bool { return svc.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-s.Done()

	assert.Equal(t, 0, svc.Len())
	parent.mu.Lock()
	assert.Empty(t, parent.listeners)
	parent.mu.Unlock()

	// Late pushes after unmount are dropped without blocking.
	svc.InstanceUpdate(instance("i-1", "ws-1", core.PhaseRunning))
}

func TestSession_EmbeddedRelocatesParent(t *testing.T) {
	parent := NewParentChannel()
	relocated := make(chan string, 1)
	parent.Subscribe(func(m ParentMessage) {
		if m.Type == MessageRelocate {
			relocated <- m.URL
		}
	})
	s, svc, j, _ := newHarness(t, Options{Parent: parent})

	require.Eventually(t, func() bool { return s.Snapshot().Bootstrapped }, 2*time.Second, 5*time.Millisecond)
	running := instance("i-1", "ws-1", core.PhaseRunning)
	running.IDEURL = "https://i-1.ws.example.com"
	svc.InstanceUpdate(running)

	select {
	case url := <-relocated:
		assert.Equal(t, "https://i-1.ws.example.com", url)
	case <-time.After(2 * time.Second):
		t.Fatal("parent was not relocated")
	}
	for _, e := range j.list() {
		assert.NotContains(t, e, "navigate:")
	}
	assert.Equal(t, "https://i-1.ws.example.com", parent.LastRelocate())

	parent.Deliver(ParentMessage{Type: MessageSetState, State: json.RawMessage(`{"ideFrontendFailureCause":"boom"}`)})
	require.Eventually(t, func() bool { return s.Snapshot().IDEFrontendFailureCause == "boom" }, 2*time.Second, 5*time.Millisecond)
}

func TestSession_InFlightRequestAbandonedNotCancelled(t *testing.T) {
	j := &journal{}
	svc := &fakeService{j: j, release: make(chan struct{}), startCt: make(chan context.Context, 1)}
	s := New(svc, fakeBoot{j: j}, Options{WorkspaceID: "ws-1", Navigator: fakeNavigator{j: j}}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()

	reqCtx := <-svc.startCt
	cancel()
	<-s.Done()

	assert.NoError(t, reqCtx.Err(), "unmount must not cancel the in-flight request")
	close(svc.release)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, s.Snapshot().StartedInstanceID, "results after unmount are discarded")
	assert.Equal(t, -1, j.index("fetch:ws-1"))
}

func TestSession_WatchSeesChanges(t *testing.T) {
	s, _, _, _ := newHarness(t, Options{})
	phases := make(chan core.StartPhase, 16)
	cancel := s.Watch(func(st State) {
		select {
		case phases <- st.Phase:
		default:
		}
	})
	defer cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-phases:
			if p == core.StartBuilding {
				return
			}
		case <-deadline:
			t.Fatal("watcher never saw Building")
		}
	}
}
