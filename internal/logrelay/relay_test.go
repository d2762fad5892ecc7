package logrelay

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/core"
	"github.com/lzjever/mbos-dash/internal/protocol"
)

type fakeService struct {
	protocol.Registry
	mu      sync.Mutex
	watched []string
	err     error
}

func (f *fakeService) record(kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, kind+":"+id)
	return f.err
}

func (f *fakeService) WatchHeadlessWorkspaceLogs(_ context.Context, id string) error {
	return f.record("headless", id)
}

func (f *fakeService) WatchWorkspaceImageBuildLogs(_ context.Context, id string) error {
	return f.record("image-build", id)
}

func (f *fakeService) RegisterClient(h protocol.ClientHandlers) protocol.Disposable {
	return f.Register(h)
}

func (f *fakeService) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.watched...)
}

func next(t *testing.T, st *Stream) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	chunk, err := st.Next(ctx)
	require.NoError(t, err)
	return chunk
}

func TestSubscribe_FiltersById(t *testing.T) {
	svc := &fakeService{}
	r := New(svc, zap.NewNop())

	st, err := r.Subscribe(context.Background(), SourceHeadless, "ws-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"headless:ws-1"}, svc.calls())

	svc.HeadlessLogs(core.HeadlessLogEvent{WorkspaceID: "ws-2", Text: "other\n"})
	svc.ImageBuildLogs(core.HeadlessLogEvent{WorkspaceID: "ws-1", Text: "wrong source\n"})
	svc.HeadlessLogs(core.HeadlessLogEvent{WorkspaceID: "ws-1", Text: "one\n"})
	svc.HeadlessLogs(core.HeadlessLogEvent{WorkspaceID: "ws-9", InstanceID: "ws-1", Text: "two\n"})

	assert.Equal(t, "one\n", next(t, st))
	assert.Equal(t, "two\n", next(t, st))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = st.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscribe_NoDropUnderBurst(t *testing.T) {
	svc := &fakeService{}
	st, err := New(svc, zap.NewNop()).Subscribe(context.Background(), SourceImageBuild, "ws-1")
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		svc.ImageBuildLogs(core.HeadlessLogEvent{WorkspaceID: "ws-1", Text: "x"})
	}
	for i := 0; i < 1000; i++ {
		require.Equal(t, "x", next(t, st))
	}
}

func TestSubscribe_SupersedesPrevious(t *testing.T) {
	svc := &fakeService{}
	r := New(svc, zap.NewNop())

	first, err := r.Subscribe(context.Background(), SourceHeadless, "ws-1")
	require.NoError(t, err)
	second, err := r.Subscribe(context.Background(), SourceHeadless, "ws-1")
	require.NoError(t, err)

	<-first.Done()
	assert.ErrorIs(t, first.Err(), ErrSuperseded)
	assert.Equal(t, 1, svc.Len())

	svc.HeadlessLogs(core.HeadlessLogEvent{WorkspaceID: "ws-1", Text: "hello"})
	assert.Equal(t, "hello", next(t, second))
	_, err = first.Next(context.Background())
	assert.ErrorIs(t, err, ErrSuperseded)
}

func TestStream_CloseUnregisters(t *testing.T) {
	svc := &fakeService{}
	r := New(svc, zap.NewNop())
	st, err := r.Subscribe(context.Background(), SourceHeadless, "ws-1")
	require.NoError(t, err)

	st.Close()
	st.Close()
	assert.Equal(t, 0, svc.Len())
	assert.False(t, r.Active("ws-1"))

	svc.HeadlessLogs(core.HeadlessLogEvent{WorkspaceID: "ws-1", Text: "late"})
	_, err = st.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscribe_WatchFailureReleases(t *testing.T) {
	svc := &fakeService{err: errors.New("boom")}
	r := New(svc, zap.NewNop())
	_, err := r.Subscribe(context.Background(), SourceHeadless, "ws-1")
	require.Error(t, err)
	assert.Equal(t, 0, svc.Len())
	assert.False(t, r.Active("ws-1"))
}

func TestSubscribe_RewatchOnReconnect(t *testing.T) {
	svc := &fakeService{}
	_, err := New(svc, zap.NewNop()).Subscribe(context.Background(), SourceImageBuild, "ws-1")
	require.NoError(t, err)

	svc.DidOpenConnection()
	require.Eventually(t, func() bool { return len(svc.calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"image-build:ws-1", "image-build:ws-1"}, svc.calls())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchImageBuildLogs_CopiesToSink(t *testing.T) {
	svc := &fakeService{}
	sink := &syncBuffer{}
	r := New(svc, zap.NewNop())
	r.Sink = sink

	require.NoError(t, r.WatchImageBuildLogs(context.Background(), "ws-1"))
	svc.ImageBuildLogs(core.HeadlessLogEvent{WorkspaceID: "ws-1", Text: "step 1/3\n"})
	svc.ImageBuildLogs(core.HeadlessLogEvent{WorkspaceID: "ws-1", Text: "step 2/3\n"})

	require.Eventually(t, func() bool { return sink.String() == "step 1/3\nstep 2/3\n" }, time.Second, 5*time.Millisecond)
	r.Close()
	assert.False(t, r.Active("ws-1"))
}

func TestParseSource(t *testing.T) {
	src, err := ParseSource("")
	require.NoError(t, err)
	assert.Equal(t, SourceHeadless, src)

	src, err = ParseSource("image-build")
	require.NoError(t, err)
	assert.Equal(t, SourceImageBuild, src)

	_, err = ParseSource("stdout")
	assert.ErrorIs(t, err, core.NewAppError(core.ErrBadRequest, ""))
}
