package logrelay

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/observability"
	"github.com/lzjever/mbos-dash/internal/protocol"
)

// Stream is a live, append-only sequence of log chunks for one id. Chunks
// are queued without bound and never dropped. A Stream cannot be restarted
// once it ends.
type Stream struct {
	ID     string
	Source Source

	relay *Relay
	log   *zap.Logger

	mu     sync.Mutex
	queue  []string
	err    error
	sub    protocol.Disposable
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newStream(r *Relay, src Source, id string) *Stream {
	return &Stream{
		ID:     id,
		Source: src,
		relay:  r,
		log:    r.log.With(zap.String("log_id", id), zap.String("source", string(src))),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Stream) setSubscription(d protocol.Disposable) {
	s.mu.Lock()
	ended := s.err != nil
	if !ended {
		s.sub = d
	}
	s.mu.Unlock()
	if ended {
		d.Dispose()
	}
}

func (s *Stream) push(text string) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, text)
	s.mu.Unlock()
	observability.LogChunksTotal.WithLabelValues(string(s.Source)).Inc()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until a chunk is available, the stream ends or ctx is done.
func (s *Stream) Next(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return "", err
		}
		if len(s.queue) > 0 {
			chunk := s.queue[0]
			s.queue[0] = ""
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return chunk, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.done:
		case <-s.notify:
		}
	}
}

// CopyTo writes every chunk to w as it arrives. It returns nil when the
// stream is closed by its owner.
func (s *Stream) CopyTo(ctx context.Context, w io.Writer) error {
	for {
		chunk, err := s.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
	}
}

// Done is closed when the stream ends.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err reports why the stream ended, or nil while it is live.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unregisters the push handler and ends the stream.
func (s *Stream) Close() {
	s.end(ErrClosed)
}

func (s *Stream) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.queue = nil
		sub := s.sub
		s.sub = nil
		s.mu.Unlock()
		if sub != nil {
			sub.Dispose()
		}
		s.relay.release(s)
		close(s.done)
		s.log.Debug("log stream ended", zap.Error(err))
	})
}
