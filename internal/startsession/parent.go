package startsession

import (
	"encoding/json"
	"sync"
)

// Parent message types.
const (
	MessageRelocate = "relocate"
	MessageSetState = "setState"
)

// ParentMessage is exchanged with an embedding parent context.
type ParentMessage struct {
	Type  string          `json:"type"`
	URL   string          `json:"url,omitempty"`
	State json.RawMessage `json:"state,omitempty"`
}

// Parent is the embedding context of a session. A session with a Parent
// never navigates on its own; it posts relocate messages instead.
type Parent interface {
	PostMessage(msg ParentMessage) error
	AddListener(fn func(ParentMessage)) (remove func())
}

// ParentChannel is an in-process Parent. Outgoing messages fan out to
// subscribers; incoming ones are fed in with Deliver.
type ParentChannel struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func(ParentMessage)
	subs      map[int]func(ParentMessage)
	last      *ParentMessage
}

func NewParentChannel() *ParentChannel {
	return &ParentChannel{
		listeners: make(map[int]func(ParentMessage)),
		subs:      make(map[int]func(ParentMessage)),
	}
}

// PostMessage sends msg to every subscriber. The latest relocate message is
// kept and replayed to late subscribers.
func (p *ParentChannel) PostMessage(msg ParentMessage) error {
	p.mu.Lock()
	if msg.Type == MessageRelocate {
		m := msg
		p.last = &m
	}
	subs := collect(p.subs)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
	return nil
}

// Subscribe registers fn for outgoing messages.
func (p *ParentChannel) Subscribe(fn func(ParentMessage)) (cancel func()) {
	p.mu.Lock()
	id := p.add(p.subs, fn)
	last := p.last
	p.mu.Unlock()
	if last != nil {
		fn(*last)
	}
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

func (p *ParentChannel) AddListener(fn func(ParentMessage)) func() {
	p.mu.Lock()
	id := p.add(p.listeners, fn)
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Deliver passes a message from the parent to the session's listeners.
func (p *ParentChannel) Deliver(msg ParentMessage) {
	p.mu.Lock()
	fns := collect(p.listeners)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

// LastRelocate returns the URL of the latest relocate message.
func (p *ParentChannel) LastRelocate() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return ""
	}
	return p.last.URL
}

func (p *ParentChannel) add(m map[int]func(ParentMessage), fn func(ParentMessage)) int {
	p.next++
	m[p.next] = fn
	return p.next
}

func collect(m map[int]func(ParentMessage)) []func(ParentMessage) {
	out := make([]func(ParentMessage), 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
