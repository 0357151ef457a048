package stream

import (
	"sync"

	"github.com/askislamically/backend/internal/model/chat"
)

// Event names sent on the stream.
const (
	EventState  = "state"
	EventNotice = "notice"
	EventScroll = "scroll"
	EventFocus  = "focus"
)

// Event is one session callback, ready to be written as SSE.
type Event struct {
	Name string
	Data any
}

const subscriberBuffer = 32

// Broadcaster is a chat session Listener that fans events out to every
// subscribed stream. Slow subscribers lose events rather than stall the session.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	last   *chat.Snapshot
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

func (b *Broadcaster) StateChanged(s chat.Snapshot) {
	b.mu.Lock()
	b.last = &s
	b.mu.Unlock()
	b.publish(Event{Name: EventState, Data: s})
}

func (b *Broadcaster) Notify(n chat.Notification) {
	b.publish(Event{Name: EventNotice, Data: n})
}

func (b *Broadcaster) ScrollToLatest() {
	b.publish(Event{Name: EventScroll, Data: struct{}{}})
}

func (b *Broadcaster) FocusInput() {
	b.publish(Event{Name: EventFocus, Data: struct{}{}})
}

func (b *Broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of events and the last published state, if any.
// The channel is closed by cancel or Close.
func (b *Broadcaster) Subscribe() (<-chan Event, *chat.Snapshot, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, b.last, func() {}
	}
	b.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
	return ch, b.last, cancel
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

// Registry maps session IDs to their broadcaster.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Broadcaster
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Broadcaster)}
}

func (r *Registry) Register(sessionID string, b *Broadcaster) {
	r.mu.Lock()
	r.byID[sessionID] = b
	r.mu.Unlock()
}

func (r *Registry) Lookup(sessionID string) (*Broadcaster, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[sessionID]
	return b, ok
}

// Remove closes and forgets the session's broadcaster.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	b, ok := r.byID[sessionID]
	delete(r.byID, sessionID)
	r.mu.Unlock()
	if ok {
		b.Close()
	}
}
