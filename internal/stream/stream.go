// Package stream fans alert events out to live subscribers.
package stream

import (
	"context"
	"sync"

	"camguard.dev/internal/monitor"
	"camguard.dev/internal/obs"
)

// Filter selects the alert events a subscriber receives. TenantID is
// mandatory; a non-empty ClientID narrows to one client.
type Filter struct {
	TenantID string
	ClientID string
}

func (f Filter) match(a monitor.Alert) bool {
	if f.TenantID == "" || a.TenantID != f.TenantID {
		return false
	}
	return f.ClientID == "" || a.ClientID == f.ClientID
}

type subscriber struct {
	filter Filter
	ch     chan monitor.AlertEvent
}

// Stream delivers alert events to SSE clients. A subscriber that falls
// behind by more than its buffer loses events; it never blocks publishers.
type Stream struct {
	mu     sync.RWMutex
	subs   map[int]subscriber
	next   int
	buffer int
}

// Option configures a Stream.
type Option func(*Stream)

// WithBuffer sets the per-subscriber buffer.
func WithBuffer(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// New returns a stream without subscribers.
func New(opts ...Option) *Stream {
	s := &Stream{subs: make(map[int]subscriber), buffer: 16}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe returns a channel of events matching f. It is closed once ctx
// ends. A filter without tenant matches nothing.
func (s *Stream) Subscribe(ctx context.Context, f Filter) <-chan monitor.AlertEvent {
	ch := make(chan monitor.AlertEvent, s.buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{filter: f, ch: ch}
	obs.SetStreamSubscribers(len(s.subs))
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		obs.SetStreamSubscribers(len(s.subs))
		s.mu.Unlock()
	}()

	return ch
}

// PublishAlert offers evt to every matching subscriber.
func (s *Stream) PublishAlert(evt monitor.AlertEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if !sub.filter.match(evt.Alert) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			obs.ObserveStreamDrop(string(evt.Kind))
		}
	}
}

// Subscribers reports the number of live subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
