package gateway

import (
	"sync"

	"github.com/fairline/loft/pkg/datum"
)

// Subscription is one subscriber's view of the artifact event stream.
// Events are delivered in commit order with a per-subscription sequence
// number. When the buffer overflows, delivery stops and a single
// SubscriberOverflowError is pushed on the error channel; the client must
// re-fetch current state through the gateway and call Resynced before
// delivery resumes. The sequence number keeps counting across the gap.
type Subscription struct {
	clientID string
	kinds    map[datum.ArtifactKind]bool

	events   chan Event
	errors   chan error
	capacity int

	mu       sync.Mutex
	seq      int64
	overflow bool
	closed   bool

	closeOnce  sync.Once
	unregister func()
}

// Events returns the channel artifact updates are delivered on.
// The channel is closed when the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Errors returns the channel resync signals are delivered on.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// ClientID returns the subscriber identity given at Subscribe time.
func (s *Subscription) ClientID() string {
	return s.clientID
}

// Resynced re-arms delivery after an overflow. The client calls this once
// it has re-fetched current state; events committed between the overflow
// and this call are gone from the stream, which the next Seq gap reflects.
func (s *Subscription) Resynced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overflow = false
}

// Close detaches the subscription from the gateway and closes both
// channels. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.unregister()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.events)
		close(s.errors)
	})
	return nil
}

// deliver pushes the batch events this subscription cares about. Returns
// true if the buffer overflowed on this batch. All sends happen under
// s.mu, so deliver never races a Close.
func (s *Subscription) deliver(events []*datum.ArtifactEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.overflow {
		return false
	}

	for _, ev := range events {
		if len(s.kinds) > 0 && !s.kinds[ev.Kind] {
			continue
		}
		select {
		case s.events <- Event{Seq: s.seq + 1, ArtifactEvent: *ev}:
			s.seq++
		default:
			s.overflow = true
			select {
			case s.errors <- &SubscriberOverflowError{
				ClientID: s.clientID,
				Capacity: s.capacity,
				LastSeq:  s.seq,
			}:
			default:
			}
			return true
		}
	}
	return false
}
