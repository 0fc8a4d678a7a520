// Package broadcast fans the daemon's keystroke frame stream out to
// every connected client over point-to-point pipes. A single producer
// publishes encoded frames; each client's server task consumes its own
// bounded queue, so one stalled client never blocks the others.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/user/clustermux/internal/wire"
)

// Capacity bounds each subscriber's frame queue. When a subscriber
// falls this far behind, its oldest unread frames are evicted.
const Capacity = 1 << 20

// Frame is one encoded keystroke message.
type Frame = [wire.FrameLen]byte

// Subscription is one consumer's view of the broadcast stream.
type Subscription struct {
	ch      chan Frame
	dropped atomic.Uint64
}

// TryRecv returns the next frame without blocking. The second result
// is false when no frame is pending.
//
// A closed channel here means the producer went away while this
// subscriber was still attached. That is a programming-invariant
// violation, not an environmental fault, so it panics rather than
// letting the server task spin on corrupted state.
func (s *Subscription) TryRecv() (Frame, bool) {
	select {
	case f, ok := <-s.ch:
		if !ok {
			panic("broadcast: producer closed while a subscriber is still attached")
		}
		return f, true
	default:
		return Frame{}, false
	}
}

// Dropped returns how many frames were evicted from this subscriber's
// queue because it fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Broadcaster is the single-producer, multi-consumer frame channel.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBroadcaster returns a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe attaches a new consumer. Every frame published after this
// call is delivered to it in publish order.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		panic("broadcast: subscribe after close")
	}
	s := &Subscription{ch: make(chan Frame, Capacity)}
	b.subs[s] = struct{}{}
	return s
}

// Unsubscribe detaches a consumer. Safe to call for an already
// detached subscription.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, s)
}

// Subscribers returns the number of attached consumers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers the frame to every subscriber. A full queue evicts
// the subscriber's oldest unread frame so delivery never blocks the
// producer; evictions are counted on the subscription.
func (b *Broadcaster) Publish(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- f:
			continue
		default:
		}
		// Queue full: make room by dropping the oldest frame.
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
		select {
		case s.ch <- f:
		default:
			s.dropped.Add(1)
		}
	}
}

// Close tears the broadcaster down. It must only be called once every
// subscriber has detached; closing with live subscribers trips the
// TryRecv invariant panic on their next receive.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
	}
}
