package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/clustermux/internal/wire"
)

func frame(vk uint16) Frame {
	return wire.Encode(wire.KeyEvent{KeyDown: true, VirtualKeyCode: vk})
}

func TestPublishFansOutInOrder(t *testing.T) {
	b := NewBroadcaster()
	first := b.Subscribe()
	second := b.Subscribe()

	frames := []Frame{frame(1), frame(2), frame(3)}
	for _, f := range frames {
		b.Publish(f)
	}

	for _, sub := range []*Subscription{first, second} {
		for _, want := range frames {
			got, ok := sub.TryRecv()
			require.True(t, ok)
			assert.Equal(t, want, got)
		}
		_, ok := sub.TryRecv()
		assert.False(t, ok)
	}
}

func TestSubscribeMissesEarlierFrames(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(frame(1))

	late := b.Subscribe()
	_, ok := late.TryRecv()
	assert.False(t, ok)

	b.Publish(frame(2))
	got, ok := late.TryRecv()
	require.True(t, ok)
	assert.Equal(t, frame(2), got)
}

func TestPublishEvictsOldestWhenFull(t *testing.T) {
	b := NewBroadcaster()
	// Hand-built subscription with a tiny queue to make overflow
	// reachable.
	s := &Subscription{ch: make(chan Frame, 2)}
	b.subs[s] = struct{}{}

	b.Publish(frame(1))
	b.Publish(frame(2))
	b.Publish(frame(3))

	got, ok := s.TryRecv()
	require.True(t, ok)
	assert.Equal(t, frame(2), got, "oldest frame is evicted first")
	got, ok = s.TryRecv()
	require.True(t, ok)
	assert.Equal(t, frame(3), got)
	assert.Equal(t, uint64(1), s.Dropped())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe()
	b.Unsubscribe(s)
	b.Publish(frame(1))
	_, ok := s.TryRecv()
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers())
}

func TestCloseWithLiveSubscriberPanics(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe()
	b.Close()
	assert.Panics(t, func() { s.TryRecv() })
}

func TestCloseAfterDetachIsQuiet(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe()
	b.Unsubscribe(s)
	b.Close()
	_, ok := s.TryRecv()
	assert.False(t, ok)
}
