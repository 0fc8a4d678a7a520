package broadcast

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/clustermux/internal/wire"
)

// writeBackoff is how long a server task sleeps when no frame is
// pending, after probing the pipe with a keep-alive.
const writeBackoff = 5 * time.Millisecond

// Transport owns the broadcaster and the set of per-client server
// tasks. One task is spawned per expected client; each waits for its
// own pipe connection and then streams every published frame to it.
type Transport struct {
	broadcaster *Broadcaster
	listener    net.Listener
	logger      zerolog.Logger

	// The task list has its own lock, independent of any registry
	// lock; no caller ever holds both.
	mu      sync.Mutex
	running int
	idle    chan struct{} // closed when running drops to zero
}

// NewTransport wraps a pipe listener. The listener's accepted
// connections are handed to server tasks in arrival order.
func NewTransport(listener net.Listener, logger zerolog.Logger) *Transport {
	return &Transport{
		broadcaster: NewBroadcaster(),
		listener:    listener,
		logger:      logger,
		idle:        make(chan struct{}),
	}
}

// Publish encodes the event and fans it out to every server task.
func (t *Transport) Publish(ev wire.KeyEvent) {
	t.broadcaster.Publish(wire.Encode(ev))
}

// AddServers spawns count additional server tasks. Called once at
// startup for the initial host list and again when control mode adds
// clients. Each task's subscription is created here, before the task
// waits for its client, so frames published while the client console
// is still starting up are queued for it rather than lost.
func (t *Transport) AddServers(count int) {
	t.mu.Lock()
	if t.running == 0 {
		t.idle = make(chan struct{})
	}
	t.running += count
	t.mu.Unlock()

	for i := 0; i < count; i++ {
		go t.serve(t.broadcaster.Subscribe())
	}
}

// Running returns the number of server tasks that have not yet
// finished.
func (t *Transport) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Idle returns a channel that is closed once every running server task
// has finished. Used by the orchestrator to observe client teardown
// instead of polling.
func (t *Transport) Idle() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.idle
}

// Stop closes the listener, unblocking any server task still waiting
// for a client connection.
func (t *Transport) Stop() {
	_ = t.listener.Close()
}

func (t *Transport) taskDone() {
	t.mu.Lock()
	t.running--
	if t.running == 0 {
		close(t.idle)
	}
	t.mu.Unlock()
}

// serve is one server task: accept a single client connection, then
// pump frames at it until the peer goes away. The subscription is
// already live on entry, so nothing published during the connection
// wait is missed.
func (t *Transport) serve(sub *Subscription) {
	defer t.taskDone()
	defer t.broadcaster.Unsubscribe(sub)

	conn, err := t.listener.Accept()
	if err != nil {
		// Listener torn down before a client connected.
		t.logger.Debug().Err(err).Msg("pipe accept ended")
		return
	}
	defer conn.Close()

	keepAlive := wire.KeepAliveFrame()
	for {
		frame, ok := sub.TryRecv()
		if !ok {
			// Nothing pending: probe the pipe so a closed peer is
			// noticed before the next real keystroke.
			if _, err := conn.Write(keepAlive[:]); err != nil {
				t.logger.Debug().Err(err).Msg("pipe closed, server task ending")
				return
			}
			time.Sleep(writeBackoff)
			continue
		}
		if err := writeFull(conn, frame[:]); err != nil {
			// Expected when the client exits.
			t.logger.Debug().Err(err).Msg("pipe write failed, server task ending")
			return
		}
	}
}

// writeFull retries short writes until the whole frame is on the pipe
// or the pipe rejects further writes.
func writeFull(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}
