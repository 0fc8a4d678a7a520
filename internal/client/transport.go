// Package client implements the per-host console: it connects back to
// the daemon's pipe, replays the broadcast keystrokes into its own
// console input buffer, and supervises the remote-shell child process.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/clustermux/internal/wire"
)

// dialRetryDelay paces the connect loop while the daemon's pipe is not
// up yet. The daemon spawns clients before it listens, so the first
// dial attempts are expected to fail.
const dialRetryDelay = 50 * time.Millisecond

// readChunkSize is the transport's read buffer. Frames are small; one
// chunk holds a burst of keystrokes comfortably.
const readChunkSize = 512

// Dialer opens one connection to the daemon's pipe. The facade's
// DialPipe, partially applied to the pipe name, satisfies it.
type Dialer func() (net.Conn, error)

// Sink receives each decoded keystroke in arrival order.
type Sink func(wire.KeyEvent)

// Transport is the client half of the keystroke pipe.
type Transport struct {
	dial   Dialer
	logger zerolog.Logger
}

// NewTransport returns a transport that connects through dial.
func NewTransport(dial Dialer, logger zerolog.Logger) *Transport {
	return &Transport{dial: dial, logger: logger}
}

// connect retries the dial until it succeeds or ctx is cancelled.
func (t *Transport) connect(ctx context.Context) (net.Conn, error) {
	for {
		conn, err := t.dial()
		if err == nil {
			return conn, nil
		}
		t.logger.Debug().Err(err).Msg("pipe not ready, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetryDelay):
		}
	}
}

// Run connects to the daemon and pumps decoded keystrokes into sink
// until the daemon disconnects or ctx is cancelled. A disconnect is the
// normal end of a session and returns nil.
func (t *Transport) Run(ctx context.Context, sink Sink) error {
	conn, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	// Reads land on arbitrary frame boundaries; pending carries the
	// partial tail frame between reads.
	var pending []byte
	chunk := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			var frames [][wire.FrameLen]byte
			frames, pending = wire.SplitFrames(pending)
			for _, f := range frames {
				if wire.IsKeepAlive(f[:]) {
					continue
				}
				ev, decodeErr := wire.Decode(f[:])
				if decodeErr != nil {
					return fmt.Errorf("failed to decode frame: %w", decodeErr)
				}
				sink(ev)
			}
		}
		if err != nil || n == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				// Daemon went away; the session is over.
				t.logger.Debug().Msg("daemon disconnected")
				return nil
			}
			return fmt.Errorf("failed to read from pipe: %w", err)
		}
	}
}
