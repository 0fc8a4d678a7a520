package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/user/clustermux/internal/config"
	"github.com/user/clustermux/internal/console"
	"github.com/user/clustermux/internal/wire"
)

// Exit statuses of the remote shell that end the client without
// complaint: success, remote command failure, and interrupt.
var cleanExitCodes = map[int]bool{0: true, 1: true, 130: true}

// rescueModifiers must all be held, together with the C key, to
// dismiss an errored client window.
const rescueModifiers = wire.RightAltPressed | wire.LeftAltPressed | wire.ShiftPressed

// IsRescueCombo reports whether ev is the errored-state dismissal
// keystroke.
func IsRescueCombo(ev wire.KeyEvent) bool {
	return ev.KeyDown &&
		ev.VirtualKeyCode == wire.VKC &&
		ev.ControlKeyState&rescueModifiers == rescueModifiers
}

// Runner owns one client console: title, keystroke replay, and the
// remote-shell child process.
type Runner struct {
	api      console.Api
	cfg      config.ClientConfig
	host     string
	username string
	port     int
	out      io.Writer
	logger   zerolog.Logger

	// runShell is swapped out by tests; the default execs the
	// configured remote-shell program.
	runShell func(ctx context.Context, program string, args []string) (int, error)
}

// NewRunner builds a runner for one target host. username may be
// empty, in which case the ssh config is consulted and a bare host is
// used as the last resort.
func NewRunner(api console.Api, cfg config.ClientConfig, host, username string, port int, logger zerolog.Logger) *Runner {
	return &Runner{
		api:      api,
		cfg:      cfg,
		host:     host,
		username: username,
		port:     port,
		out:      os.Stdout,
		logger:   logger,
		runShell: execShell,
	}
}

// Target returns the "user@host" the remote shell connects to, or the
// bare host when no username could be resolved.
func (r *Runner) Target() string {
	if r.username != "" {
		return r.username + "@" + r.host
	}
	if user, ok := UsernameFromSSHConfig(r.cfg.SSHConfigPath, r.host); ok {
		return user + "@" + r.host
	}
	return r.host
}

// shellArgs substitutes the target into the configured argument list
// and prepends the port option when one was given.
func (r *Runner) shellArgs(target string) []string {
	args := make([]string, 0, len(r.cfg.Arguments)+2)
	if r.port != 0 {
		args = append(args, "-p", strconv.Itoa(r.port))
	}
	for _, a := range r.cfg.Arguments {
		args = append(args, strings.ReplaceAll(a, config.UsernameHostPlaceholder, target))
	}
	return args
}

// Run drives the whole client session: connect the transport, start
// the shell, replay keystrokes, and supervise the exit. It returns nil
// for a completed session, including one dismissed with the rescue
// combination.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		if err := r.api.SignalShutdown(); err != nil {
			r.logger.Warn().Err(err).Msg("failed to signal shutdown")
		}
	}()

	target := r.Target()
	r.api.SetConsoleTitle(target)

	// While the shell is healthy, every broadcast keystroke is written
	// into this console's input buffer so the shell reads it as if
	// typed locally. Once errored, input is only scanned for the
	// rescue combination.
	var errored atomic.Bool
	rescue := make(chan struct{}, 1)
	sink := func(ev wire.KeyEvent) {
		if errored.Load() {
			if IsRescueCombo(ev) {
				select {
				case rescue <- struct{}{}:
				default:
				}
			}
			return
		}
		if err := r.api.WriteKeyEvent(ev); err != nil {
			r.logger.Warn().Err(err).Msg("failed to replay key event")
		}
	}

	transport := NewTransport(func() (net.Conn, error) {
		return r.api.DialPipe(console.PipeName)
	}, r.logger)
	transportDone := make(chan error, 1)
	go func() {
		transportDone <- transport.Run(ctx, sink)
	}()

	shellDone := make(chan shellResult, 1)
	go func() {
		code, err := r.runShell(ctx, r.cfg.Program, r.shellArgs(target))
		shellDone <- shellResult{code: code, err: err}
	}()

	select {
	case err := <-transportDone:
		// Daemon gone: tear the shell down and end the session.
		cancel()
		<-shellDone
		return err
	case res := <-shellDone:
		if res.err != nil {
			return res.err
		}
		if cleanExitCodes[res.code] {
			return nil
		}
		return r.awaitRescue(ctx, res.code, rescue, transportDone, &errored)
	}
}

// awaitRescue holds an errored client window open until the operator
// dismisses it, the daemon goes away, or ctx ends.
func (r *Runner) awaitRescue(ctx context.Context, code int, rescue <-chan struct{}, transportDone <-chan error, errored *atomic.Bool) error {
	errored.Store(true)
	fmt.Fprintf(r.out, "Connection to %s failed (exit status %d).\n", r.host, code)
	fmt.Fprintln(r.out, "Press Alt Gr + Shift + C to close this window.")

	select {
	case <-rescue:
		return nil
	case err := <-transportDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type shellResult struct {
	code int
	err  error
}

// execShell runs the remote-shell program with this console's stdio
// and reports its exit status.
func execShell(ctx context.Context, program string, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, fmt.Errorf("failed to run %s: %w", program, err)
}
