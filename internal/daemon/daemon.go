// Package daemon runs the controlling console: it launches one client
// console per host, tiles every window into the grid, broadcasts its
// own keystrokes to the clients, and drives control mode.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/clustermux/internal/broadcast"
	"github.com/user/clustermux/internal/config"
	"github.com/user/clustermux/internal/console"
	"github.com/user/clustermux/internal/control"
	"github.com/user/clustermux/internal/layout"
	"github.com/user/clustermux/internal/registry"
	"github.com/user/clustermux/internal/wire"
)

const (
	// windowWaitTimeout bounds how long a freshly spawned client gets
	// to create its console window.
	windowWaitTimeout = 10 * time.Second

	defaultWindowPollInterval = 10 * time.Millisecond
	defaultMonitorInterval    = 50 * time.Millisecond
	defaultZOrderInterval     = 50 * time.Millisecond
)

// Options carries the launch parameters the daemon forwards to every
// client it spawns.
type Options struct {
	// Executable is the clustermux binary to spawn client consoles
	// with, normally the daemon's own path.
	Executable string
	Username   string
	Port       int
	Debug      bool
	Hosts      []string
}

// Orchestrator is the daemon's top-level loop and the control-mode
// command dispatcher.
type Orchestrator struct {
	api    console.Api
	cfg    config.Config
	opts   Options
	out    io.Writer
	logger zerolog.Logger

	registry  *registry.Registry
	transport *broadcast.Transport
	machine   *control.Machine

	// runCtx is the context of the active Run call; control-mode
	// commands dispatched from the input loop launch clients under it.
	runCtx context.Context

	windowPollInterval time.Duration
	monitorInterval    time.Duration
	zOrderInterval     time.Duration
}

// New builds an orchestrator. Run does the actual console takeover.
func New(api console.Api, cfg config.Config, opts Options, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		api:                api,
		cfg:                cfg,
		opts:               opts,
		out:                os.Stdout,
		logger:             logger,
		registry:           registry.New(),
		windowPollInterval: defaultWindowPollInterval,
		monitorInterval:    defaultMonitorInterval,
		zOrderInterval:     defaultZOrderInterval,
	}
}

// Run owns the daemon console until every client is gone or ctx ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.runCtx = ctx

	o.api.SetConsoleTitle("clustermux daemon")
	o.api.SetConsoleColor(o.cfg.Daemon.ConsoleColor)
	o.api.SetConsoleBorderColor(uint32(o.cfg.Daemon.ConsoleColor))
	if err := o.api.DisableProcessedInput(); err != nil {
		return fmt.Errorf("failed to take over console input: %w", err)
	}

	listener, err := o.api.ListenPipe(console.PipeName)
	if err != nil {
		return fmt.Errorf("failed to open keystroke pipe: %w", err)
	}
	o.transport = broadcast.NewTransport(listener, o.logger)
	defer o.transport.Stop()

	o.machine = control.NewMachine(o.api, o, o.cfg.Clusters, o.out, o.logger)

	// Server tasks must be accepting before the clients start dialing.
	o.transport.AddServers(len(o.opts.Hosts))
	o.launchClients(ctx, o.opts.Hosts)
	o.Retile()
	o.api.SetForegroundWindow(o.api.ConsoleWindow())
	o.machine.PrintInstructions()

	empty := make(chan struct{}, 1)
	go o.monitorClients(ctx, empty)
	go o.syncZOrder(ctx)

	events := make(chan wire.KeyEvent)
	readReq := make(chan struct{}, 1)
	readFailed := make(chan error, 1)
	go o.readInput(ctx, readReq, events, readFailed)

	// One raw read outstanding at a time, and none while an event is
	// being processed: the control-mode Create prompt does a cooked
	// line read on the same console input buffer, and a concurrent raw
	// read would steal its keystrokes.
	readReq <- struct{}{}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-empty:
			o.logger.Info().Msg("all clients gone, shutting down")
			return nil
		case <-o.transport.Idle():
			o.logger.Info().Msg("all client pipes closed, shutting down")
			return nil
		case err := <-readFailed:
			return fmt.Errorf("console input ended: %w", err)
		case ev := <-events:
			if !o.machine.Process(ev) {
				o.transport.Publish(ev)
			}
			readReq <- struct{}{}
		}
	}
}

// readInput reads one raw key event per request, so the main loop
// controls exactly when a console read is pending.
func (o *Orchestrator) readInput(ctx context.Context, requests <-chan struct{}, events chan<- wire.KeyEvent, failed chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-requests:
		}
		ev, err := o.api.ReadKeyEvent()
		if err != nil {
			failed <- err
			return
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// launchClients spawns one client console per host concurrently, then
// registers the results in host-list order. Registry order drives tile
// positions and the clipboard list, so it must follow the host list no
// matter which spawn finished first. A host whose console never
// produces a window is logged and skipped.
func (o *Orchestrator) launchClients(ctx context.Context, hosts []string) {
	type launch struct {
		client registry.Client
		err    error
	}
	results := make([]launch, len(hosts))

	var wg sync.WaitGroup
	for i, host := range hosts {
		wg.Add(1)
		go func(i int, host string) {
			defer wg.Done()
			client, err := o.spawnClient(ctx, host)
			results[i] = launch{client: client, err: err}
		}(i, host)
	}
	wg.Wait()

	for i, res := range results {
		if res.err != nil {
			o.logger.Error().Err(res.err).Str("host", hosts[i]).Msg("failed to launch client")
			continue
		}
		o.registry.Insert(res.client)
		o.logger.Info().Str("host", hosts[i]).Msg("client launched")
	}
}

func (o *Orchestrator) spawnClient(ctx context.Context, host string) (registry.Client, error) {
	process, err := o.api.SpawnClientConsole(o.opts.Executable, o.clientArgs(host))
	if err != nil {
		return registry.Client{}, fmt.Errorf("failed to spawn client console: %w", err)
	}

	window, err := o.awaitWindow(ctx, process)
	if err != nil {
		return registry.Client{}, err
	}

	return registry.Client{
		Hostname: host,
		Window:   window,
		Process:  process,
	}, nil
}

// awaitWindow polls until the spawned console has created its window.
func (o *Orchestrator) awaitWindow(ctx context.Context, p console.ProcessHandle) (console.WindowHandle, error) {
	deadline := time.Now().Add(windowWaitTimeout)
	for {
		if w, ok := o.api.WindowForProcess(p); ok {
			return w, nil
		}
		if o.api.ProcessExited(p) {
			return 0, errors.New("client exited before creating a window")
		}
		if time.Now().After(deadline) {
			return 0, errors.New("client window did not appear")
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(o.windowPollInterval):
		}
	}
}

// clientArgs builds the spawn arguments for one client console,
// forwarding the daemon's own flags.
func (o *Orchestrator) clientArgs(host string) []string {
	var args []string
	if o.opts.Debug {
		args = append(args, "-d")
	}
	if o.opts.Username != "" {
		args = append(args, "-u", o.opts.Username)
	}
	if o.opts.Port != 0 {
		args = append(args, "-p", strconv.Itoa(o.opts.Port))
	}
	return append(args, "client", "--", host)
}

// workspace derives the client tiling area from the current screen
// metrics.
func (o *Orchestrator) workspace() layout.WorkspaceArea {
	return layout.Workspace(o.api.Metrics(), o.cfg.Daemon.Height)
}

// Retile recomputes the grid for the current live clients and applies
// it, then re-arranges the daemon's own strip.
func (o *Orchestrator) Retile() {
	ws := o.workspace()
	alpha := o.cfg.Daemon.AspectRatioAdjustment
	clients := o.registry.Iter()
	for i, c := range clients {
		rect := layout.Plan(i, len(clients), ws, alpha)
		if err := o.api.MoveWindow(c.Client.Window, rect); err != nil {
			o.logger.Warn().Err(err).Str("host", c.Client.Hostname).Msg("failed to move client window")
		}
	}
	if err := o.api.MoveWindow(o.api.ConsoleWindow(), layout.DaemonRect(ws, o.cfg.Daemon.Height)); err != nil {
		o.logger.Warn().Err(err).Msg("failed to move daemon window")
	}
}

// CreateClients launches additional clients from control mode and
// re-tiles to fit them in.
func (o *Orchestrator) CreateClients(hosts []string) {
	o.transport.AddServers(len(hosts))
	o.launchClients(o.runCtx, hosts)
	o.Retile()
	o.api.SetForegroundWindow(o.api.ConsoleWindow())
}

// CopyHostnames puts the live hostnames, space separated, on the
// clipboard.
func (o *Orchestrator) CopyHostnames() {
	text := strings.Join(o.registry.Hostnames(), " ")
	if err := o.api.WriteClipboard(text); err != nil {
		o.logger.Warn().Err(err).Msg("failed to write clipboard")
	}
}

// monitorClients tombstones clients whose process died or whose window
// disappeared, and signals empty once none remain.
func (o *Orchestrator) monitorClients(ctx context.Context, empty chan<- struct{}) {
	ticker := time.NewTicker(o.monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		o.registry.Retain(func(c registry.Client) bool {
			if o.api.ProcessExited(c.Process) {
				o.logger.Info().Str("host", c.Hostname).Msg("client exited")
				return false
			}
			if !o.api.IsWindow(c.Window) {
				o.logger.Info().Str("host", c.Hostname).Msg("client window gone")
				return false
			}
			return true
		})
		if o.registry.Empty() {
			empty <- struct{}{}
			return
		}
	}
}

// syncZOrder raises the whole cluster when the daemon console regains
// focus from an unrelated window, so clients are visible above other
// applications but below the daemon.
func (o *Orchestrator) syncZOrder(ctx context.Context) {
	ticker := time.NewTicker(o.zOrderInterval)
	defer ticker.Stop()
	last := o.api.ForegroundWindow()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		fg := o.api.ForegroundWindow()
		if fg == last {
			continue
		}
		if fg == o.api.ConsoleWindow() && !o.isManaged(last) {
			o.raiseAll()
		}
		last = fg
	}
}

func (o *Orchestrator) isManaged(h console.WindowHandle) bool {
	if h == o.api.ConsoleWindow() {
		return true
	}
	for _, c := range o.registry.Iter() {
		if c.Client.Window == h {
			return true
		}
	}
	return false
}

// raiseAll restores and raises every client window, then puts the
// daemon back on top.
func (o *Orchestrator) raiseAll() {
	for _, c := range o.registry.Iter() {
		o.api.RestoreIfMinimized(c.Client.Window)
		o.api.SetForegroundWindow(c.Client.Window)
	}
	own := o.api.ConsoleWindow()
	o.api.RestoreIfMinimized(own)
	o.api.SetForegroundWindow(own)
}

var _ control.Commander = (*Orchestrator)(nil)
