package console

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/user/clustermux/internal/layout"
	"github.com/user/clustermux/internal/wire"
)

// SpawnedProcess records one SpawnClientConsole call on the fake.
type SpawnedProcess struct {
	Executable string
	Args       []string
	Process    ProcessHandle
}

// Move records one MoveWindow call on the fake.
type Move struct {
	Window WindowHandle
	Rect   layout.Rect
}

type fakeWindow struct {
	alive     bool
	minimized bool
}

type fakeProcess struct {
	window WindowHandle
	exited bool
}

// Fake is the in-memory Api implementation used by tests. Spawned
// processes get a live window immediately; ExitProcess kills both.
// Keystroke input is scripted through PushKeyEvent and lines through
// the Lines slice.
type Fake struct {
	mu sync.Mutex

	Title       string
	Color       uint16
	BorderColor uint32
	Cleared     int
	ownWindow   WindowHandle

	processedInputOff bool
	lineInput         bool
	Lines             []string
	keyEvents         chan wire.KeyEvent
	Written           []wire.KeyEvent

	ScreenMetrics layout.Metrics

	windows    map[WindowHandle]*fakeWindow
	processes  map[ProcessHandle]*fakeProcess
	foreground WindowHandle
	nextHandle uintptr

	Spawned  []SpawnedProcess
	SpawnErr error
	Moves    []Move
	Restored []WindowHandle

	Shutdowns int
	Clipboard string

	pipeMu   sync.Mutex
	listener *memListener
}

// NewFake returns a fake with a plausible 1920x1080 screen and a live
// window for the daemon's own console.
func NewFake() *Fake {
	f := &Fake{
		ScreenMetrics: layout.Metrics{
			MaxWidth:    1920,
			MaxHeight:   1080,
			XFixedFrame: 3,
			YFixedFrame: 3,
			XSizeFrame:  8,
			YSizeFrame:  8,
			ScaleFactor: 1,
		},
		keyEvents: make(chan wire.KeyEvent, 256),
		windows:   make(map[WindowHandle]*fakeWindow),
		processes: make(map[ProcessHandle]*fakeProcess),
	}
	f.ownWindow = f.newWindowLocked()
	f.foreground = f.ownWindow
	return f
}

func (f *Fake) newWindowLocked() WindowHandle {
	f.nextHandle++
	h := WindowHandle(f.nextHandle)
	f.windows[h] = &fakeWindow{alive: true}
	return h
}

func (f *Fake) SetConsoleTitle(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Title = title
}

func (f *Fake) SetConsoleColor(attributes uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Color = attributes
}

func (f *Fake) SetConsoleBorderColor(color uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BorderColor = color
}

func (f *Fake) ClearScreen() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cleared++
}

func (f *Fake) ConsoleWindow() WindowHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ownWindow
}

func (f *Fake) DisableProcessedInput() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processedInputOff = true
	return nil
}

// ProcessedInputDisabled reports whether DisableProcessedInput ran.
func (f *Fake) ProcessedInputDisabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processedInputOff
}

func (f *Fake) SetLineInput(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lineInput = enabled
	return nil
}

func (f *Fake) ReadLine() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Lines) == 0 {
		return "", io.EOF
	}
	line := f.Lines[0]
	f.Lines = f.Lines[1:]
	return line, nil
}

// PushKeyEvent queues a keystroke for ReadKeyEvent.
func (f *Fake) PushKeyEvent(ev wire.KeyEvent) {
	f.keyEvents <- ev
}

// CloseInput makes any further ReadKeyEvent return an error, standing
// in for a torn-down console.
func (f *Fake) CloseInput() {
	close(f.keyEvents)
}

func (f *Fake) ReadKeyEvent() (wire.KeyEvent, error) {
	ev, ok := <-f.keyEvents
	if !ok {
		return wire.KeyEvent{}, errors.New("console input closed")
	}
	return ev, nil
}

func (f *Fake) WriteKeyEvent(ev wire.KeyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Written = append(f.Written, ev)
	return nil
}

// WrittenEvents returns a copy of every event replayed so far.
func (f *Fake) WrittenEvents() []wire.KeyEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wire.KeyEvent, len(f.Written))
	copy(out, f.Written)
	return out
}

func (f *Fake) Metrics() layout.Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ScreenMetrics
}

func (f *Fake) MoveWindow(h WindowHandle, r layout.Rect) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	if !ok || !w.alive {
		return errors.New("no such window")
	}
	f.Moves = append(f.Moves, Move{Window: h, Rect: r})
	return nil
}

// MovedWindows returns a copy of every MoveWindow call so far.
func (f *Fake) MovedWindows() []Move {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Move, len(f.Moves))
	copy(out, f.Moves)
	return out
}

func (f *Fake) IsWindow(h WindowHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	return ok && w.alive
}

func (f *Fake) ForegroundWindow() WindowHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.foreground
}

func (f *Fake) SetForegroundWindow(h WindowHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.foreground = h
}

// MinimizeWindow marks a window minimized so RestoreIfMinimized has
// something to undo.
func (f *Fake) MinimizeWindow(h WindowHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[h]; ok {
		w.minimized = true
	}
}

func (f *Fake) RestoreIfMinimized(h WindowHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.windows[h]
	if !ok || !w.minimized {
		return
	}
	w.minimized = false
	f.Restored = append(f.Restored, h)
}

// RestoredWindows returns a copy of every window RestoreIfMinimized
// actually restored.
func (f *Fake) RestoredWindows() []WindowHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]WindowHandle, len(f.Restored))
	copy(out, f.Restored)
	return out
}

// SpawnedProcesses returns a copy of every spawn call so far.
func (f *Fake) SpawnedProcesses() []SpawnedProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SpawnedProcess, len(f.Spawned))
	copy(out, f.Spawned)
	return out
}

func (f *Fake) SpawnClientConsole(executable string, args []string) (ProcessHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SpawnErr != nil {
		return 0, f.SpawnErr
	}
	window := f.newWindowLocked()
	f.nextHandle++
	p := ProcessHandle(f.nextHandle)
	f.processes[p] = &fakeProcess{window: window}
	f.Spawned = append(f.Spawned, SpawnedProcess{Executable: executable, Args: args, Process: p})
	return p, nil
}

func (f *Fake) WindowForProcess(p ProcessHandle) (WindowHandle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	proc, ok := f.processes[p]
	if !ok || proc.exited {
		return 0, false
	}
	return proc.window, true
}

func (f *Fake) ProcessExited(p ProcessHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	proc, ok := f.processes[p]
	return !ok || proc.exited
}

// ExitProcess marks a spawned process as gone and destroys its window.
func (f *Fake) ExitProcess(p ProcessHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	proc, ok := f.processes[p]
	if !ok {
		return
	}
	proc.exited = true
	if w, live := f.windows[proc.window]; live {
		w.alive = false
	}
}

func (f *Fake) SignalShutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Shutdowns++
	return nil
}

func (f *Fake) WriteClipboard(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clipboard = text
	return nil
}

// ClipboardText returns the last clipboard write.
func (f *Fake) ClipboardText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Clipboard
}

// memListener is an in-process stand-in for a named-pipe listener.
type memListener struct {
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func (l *memListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *memListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *memListener) Addr() net.Addr {
	return &net.UnixAddr{Name: "fake-pipe", Net: "unix"}
}

func (f *Fake) ListenPipe(name string) (net.Listener, error) {
	f.pipeMu.Lock()
	defer f.pipeMu.Unlock()
	if f.listener != nil {
		return nil, errors.New("pipe already listening")
	}
	f.listener = &memListener{
		conns:  make(chan net.Conn, 64),
		closed: make(chan struct{}),
	}
	return f.listener, nil
}

// DialPipe fails until ListenPipe has run, which exercises the client
// side's dial retry loop.
func (f *Fake) DialPipe(name string) (net.Conn, error) {
	f.pipeMu.Lock()
	defer f.pipeMu.Unlock()
	if f.listener == nil {
		return nil, errors.New("pipe not listening")
	}
	select {
	case <-f.listener.closed:
		return nil, net.ErrClosed
	default:
	}
	server, client := net.Pipe()
	f.listener.conns <- server
	return client, nil
}

var _ Api = (*Fake)(nil)
