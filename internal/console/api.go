// Package console is the OS facade: the one boundary through which the
// core touches the desktop environment. It covers the daemon's own
// console window, other processes' windows, console input modes, raw
// keystroke records, process spawning, the clipboard, and the named
// pipe endpoints. The core only ever sees the Api interface; the Win32
// calls live in the _windows files, and Fake is the in-memory test
// double.
package console

import (
	"net"

	"github.com/user/clustermux/internal/layout"
	"github.com/user/clustermux/internal/wire"
)

// WindowHandle identifies a top-level window. Zero means no window.
type WindowHandle uintptr

// ProcessHandle identifies a spawned client process. Zero means no
// process.
type ProcessHandle uintptr

// Api is the full facade surface. Implementations must be safe for
// concurrent use; the core treats the facade as a stateless, reentrant
// service.
type Api interface {
	// Own console window.
	SetConsoleTitle(title string)
	SetConsoleColor(attributes uint16)
	SetConsoleBorderColor(color uint32)
	ClearScreen()
	ConsoleWindow() WindowHandle

	// Input modes and keystrokes. DisableProcessedInput makes Ctrl+C
	// arrive as an ordinary key event instead of a signal. SetLineInput
	// temporarily restores cooked line reading for ReadLine.
	DisableProcessedInput() error
	SetLineInput(enabled bool) error
	ReadLine() (string, error)
	ReadKeyEvent() (wire.KeyEvent, error)
	WriteKeyEvent(ev wire.KeyEvent) error

	// Screen and window management.
	Metrics() layout.Metrics
	MoveWindow(h WindowHandle, r layout.Rect) error
	IsWindow(h WindowHandle) bool
	ForegroundWindow() WindowHandle
	SetForegroundWindow(h WindowHandle)
	RestoreIfMinimized(h WindowHandle)

	// Processes.
	SpawnClientConsole(executable string, args []string) (ProcessHandle, error)
	WindowForProcess(p ProcessHandle) (WindowHandle, bool)
	ProcessExited(p ProcessHandle) bool
	SignalShutdown() error

	// Clipboard.
	WriteClipboard(text string) error

	// Named pipe endpoints. One listener per daemon session; clients
	// dial the same well-known name.
	ListenPipe(name string) (net.Listener, error)
	DialPipe(name string) (net.Conn, error)
}

// PipeName is the well-known named-pipe path shared by all client
// connections of one daemon session.
const PipeName = `\\.\pipe\clustermux-input`
