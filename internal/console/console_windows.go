//go:build windows

package console

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"github.com/Microsoft/go-winio"
	"github.com/atotto/clipboard"
	"golang.org/x/sys/windows"

	"github.com/user/clustermux/internal/layout"
	"github.com/user/clustermux/internal/wire"
)

var (
	user32                      = windows.NewLazySystemDLL("user32.dll")
	kernel32                    = windows.NewLazySystemDLL("kernel32.dll")
	dwmapi                      = windows.NewLazySystemDLL("dwmapi.dll")
	procGetSystemMetrics        = user32.NewProc("GetSystemMetrics")
	procMoveWindow              = user32.NewProc("MoveWindow")
	procIsWindow                = user32.NewProc("IsWindow")
	procIsIconic                = user32.NewProc("IsIconic")
	procShowWindow              = user32.NewProc("ShowWindow")
	procGetForegroundWindow     = user32.NewProc("GetForegroundWindow")
	procSetForegroundWindow     = user32.NewProc("SetForegroundWindow")
	procEnumWindows             = user32.NewProc("EnumWindows")
	procGetWindowThreadProcess  = user32.NewProc("GetWindowThreadProcessId")
	procGetDpiForWindow         = user32.NewProc("GetDpiForWindow")
	procGetConsoleWindow        = kernel32.NewProc("GetConsoleWindow")
	procSetConsoleTextAttr      = kernel32.NewProc("SetConsoleTextAttribute")
	procReadConsoleInput        = kernel32.NewProc("ReadConsoleInputW")
	procWriteConsoleInput       = kernel32.NewProc("WriteConsoleInputW")
	procFillConsoleOutputChar   = kernel32.NewProc("FillConsoleOutputCharacterW")
	procFillConsoleOutputAttr   = kernel32.NewProc("FillConsoleOutputAttribute")
	procSetConsoleCursorPos     = kernel32.NewProc("SetConsoleCursorPosition")
	procDwmSetWindowAttribute   = dwmapi.NewProc("DwmSetWindowAttribute")
	procGenerateConsoleCtrlEvnt = kernel32.NewProc("GenerateConsoleCtrlEvent")
)

const (
	smCxMaximized  = 61
	smCyMaximized  = 62
	smCxFixedFrame = 7
	smCyFixedFrame = 8
	smCxSizeFrame  = 32
	smCySizeFrame  = 33

	swRestore = 9

	dwmwaBorderColor = 34

	keyEventRecordType = 1

	stillActive = 259

	defaultScreenDPI = 96
)

// keyEventRecord mirrors the KEY_EVENT_RECORD layout inside an
// INPUT_RECORD, including the two bytes of padding after EventType.
type inputRecord struct {
	eventType uint16
	_         uint16
	keyDown   int32
	repeat    uint16
	vk        uint16
	scan      uint16
	unicode   uint16
	ctrlState uint32
}

// winConsole is the production Api implementation.
type winConsole struct {
	stdin  windows.Handle
	stdout windows.Handle

	mu     sync.Mutex
	reader *bufio.Reader
}

// New opens the process's console handles and returns the facade.
func New() (Api, error) {
	stdin, err := windows.GetStdHandle(windows.STD_INPUT_HANDLE)
	if err != nil {
		return nil, fmt.Errorf("failed to open console input: %w", err)
	}
	stdout, err := windows.GetStdHandle(windows.STD_OUTPUT_HANDLE)
	if err != nil {
		return nil, fmt.Errorf("failed to open console output: %w", err)
	}
	return &winConsole{
		stdin:  stdin,
		stdout: stdout,
		reader: bufio.NewReader(os.Stdin),
	}, nil
}

func (c *winConsole) SetConsoleTitle(title string) {
	ptr, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return
	}
	_ = windows.SetConsoleTitle(ptr)
}

func (c *winConsole) SetConsoleColor(attributes uint16) {
	procSetConsoleTextAttr.Call(uintptr(c.stdout), uintptr(attributes)) //nolint:errcheck
}

func (c *winConsole) SetConsoleBorderColor(color uint32) {
	h := c.ConsoleWindow()
	if h == 0 {
		return
	}
	procDwmSetWindowAttribute.Call( //nolint:errcheck
		uintptr(h),
		dwmwaBorderColor,
		uintptr(unsafe.Pointer(&color)),
		unsafe.Sizeof(color),
	)
}

func (c *winConsole) ClearScreen() {
	var info windows.ConsoleScreenBufferInfo
	if err := windows.GetConsoleScreenBufferInfo(c.stdout, &info); err != nil {
		return
	}
	cells := uintptr(info.Size.X) * uintptr(info.Size.Y)
	var written uint32
	origin := windows.Coord{}
	procFillConsoleOutputChar.Call( //nolint:errcheck
		uintptr(c.stdout),
		uintptr(' '),
		cells,
		coordToUintptr(origin),
		uintptr(unsafe.Pointer(&written)),
	)
	procFillConsoleOutputAttr.Call( //nolint:errcheck
		uintptr(c.stdout),
		uintptr(info.Attributes),
		cells,
		coordToUintptr(origin),
		uintptr(unsafe.Pointer(&written)),
	)
	procSetConsoleCursorPos.Call(uintptr(c.stdout), coordToUintptr(origin)) //nolint:errcheck
}

// coordToUintptr packs a COORD into the single machine word the console
// API passes it as.
func coordToUintptr(c windows.Coord) uintptr {
	return uintptr(uint32(uint16(c.Y))<<16 | uint32(uint16(c.X)))
}

func (c *winConsole) ConsoleWindow() WindowHandle {
	h, _, _ := procGetConsoleWindow.Call()
	return WindowHandle(h)
}

func (c *winConsole) DisableProcessedInput() error {
	var mode uint32
	if err := windows.GetConsoleMode(c.stdin, &mode); err != nil {
		return fmt.Errorf("failed to read console input mode: %w", err)
	}
	mode &^= windows.ENABLE_PROCESSED_INPUT
	if err := windows.SetConsoleMode(c.stdin, mode); err != nil {
		return fmt.Errorf("failed to set console input mode: %w", err)
	}
	return nil
}

func (c *winConsole) SetLineInput(enabled bool) error {
	var mode uint32
	if err := windows.GetConsoleMode(c.stdin, &mode); err != nil {
		return fmt.Errorf("failed to read console input mode: %w", err)
	}
	if enabled {
		mode |= windows.ENABLE_LINE_INPUT | windows.ENABLE_ECHO_INPUT
	} else {
		mode &^= windows.ENABLE_LINE_INPUT | windows.ENABLE_ECHO_INPUT
	}
	if err := windows.SetConsoleMode(c.stdin, mode); err != nil {
		return fmt.Errorf("failed to set console input mode: %w", err)
	}
	return nil
}

func (c *winConsole) ReadLine() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read line from console: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadKeyEvent blocks until the next key event record arrives on the
// console input buffer. Non-key records (mouse, resize, focus) are
// skipped.
func (c *winConsole) ReadKeyEvent() (wire.KeyEvent, error) {
	var record inputRecord
	var read uint32
	for {
		r, _, err := procReadConsoleInput.Call(
			uintptr(c.stdin),
			uintptr(unsafe.Pointer(&record)),
			1,
			uintptr(unsafe.Pointer(&read)),
		)
		if r == 0 {
			return wire.KeyEvent{}, fmt.Errorf("failed to read console input: %w", err)
		}
		if read == 0 || record.eventType != keyEventRecordType {
			continue
		}
		return wire.KeyEvent{
			KeyDown:         record.keyDown != 0,
			RepeatCount:     record.repeat,
			VirtualKeyCode:  record.vk,
			VirtualScanCode: record.scan,
			UnicodeChar:     record.unicode,
			ControlKeyState: record.ctrlState,
		}, nil
	}
}

func (c *winConsole) WriteKeyEvent(ev wire.KeyEvent) error {
	record := inputRecord{
		eventType: keyEventRecordType,
		repeat:    ev.RepeatCount,
		vk:        ev.VirtualKeyCode,
		scan:      ev.VirtualScanCode,
		unicode:   ev.UnicodeChar,
		ctrlState: ev.ControlKeyState,
	}
	if ev.KeyDown {
		record.keyDown = 1
	}
	var written uint32
	r, _, err := procWriteConsoleInput.Call(
		uintptr(c.stdin),
		uintptr(unsafe.Pointer(&record)),
		1,
		uintptr(unsafe.Pointer(&written)),
	)
	if r == 0 {
		return fmt.Errorf("failed to write console input: %w", err)
	}
	return nil
}

func systemMetric(index int) int {
	v, _, _ := procGetSystemMetrics.Call(uintptr(index))
	return int(v)
}

func (c *winConsole) Metrics() layout.Metrics {
	scale := 1.0
	if h := c.ConsoleWindow(); h != 0 && procGetDpiForWindow.Find() == nil {
		if dpi, _, _ := procGetDpiForWindow.Call(uintptr(h)); dpi != 0 {
			scale = float64(defaultScreenDPI) / float64(dpi)
		}
	}
	return layout.Metrics{
		MaxWidth:    systemMetric(smCxMaximized),
		MaxHeight:   systemMetric(smCyMaximized),
		XFixedFrame: systemMetric(smCxFixedFrame),
		YFixedFrame: systemMetric(smCyFixedFrame),
		XSizeFrame:  systemMetric(smCxSizeFrame),
		YSizeFrame:  systemMetric(smCySizeFrame),
		ScaleFactor: scale,
	}
}

func (c *winConsole) MoveWindow(h WindowHandle, r layout.Rect) error {
	ok, _, err := procMoveWindow.Call(
		uintptr(h),
		uintptr(r.X),
		uintptr(r.Y),
		uintptr(r.Width),
		uintptr(r.Height),
		1, // repaint
	)
	if ok == 0 {
		return fmt.Errorf("failed to move window %#x: %w", uintptr(h), err)
	}
	return nil
}

func (c *winConsole) IsWindow(h WindowHandle) bool {
	r, _, _ := procIsWindow.Call(uintptr(h))
	return r != 0
}

func (c *winConsole) ForegroundWindow() WindowHandle {
	h, _, _ := procGetForegroundWindow.Call()
	return WindowHandle(h)
}

func (c *winConsole) SetForegroundWindow(h WindowHandle) {
	procSetForegroundWindow.Call(uintptr(h)) //nolint:errcheck
}

func (c *winConsole) RestoreIfMinimized(h WindowHandle) {
	if iconic, _, _ := procIsIconic.Call(uintptr(h)); iconic != 0 {
		procShowWindow.Call(uintptr(h), swRestore) //nolint:errcheck
	}
}

// SpawnClientConsole launches the executable in its own new console
// window and returns the process handle.
func (c *winConsole) SpawnClientConsole(executable string, args []string) (ProcessHandle, error) {
	cmdline := windows.ComposeCommandLine(append([]string{executable}, args...))
	cmdlinePtr, err := windows.UTF16PtrFromString(cmdline)
	if err != nil {
		return 0, fmt.Errorf("failed to encode command line: %w", err)
	}
	var si windows.StartupInfo
	si.Cb = uint32(unsafe.Sizeof(si))
	var pi windows.ProcessInformation
	err = windows.CreateProcess(
		nil,
		cmdlinePtr,
		nil,
		nil,
		false,
		windows.CREATE_NEW_CONSOLE,
		nil,
		nil,
		&si,
		&pi,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to spawn client console: %w", err)
	}
	windows.CloseHandle(pi.Thread) //nolint:errcheck
	return ProcessHandle(pi.Process), nil
}

// WindowForProcess scans the top-level windows for one owned by the
// process. Freshly spawned consoles take a moment to create their
// window, so callers poll this.
func (c *winConsole) WindowForProcess(p ProcessHandle) (WindowHandle, bool) {
	processID, err := windows.GetProcessId(windows.Handle(p))
	if err != nil {
		return 0, false
	}

	var found WindowHandle
	callback := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		var owner uint32
		procGetWindowThreadProcess.Call(hwnd, uintptr(unsafe.Pointer(&owner))) //nolint:errcheck
		if owner == processID {
			found = WindowHandle(hwnd)
			return 0 // stop enumeration
		}
		return 1
	})
	procEnumWindows.Call(callback, 0) //nolint:errcheck
	return found, found != 0
}

func (c *winConsole) ProcessExited(p ProcessHandle) bool {
	var code uint32
	if err := windows.GetExitCodeProcess(windows.Handle(p), &code); err != nil {
		return true
	}
	return code != stillActive
}

// SignalShutdown delivers Ctrl+C to the process's console group so the
// default handler can unwind.
func (c *winConsole) SignalShutdown() error {
	r, _, err := procGenerateConsoleCtrlEvnt.Call(uintptr(windows.CTRL_C_EVENT), 0)
	if r == 0 {
		return fmt.Errorf("failed to signal shutdown: %w", err)
	}
	return nil
}

func (c *winConsole) WriteClipboard(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

func (c *winConsole) ListenPipe(name string) (net.Listener, error) {
	l, err := winio.ListenPipe(name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on pipe %s: %w", name, err)
	}
	return l, nil
}

func (c *winConsole) DialPipe(name string) (net.Conn, error) {
	conn, err := winio.DialPipe(name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial pipe %s: %w", name, err)
	}
	return conn, nil
}

var _ Api = (*winConsole)(nil)
