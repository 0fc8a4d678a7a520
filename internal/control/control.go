// Package control interprets the daemon's live keystroke stream to
// toggle an interactive management mode. While the mode is active,
// keystrokes are commands instead of input to forward; the command
// table maps (virtual key, modifier mask) pairs to commands so each
// one is enumerable and testable on its own.
package control

import (
	"fmt"
	"io"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"

	"github.com/user/clustermux/internal/cluster"
	"github.com/user/clustermux/internal/wire"
)

// State of the control-mode machine.
type State int

const (
	// Inactive: keystrokes flow to the clients.
	Inactive State = iota
	// Initiated: the entry combination was seen; the next keystroke
	// completes (or cancels) the transition.
	Initiated
	// Active: keystrokes are interpreted as commands.
	Active
)

// Command identifies one control-mode action.
type Command int

const (
	// CommandRetile recomputes and applies the window grid.
	CommandRetile Command = iota
	// CommandCreate prompts for hosts and launches new clients.
	CommandCreate
	// CommandCopy places the live hostnames on the clipboard.
	CommandCopy
)

// Combo is a command-table key: a virtual key code plus the modifier
// bits that must be held with it.
type Combo struct {
	VirtualKeyCode uint16
	Modifiers      uint32
}

// commandTable maps key combinations to commands. All commands are
// plain keys with no modifiers held.
var commandTable = map[Combo]Command{
	{VirtualKeyCode: wire.VKR}: CommandRetile,
	{VirtualKeyCode: wire.VKC}: CommandCreate,
	{VirtualKeyCode: wire.VKH}: CommandCopy,
}

// modifierMask are the control-key-state bits that distinguish command
// combinations; lock and enhanced-key bits are ignored.
const modifierMask = wire.RightAltPressed | wire.LeftAltPressed |
	wire.RightCtrlPressed | wire.LeftCtrlPressed | wire.ShiftPressed

const ctrlPressed = wire.RightCtrlPressed | wire.LeftCtrlPressed

// Commander executes the dispatched commands. The daemon implements
// it; tests substitute a recorder.
type Commander interface {
	// Retile re-applies the grid layout to every live client window
	// and the daemon's own console.
	Retile()
	// CreateClients launches one client per resolved hostname.
	CreateClients(hosts []string)
	// CopyHostnames places the space-joined live hostnames on the
	// clipboard.
	CopyHostnames()
}

// Prompt provides the blocking line read used by the create command.
// Line input translation is restored for the duration of the read.
type Prompt interface {
	SetLineInput(enabled bool) error
	ReadLine() (string, error)
	ClearScreen()
}

// Machine is the control-mode state machine. Not safe for concurrent
// use; the daemon feeds it from the single input loop.
type Machine struct {
	state     State
	prompt    Prompt
	commander Commander
	clusters  []cluster.Cluster
	out       io.Writer
	logger    zerolog.Logger
}

// NewMachine returns a machine in the Inactive state.
func NewMachine(prompt Prompt, commander Commander, clusters []cluster.Cluster, out io.Writer, logger zerolog.Logger) *Machine {
	return &Machine{
		prompt:    prompt,
		commander: commander,
		clusters:  clusters,
		out:       out,
		logger:    logger,
	}
}

// State returns the current machine state.
func (m *Machine) State() State {
	return m.state
}

// Process evaluates one raw keystroke. It returns true when the event
// was consumed by control mode and must not be forwarded to clients.
func (m *Machine) Process(ev wire.KeyEvent) bool {
	switch m.state {
	case Active:
		return m.processActive(ev)
	case Initiated:
		// Escape cancels the half-entered mode; anything else
		// completes the transition. Either way the staging keystroke
		// is consumed.
		if ev.KeyDown && ev.VirtualKeyCode == wire.VKEscape {
			m.leave()
		} else {
			m.enter()
		}
		return true
	default:
		if ev.KeyDown && ev.VirtualKeyCode == wire.VKA && ev.ControlKeyState&ctrlPressed != 0 {
			m.state = Initiated
			return true
		}
		return false
	}
}

func (m *Machine) processActive(ev wire.KeyEvent) bool {
	if ev.KeyDown && ev.VirtualKeyCode == wire.VKEscape {
		m.leave()
		return true
	}
	if !ev.KeyDown {
		return true
	}

	combo := Combo{
		VirtualKeyCode: ev.VirtualKeyCode,
		Modifiers:      ev.ControlKeyState & modifierMask,
	}
	command, ok := commandTable[combo]
	if !ok {
		return true
	}

	switch command {
	case CommandRetile:
		m.commander.Retile()
	case CommandCreate:
		m.runCreate()
		m.leave()
	case CommandCopy:
		m.commander.CopyHostnames()
		m.leave()
	}
	return true
}

// enter moves to Active and prints the command menu.
func (m *Machine) enter() {
	m.state = Active
	m.prompt.ClearScreen()
	fmt.Fprintln(m.out, "Control Mode (Esc to exit)")
	fmt.Fprintln(m.out, "[r]etile")
	fmt.Fprintln(m.out, "[c]reate window(s)")
	fmt.Fprintln(m.out, "[h]ostnames to clipboard")
}

// leave returns to Inactive and reprints the default instructions.
func (m *Machine) leave() {
	m.state = Inactive
	m.PrintInstructions()
}

// PrintInstructions clears the console and prints the idle banner.
func (m *Machine) PrintInstructions() {
	m.prompt.ClearScreen()
	fmt.Fprintln(m.out, "Input to terminal: (Ctrl-A to enter control mode)")
}

// runCreate prompts for hostnames or cluster tags, resolves them and
// hands the result to the commander. Empty input aborts.
func (m *Machine) runCreate() {
	if err := m.prompt.SetLineInput(true); err != nil {
		m.logger.Error().Err(err).Msg("failed to restore line input")
		return
	}
	defer func() {
		if err := m.prompt.SetLineInput(false); err != nil {
			m.logger.Error().Err(err).Msg("failed to disable line input")
		}
	}()

	fmt.Fprint(m.out, "Hosts or cluster tags (space separated): ")
	line, err := m.prompt.ReadLine()
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to read host list")
		return
	}

	tokens, err := shellquote.Split(line)
	if err != nil {
		fmt.Fprintf(m.out, "invalid host list: %v\n", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	hosts, err := cluster.Resolve(tokens, m.clusters)
	if err != nil {
		fmt.Fprintf(m.out, "cannot resolve hosts: %v\n", err)
		return
	}
	m.commander.CreateClients(hosts)
}
