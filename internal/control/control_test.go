package control

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/clustermux/internal/cluster"
	"github.com/user/clustermux/internal/wire"
)

type fakePrompt struct {
	line     string
	readErr  error
	lineMode []bool
	cleared  int
}

func (p *fakePrompt) SetLineInput(enabled bool) error {
	p.lineMode = append(p.lineMode, enabled)
	return nil
}

func (p *fakePrompt) ReadLine() (string, error) {
	return p.line, p.readErr
}

func (p *fakePrompt) ClearScreen() {
	p.cleared++
}

type recordingCommander struct {
	retiled int
	created [][]string
	copied  int
}

func (c *recordingCommander) Retile() { c.retiled++ }

func (c *recordingCommander) CreateClients(hosts []string) {
	c.created = append(c.created, hosts)
}

func (c *recordingCommander) CopyHostnames() { c.copied++ }

func newTestMachine(prompt *fakePrompt, cmd *recordingCommander, clusters []cluster.Cluster) *Machine {
	return NewMachine(prompt, cmd, clusters, &bytes.Buffer{}, zerolog.Nop())
}

func keyDown(vk uint16, modifiers uint32) wire.KeyEvent {
	return wire.KeyEvent{KeyDown: true, VirtualKeyCode: vk, ControlKeyState: modifiers}
}

func keyUp(vk uint16) wire.KeyEvent {
	return wire.KeyEvent{VirtualKeyCode: vk}
}

func TestPlainKeystrokesPassThrough(t *testing.T) {
	m := newTestMachine(&fakePrompt{}, &recordingCommander{}, nil)

	assert.False(t, m.Process(keyDown(wire.VKA, 0)), "plain 'a' is not the entry combination")
	assert.False(t, m.Process(keyUp(wire.VKA)))
	assert.Equal(t, Inactive, m.State())
}

func TestCtrlAInitiatesControlMode(t *testing.T) {
	for _, modifiers := range []uint32{wire.LeftCtrlPressed, wire.RightCtrlPressed} {
		m := newTestMachine(&fakePrompt{}, &recordingCommander{}, nil)
		assert.True(t, m.Process(keyDown(wire.VKA, modifiers)))
		assert.Equal(t, Initiated, m.State())
	}
}

func TestEscapeCancelsInitiatedMode(t *testing.T) {
	cmd := &recordingCommander{}
	m := newTestMachine(&fakePrompt{}, cmd, nil)

	require.True(t, m.Process(keyDown(wire.VKA, wire.LeftCtrlPressed)))
	assert.True(t, m.Process(keyDown(wire.VKEscape, 0)))
	assert.Equal(t, Inactive, m.State())
	assert.Zero(t, cmd.retiled)
	assert.Empty(t, cmd.created)
	assert.Zero(t, cmd.copied)
}

func TestAnyKeyCompletesActivation(t *testing.T) {
	m := newTestMachine(&fakePrompt{}, &recordingCommander{}, nil)

	require.True(t, m.Process(keyDown(wire.VKA, wire.LeftCtrlPressed)))
	// The key-up of the entry combination typically arrives next; it
	// completes the transition without dispatching anything.
	assert.True(t, m.Process(keyUp(wire.VKA)))
	assert.Equal(t, Active, m.State())
}

func TestRetileStaysActive(t *testing.T) {
	cmd := &recordingCommander{}
	m := newTestMachine(&fakePrompt{}, cmd, nil)
	m.state = Active

	assert.True(t, m.Process(keyDown(wire.VKR, 0)))
	assert.Equal(t, 1, cmd.retiled)
	assert.Equal(t, Active, m.State(), "retile does not leave control mode")
}

func TestModifiedCommandKeyIsIgnored(t *testing.T) {
	cmd := &recordingCommander{}
	m := newTestMachine(&fakePrompt{}, cmd, nil)
	m.state = Active

	assert.True(t, m.Process(keyDown(wire.VKR, wire.ShiftPressed)))
	assert.Zero(t, cmd.retiled)
	assert.Equal(t, Active, m.State())
}

func TestCopyHostnamesReturnsToInactive(t *testing.T) {
	cmd := &recordingCommander{}
	m := newTestMachine(&fakePrompt{}, cmd, nil)
	m.state = Active

	assert.True(t, m.Process(keyDown(wire.VKH, 0)))
	assert.Equal(t, 1, cmd.copied)
	assert.Equal(t, Inactive, m.State())
}

func TestEscapeLeavesActiveMode(t *testing.T) {
	cmd := &recordingCommander{}
	m := newTestMachine(&fakePrompt{}, cmd, nil)
	m.state = Active

	assert.True(t, m.Process(keyDown(wire.VKEscape, 0)))
	assert.Equal(t, Inactive, m.State())
	assert.Zero(t, cmd.retiled)
}

func TestKeyUpEventsAreSwallowedWhileActive(t *testing.T) {
	cmd := &recordingCommander{}
	m := newTestMachine(&fakePrompt{}, cmd, nil)
	m.state = Active

	assert.True(t, m.Process(keyUp(wire.VKR)))
	assert.Zero(t, cmd.retiled, "commands fire on key-down only")
	assert.Equal(t, Active, m.State())
}

func TestCreatePromptResolvesClusterTags(t *testing.T) {
	prompt := &fakePrompt{line: "tag1 extra"}
	cmd := &recordingCommander{}
	clusters := []cluster.Cluster{{Name: "tag1", Hosts: []string{"host1", "host2"}}}
	m := newTestMachine(prompt, cmd, clusters)
	m.state = Active

	assert.True(t, m.Process(keyDown(wire.VKC, 0)))
	require.Len(t, cmd.created, 1)
	assert.Equal(t, []string{"host1", "host2", "extra"}, cmd.created[0])
	assert.Equal(t, Inactive, m.State())
	assert.Equal(t, []bool{true, false}, prompt.lineMode,
		"line input is restored for the read and disabled afterwards")
}

func TestCreatePromptEmptyInputAborts(t *testing.T) {
	prompt := &fakePrompt{line: "   "}
	cmd := &recordingCommander{}
	m := newTestMachine(prompt, cmd, nil)
	m.state = Active

	assert.True(t, m.Process(keyDown(wire.VKC, 0)))
	assert.Empty(t, cmd.created)
	assert.Equal(t, Inactive, m.State())
}

func TestCreatePromptReadFailureAborts(t *testing.T) {
	prompt := &fakePrompt{readErr: errors.New("console gone")}
	cmd := &recordingCommander{}
	m := newTestMachine(prompt, cmd, nil)
	m.state = Active

	assert.True(t, m.Process(keyDown(wire.VKC, 0)))
	assert.Empty(t, cmd.created)
}

func TestCreatePromptCyclicClusterAborts(t *testing.T) {
	prompt := &fakePrompt{line: "loop"}
	cmd := &recordingCommander{}
	clusters := []cluster.Cluster{{Name: "loop", Hosts: []string{"loop"}}}
	m := newTestMachine(prompt, cmd, clusters)
	m.state = Active

	assert.True(t, m.Process(keyDown(wire.VKC, 0)))
	assert.Empty(t, cmd.created)
}
