package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	ev := KeyEvent{
		KeyDown:         true,
		RepeatCount:     0x0102,
		VirtualKeyCode:  0x0304,
		VirtualScanCode: 0x0506,
		UnicodeChar:     0x0708,
		ControlKeyState: 0x0A0B0C0D,
	}
	buf := Encode(ev)

	want := [FrameLen]byte{
		1,
		0x02, 0x01,
		0x04, 0x03,
		0x06, 0x05,
		0x08, 0x07,
		0x0D, 0x0C, 0x0B, 0x0A,
		0, 0, 0, 0, 0,
	}
	assert.Equal(t, want, buf)
}

func TestRoundTrip(t *testing.T) {
	events := []KeyEvent{
		{},
		{KeyDown: true, RepeatCount: 1, VirtualKeyCode: VKA, VirtualScanCode: 30, UnicodeChar: 'a'},
		{KeyDown: false, RepeatCount: 65535, VirtualKeyCode: 65535, VirtualScanCode: 65535, UnicodeChar: 65535, ControlKeyState: 0xFFFFFFFF},
		{KeyDown: true, VirtualKeyCode: VKEscape, ControlKeyState: LeftCtrlPressed | ShiftPressed},
	}
	for _, ev := range events {
		buf := Encode(ev)
		got, err := Decode(buf[:])
		require.NoError(t, err)
		assert.Equal(t, ev, got)
	}
}

func TestDecodeShortFrame(t *testing.T) {
	_, err := Decode(make([]byte, FrameLen-1))
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestKeepAlive(t *testing.T) {
	ka := KeepAliveFrame()
	assert.True(t, IsKeepAlive(ka[:]))

	// No encodable event can produce the sentinel: byte 0 is always 0 or 1.
	ev := KeyEvent{
		KeyDown:         true,
		RepeatCount:     0xFFFF,
		VirtualKeyCode:  0xFFFF,
		VirtualScanCode: 0xFFFF,
		UnicodeChar:     0xFFFF,
		ControlKeyState: 0xFFFFFFFF,
	}
	buf := Encode(ev)
	assert.False(t, IsKeepAlive(buf[:]))

	assert.False(t, IsKeepAlive(nil))
	assert.False(t, IsKeepAlive(make([]byte, FrameLen)))

	almost := KeepAliveFrame()
	almost[FrameLen-1] = 0xFE
	assert.False(t, IsKeepAlive(almost[:]))
}

func TestSplitFrames(t *testing.T) {
	a := Encode(KeyEvent{KeyDown: true, VirtualKeyCode: VKA})
	b := Encode(KeyEvent{KeyDown: false, VirtualKeyCode: VKC})

	buf := append([]byte{}, a[:]...)
	buf = append(buf, b[:]...)
	buf = append(buf, a[:7]...)

	frames, rest := SplitFrames(buf)
	require.Len(t, frames, 2)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
	assert.Equal(t, a[:7], rest)

	frames, rest = SplitFrames(rest)
	assert.Empty(t, frames)
	assert.Len(t, rest, 7)
}
