// Package wire implements the fixed-size binary encoding of keystroke
// events exchanged between the daemon and its clients. Every frame is
// exactly FrameLen bytes, little-endian, so the transport can reassemble
// messages from arbitrary read boundaries without a length prefix.
package wire

import (
	"encoding/binary"
	"fmt"
)

// FrameLen is the exact size of one encoded KeyEvent.
const FrameLen = 18

// Control key state bit flags, matching the console input record layout.
const (
	RightAltPressed  uint32 = 0x0001
	LeftAltPressed   uint32 = 0x0002
	RightCtrlPressed uint32 = 0x0004
	LeftCtrlPressed  uint32 = 0x0008
	ShiftPressed     uint32 = 0x0010
)

// Virtual key codes the daemon and client care about.
const (
	VKEscape uint16 = 0x1B
	VKA      uint16 = 0x41
	VKC      uint16 = 0x43
	VKH      uint16 = 0x48
	VKR      uint16 = 0x52
)

// KeyEvent is one keystroke as captured from the daemon console.
type KeyEvent struct {
	KeyDown         bool
	RepeatCount     uint16
	VirtualKeyCode  uint16
	VirtualScanCode uint16
	UnicodeChar     uint16
	ControlKeyState uint32
}

// ErrShortFrame reports a Decode call with fewer than FrameLen bytes.
// This is a caller contract violation, not a recoverable transport state.
var ErrShortFrame = fmt.Errorf("wire: frame shorter than %d bytes", FrameLen)

// Encode serializes the event into its fixed 18-byte layout:
// [bool KeyDown, u16 RepeatCount, u16 VirtualKeyCode, u16 VirtualScanCode,
// u16 UnicodeChar, u32 ControlKeyState].
func Encode(ev KeyEvent) [FrameLen]byte {
	var buf [FrameLen]byte
	if ev.KeyDown {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint16(buf[1:3], ev.RepeatCount)
	binary.LittleEndian.PutUint16(buf[3:5], ev.VirtualKeyCode)
	binary.LittleEndian.PutUint16(buf[5:7], ev.VirtualScanCode)
	binary.LittleEndian.PutUint16(buf[7:9], ev.UnicodeChar)
	binary.LittleEndian.PutUint32(buf[9:13], ev.ControlKeyState)
	return buf
}

// Decode is the inverse of Encode. It fails only when given fewer than
// FrameLen bytes.
func Decode(buf []byte) (KeyEvent, error) {
	if len(buf) < FrameLen {
		return KeyEvent{}, ErrShortFrame
	}
	return KeyEvent{
		KeyDown:         buf[0] != 0,
		RepeatCount:     binary.LittleEndian.Uint16(buf[1:3]),
		VirtualKeyCode:  binary.LittleEndian.Uint16(buf[3:5]),
		VirtualScanCode: binary.LittleEndian.Uint16(buf[5:7]),
		UnicodeChar:     binary.LittleEndian.Uint16(buf[7:9]),
		ControlKeyState: binary.LittleEndian.Uint32(buf[9:13]),
	}, nil
}

// KeepAliveFrame returns the liveness probe sentinel: FrameLen bytes of
// 0xFF. Encode can never produce it because the KeyDown byte is always
// 0 or 1.
func KeepAliveFrame() [FrameLen]byte {
	var buf [FrameLen]byte
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf
}

// IsKeepAlive reports whether buf is exactly the keep-alive sentinel.
func IsKeepAlive(buf []byte) bool {
	if len(buf) != FrameLen {
		return false
	}
	for _, b := range buf {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// SplitFrames cuts buf into complete frames plus the trailing remainder.
// The remainder holds a partial frame split across reads and must be
// prepended to the next read by the caller.
func SplitFrames(buf []byte) ([][FrameLen]byte, []byte) {
	n := len(buf) / FrameLen
	if n == 0 {
		return nil, buf
	}
	frames := make([][FrameLen]byte, n)
	for i := 0; i < n; i++ {
		copy(frames[i][:], buf[i*FrameLen:(i+1)*FrameLen])
	}
	rest := make([]byte, len(buf)-n*FrameLen)
	copy(rest, buf[n*FrameLen:])
	return frames, rest
}
