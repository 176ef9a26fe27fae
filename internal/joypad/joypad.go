// Package joypad models the P1/JOYP register: matrix decoding of the
// direction/button select lines and edge-triggered interrupt requests.
package joypad

// State mirrors the eight buttons the host bridge reports each frame.
type State struct {
	A, B, Select, Start   bool
	Up, Down, Left, Right bool
}

// Joypad decodes P1 (0xFF00) against the currently held button state.
type Joypad struct {
	sel   byte // bits 4-5 as written by the CPU; 0 = that group selected
	state State

	requestInterrupt func()
}

// New creates a Joypad with neither group selected and no buttons held.
func New(requestInterrupt func()) *Joypad {
	return &Joypad{sel: 0x30, requestInterrupt: requestInterrupt}
}

// Read returns the P1 register: bits 6-7 always read 1, bits 4-5 echo the
// select lines, bits 0-3 are active-low and reflect whichever group(s) are
// currently selected (both groups OR-combine onto the same four bits, which
// is exactly the wired-AND behavior real hardware exhibits when both select
// lines are held low at once).
func (j *Joypad) Read() byte {
	lo := byte(0x0F)
	if j.sel&0x10 == 0 { // P14: direction keys selected
		if j.state.Right {
			lo &^= 1 << 0
		}
		if j.state.Left {
			lo &^= 1 << 1
		}
		if j.state.Up {
			lo &^= 1 << 2
		}
		if j.state.Down {
			lo &^= 1 << 3
		}
	}
	if j.sel&0x20 == 0 { // P15: button keys selected
		if j.state.A {
			lo &^= 1 << 0
		}
		if j.state.B {
			lo &^= 1 << 1
		}
		if j.state.Select {
			lo &^= 1 << 2
		}
		if j.state.Start {
			lo &^= 1 << 3
		}
	}
	return 0xC0 | (j.sel & 0x30) | lo
}

// Write stores the select bits (0xFF00 bits 4-5); the low nibble is
// read-only from the CPU's perspective.
func (j *Joypad) Write(v byte) { j.sel = (j.sel & 0xCF) | (v & 0x30) }

// SetState updates the held-button snapshot, requesting a Joypad interrupt
// on any falling edge (newly pressed) among the currently selected lines.
func (j *Joypad) SetState(s State) {
	before := j.Read() & 0x0F
	j.state = s
	after := j.Read() & 0x0F
	if before&^after != 0 { // any bit that went from 1 to 0
		if j.requestInterrupt != nil {
			j.requestInterrupt()
		}
	}
}

// SaveState/LoadState serialize the select lines and held buttons.
func (j *Joypad) SaveState() []byte {
	b := byte(0)
	for i, v := range []bool{j.state.A, j.state.B, j.state.Select, j.state.Start, j.state.Up, j.state.Down, j.state.Left, j.state.Right} {
		if v {
			b |= 1 << uint(i)
		}
	}
	return []byte{j.sel, b}
}

func (j *Joypad) LoadState(data []byte) {
	if len(data) < 2 {
		return
	}
	j.sel = data[0]
	b := data[1]
	j.state = State{
		A: b&1 != 0, B: b&2 != 0, Select: b&4 != 0, Start: b&8 != 0,
		Up: b&16 != 0, Down: b&32 != 0, Left: b&64 != 0, Right: b&128 != 0,
	}
}
