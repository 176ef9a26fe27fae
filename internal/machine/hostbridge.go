package machine

import "github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"

// HostBridge is everything outside the core: window presentation, audio
// output, and input collection. Machine drives the host through these
// callbacks each frame rather than exposing pull-style accessors for an
// external UI to poll, so the core stays free of any windowing/audio
// dependency.
type HostBridge interface {
	// BlitScreen delivers one composed 160x144 ARGB frame. pitch is the
	// number of uint32 words per row (always 160 for this core, passed
	// explicitly so a host can copy directly into a padded texture).
	BlitScreen(pixels *[160 * 144]uint32, pitch int)

	// PresentFrame is called once BlitScreen has been given the frame,
	// signalling the host to flip/present it.
	PresentFrame()

	// OnAudioGenerated delivers newly produced stereo samples, interleaved
	// as [L0,R0,L1,R1,...] int16 at the Machine's configured sample rate.
	OnAudioGenerated(samples []int16)

	// HandleEvents lets the host pump its event loop and report the current
	// button state into joypad. Returning true requests the main loop stop.
	HandleEvents(joypad *JoypadState) (quit bool)
}

// JoypadState is the button state a HostBridge reports back each frame.
type JoypadState struct {
	A, B, Select, Start   bool
	Up, Down, Left, Right bool
}

func (j JoypadState) mask() byte {
	var m byte
	if j.Right {
		m |= bus.JoypRight
	}
	if j.Left {
		m |= bus.JoypLeft
	}
	if j.Up {
		m |= bus.JoypUp
	}
	if j.Down {
		m |= bus.JoypDown
	}
	if j.A {
		m |= bus.JoypA
	}
	if j.B {
		m |= bus.JoypB
	}
	if j.Select {
		m |= bus.JoypSelectBtn
	}
	if j.Start {
		m |= bus.JoypStart
	}
	return m
}
