package machine

// Config contains settings that affect emulation behavior but not its
// output semantics — matching the teacher's flat internal/emu.Config.
type Config struct {
	Trace    bool // log CPU instructions at the cmd/ boundary
	LimitFPS bool // throttle StepFrame callers to ~60 Hz (host's job; recorded for cmd/ use)

	SampleRate int // APU output sample rate; 0 defaults to 48000

	// BatteryAutosave, when true, tells the host (via BatteryDirty) to
	// persist external RAM periodically rather than only on exit.
	BatteryAutosave bool
}
