// Package machine wires the cartridge, CPU, bus, and its peripherals into
// a runnable DMG core, and drives a HostBridge implementation each frame.
package machine

import (
	"io"
	"os"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cpu"
)

// cyclesPerFrame is the DMG's exact T-cycle count for one 154-line frame
// (154 lines * 456 dots).
const cyclesPerFrame = 70224

// Machine owns the CPU, Bus (and, through it, the PPU/APU/Timer/Joypad/DMA)
// for one loaded cartridge, and drives a HostBridge once per frame.
type Machine struct {
	cfg Config

	bus *bus.Bus
	cpu *cpu.CPU

	romPath string
	bootROM []byte

	loadWarning error
}

// New creates a Machine with no cartridge loaded; call LoadCartridge or
// LoadROMFromFile before Step/StepFrame.
func New(cfg Config) *Machine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	return &Machine{cfg: cfg}
}

// LoadCartridge replaces the current cartridge with rom, optionally running
// the given 256-byte DMG boot ROM from address 0x0000 before jumping to
// game code. Without a boot ROM the CPU is initialized to the documented
// DMG post-boot register/IO state and starts at 0x0100.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		return newError(KindIncompatibleROM, "cartridge type not supported", err)
	}

	m.loadWarning = nil
	if !cart.HeaderChecksumOK(rom) {
		// Non-fatal: the original SDL/Mac/Windows hosts show a message box
		// but continue loading, so this core does the same rather than
		// refusing to run a ROM with a merely-wrong header checksum.
		m.loadWarning = newError(KindLoad, "header checksum mismatch", nil)
	}

	b := bus.NewWithCartridgeRate(c, m.cfg.SampleRate)
	useBoot := len(boot) == 0x100
	if useBoot {
		b.SetBootROM(boot)
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, boot)
	} else {
		m.bootROM = nil
	}

	cp := cpu.New(b)
	if useBoot {
		cp.SetPC(0x0000)
	} else {
		cp.ResetNoBoot()
		cp.SetPC(0x0100)
		applyDMGPostBootIO(b)
	}

	m.bus = b
	m.cpu = cp
	return nil
}

// LoadROMFromFile reads rom from disk and loads it, preserving whatever
// boot ROM was previously configured.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newError(KindLoad, "read ROM file", err)
	}
	if err := m.LoadCartridge(data, m.bootROM); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path most recently loaded via LoadROMFromFile.
func (m *Machine) ROMPath() string { return m.romPath }

// LoadWarning returns a non-fatal issue found while loading the current
// cartridge (currently: a header checksum mismatch), or nil. Callers such
// as cmd/gbemu log this and keep running rather than treating it as a
// load failure.
func (m *Machine) LoadWarning() error { return m.loadWarning }

// SetBootROM configures the DMG boot ROM used by future LoadCartridge /
// LoadROMFromFile calls. Passing fewer than 256 bytes clears it.
func (m *Machine) SetBootROM(data []byte) {
	if len(data) < 0x100 {
		m.bootROM = nil
		return
	}
	m.bootROM = make([]byte, 0x100)
	copy(m.bootROM, data[:0x100])
}

// applyDMGPostBootIO sets IO registers to the values the real DMG boot ROM
// leaves behind, so a cartridge started at 0x0100 without a boot ROM sees
// the same hardware state a booted one would.
func applyDMGPostBootIO(b *bus.Bus) {
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00)
	b.Write(0xFF06, 0x00)
	b.Write(0xFF07, 0x00)
	b.Write(0xFF40, 0x91)
	b.Write(0xFF42, 0x00)
	b.Write(0xFF43, 0x00)
	b.Write(0xFF45, 0x00)
	b.Write(0xFF47, 0xFC)
	b.Write(0xFF48, 0xFF)
	b.Write(0xFF49, 0xFF)
	b.Write(0xFF4A, 0x00)
	b.Write(0xFF4B, 0x00)
	b.Write(0xFFFF, 0x00)
	b.Write(0xFF26, 0x80)
	b.Write(0xFF24, 0x77)
	b.Write(0xFF25, 0xFF)
}

// SetSerialWriter connects w to receive every byte written to the serial
// port (SB/SC) once a transfer starts, the hook blargg's test ROMs use to
// report pass/fail.
func (m *Machine) SetSerialWriter(w io.Writer) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// SetButtons updates the joypad state for the next Step/StepFrame calls.
func (m *Machine) SetButtons(s JoypadState) {
	if m.bus != nil {
		m.bus.SetJoypadState(s.mask())
	}
}

// Locked reports whether the CPU has executed an invalid opcode and is no
// longer making forward progress.
func (m *Machine) Locked() bool { return m.cpu != nil && m.cpu.Locked() }

// StepFrame advances the core by one video frame (70224 T-cycles), then
// hands the composed framebuffer and any generated audio to host, and pulls
// the host's current joypad state for the following frame. It returns true
// if host requested the loop stop.
func (m *Machine) StepFrame(host HostBridge) bool {
	m.runCycles(cyclesPerFrame)

	host.BlitScreen(m.bus.PPU().Framebuffer(), 160)
	host.PresentFrame()

	if samples := m.bus.APU().PullStereo(4096); len(samples) > 0 {
		host.OnAudioGenerated(samples)
	}

	var joy JoypadState
	quit := host.HandleEvents(&joy)
	m.SetButtons(joy)
	return quit
}

// StepFrameNoRender advances the core by one frame without touching a
// HostBridge, for headless test-ROM harnesses that only care about serial
// output or a specific memory location after N frames.
func (m *Machine) StepFrameNoRender() { m.runCycles(cyclesPerFrame) }

func (m *Machine) runCycles(target int) {
	if m.cpu == nil {
		return
	}
	acc := 0
	for acc < target {
		acc += m.cpu.Step()
	}
}

// Framebuffer exposes the last composed frame directly, for hosts or tools
// that want pixels without driving a full StepFrame (e.g. cmd/gbctl).
func (m *Machine) Framebuffer() *[160 * 144]uint32 {
	if m.bus == nil {
		return nil
	}
	return m.bus.PPU().Framebuffer()
}

// PullAudio returns up to max stereo frames of generated audio, interleaved
// [L,R,L,R,...], for callers driving StepFrameNoRender directly.
func (m *Machine) PullAudio(max int) []int16 {
	if m.bus == nil {
		return nil
	}
	return m.bus.APU().PullStereo(max)
}

// SaveBattery returns the cartridge's external RAM for persistence, if the
// loaded cartridge has any (battery-backed MBC1/MBC2/MBC5 variants).
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.bus == nil {
		return nil, false
	}
	bb, ok := m.bus.Cartridge().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	data := bb.SaveRAM()
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

// LoadBattery restores external RAM into the loaded cartridge, if it
// supports battery backing.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.bus == nil {
		return false
	}
	bb, ok := m.bus.Cartridge().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// BatteryDirty reports whether the loaded cartridge carries battery-backed
// RAM that a host configured with Config.BatteryAutosave should persist
// periodically rather than only on exit, mirroring the original SDL/Mac/
// Windows hosts' periodic-timer autosave (this core has no page-level dirty
// tracking, so any battery-backed cartridge is always "dirty enough" to be
// worth an autosave pass; SaveBattery is cheap since it just copies RAM).
func (m *Machine) BatteryDirty() bool {
	if m.bus == nil || !m.cfg.BatteryAutosave {
		return false
	}
	_, ok := m.bus.Cartridge().(cart.BatteryBacked)
	return ok
}
