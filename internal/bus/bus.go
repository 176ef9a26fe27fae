// Package bus implements the DMG memory map: it decodes CPU addresses to
// the cartridge, PPU, APU, WRAM, HRAM, and the interrupt/timer/joypad/DMA
// register blocks, and owns the pieces of DMG timing (OAM-DMA blocking,
// echo RAM) that don't belong to any single peripheral.
package bus

import (
	"io"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/apu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/dma"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/interrupt"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/joypad"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/timer"
)

// Joypad button bits, matching the physical P1/JOYP matrix layout. Kept as
// exported constants so a host bridge can build a button mask without
// importing internal/joypad directly.
const (
	JoypRight = 1 << iota
	JoypLeft
	JoypUp
	JoypDown
	JoypA
	JoypB
	JoypSelectBtn
	JoypStart
)

// Bus wires the cartridge, PPU, APU, WRAM, and the register-block
// peripherals behind the single Read/Write/Tick surface the CPU drives.
type Bus struct {
	cart cart.Cartridge

	wram [0x2000]byte // 0xC000-0xDFFF, mirrored at 0xE000-0xFDFF
	hram [0x7F]byte   // 0xFF80-0xFFFE

	ppu *ppu.PPU
	apu *apu.APU

	timer  *timer.Timer
	joypad *joypad.Joypad
	dma    *dma.Engine
	irq    *interrupt.Controller

	bootROM        []byte // 0x100 bytes if present, mapped at 0x0000-0x00FF until 0xFF50 disables it
	bootROMEnabled bool

	serialData byte
	serialCtrl byte
	serialW    io.Writer
}

// DefaultSampleRate is used by New, which has no way to take a caller
// preference; NewWithCartridge callers that care use NewWithCartridgeRate.
const DefaultSampleRate = 48000

func New(rom []byte) *Bus {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		// A refused cartridge type (MBC3/RTC) still needs a Bus to exist for
		// callers that construct one directly from ROM bytes; fall back to a
		// ROM-only view so Read/Write never panics. internal/machine is the
		// layer that surfaces the refusal to the caller before reaching here.
		c = cart.NewROMOnly(rom)
	}
	return newBus(c, DefaultSampleRate)
}

// NewWithCartridge builds a Bus around an already-constructed cartridge at
// the default APU sample rate, letting internal/machine decide how to react
// to unsupported cartridge types before a Bus ever exists.
func NewWithCartridge(c cart.Cartridge) *Bus {
	return newBus(c, DefaultSampleRate)
}

// NewWithCartridgeRate is NewWithCartridge with an explicit APU sample rate.
func NewWithCartridgeRate(c cart.Cartridge, sampleRate int) *Bus {
	return newBus(c, sampleRate)
}

func newBus(c cart.Cartridge, sampleRate int) *Bus {
	b := &Bus{cart: c}
	b.irq = interrupt.New()
	b.ppu = ppu.New(b.requestIRQ)
	b.apu = apu.New(sampleRate)
	b.timer = timer.New(func() { b.irq.Request(interrupt.Timer) })
	b.joypad = joypad.New(func() { b.irq.Request(interrupt.Joypad) })
	b.dma = dma.New(b)
	return b
}

func (b *Bus) requestIRQ(bit int) { b.irq.Request(bit) }

// InterruptsPending reports the bitmask of interrupts that are both
// requested and enabled, for the CPU's HALT/STOP wake checks.
func (b *Bus) InterruptsPending() byte { return b.irq.Pending() }

// ServiceInterrupt resolves and acknowledges the highest-priority pending
// interrupt, clearing its IF bit and returning its service-routine vector.
// ok is false when nothing is pending.
func (b *Bus) ServiceInterrupt() (vector uint16, bit int, ok bool) {
	return b.irq.Service()
}

// SetBootROM installs a 256-byte DMG boot ROM mapped at 0x0000-0x00FF until
// the game writes any value to 0xFF50, matching real DMG hardware.
func (b *Bus) SetBootROM(data []byte) {
	if len(data) < 0x100 {
		b.bootROM = nil
		b.bootROMEnabled = false
		return
	}
	b.bootROM = make([]byte, 0x100)
	copy(b.bootROM, data[:0x100])
	b.bootROMEnabled = true
}

// SetSerialWriter connects an io.Writer to receive bytes written to SB
// (0xFF01) whenever a transfer is started via SC (0xFF02), the same hook
// blargg's test ROMs use to report pass/fail over the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.serialW = w }

// SetJoypadState updates which buttons are currently held, requesting the
// Joypad interrupt on any newly-pressed, currently-selected button.
func (b *Bus) SetJoypadState(mask byte) {
	b.joypad.SetState(joypad.State{
		Right: mask&JoypRight != 0, Left: mask&JoypLeft != 0,
		Up: mask&JoypUp != 0, Down: mask&JoypDown != 0,
		A: mask&JoypA != 0, B: mask&JoypB != 0,
		Select: mask&JoypSelectBtn != 0, Start: mask&JoypStart != 0,
	})
}

// APU exposes the APU for pulling generated audio samples.
func (b *Bus) APU() *apu.APU { return b.apu }

// PPU exposes the PPU for framebuffer access.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// Read returns the byte visible to the CPU at addr.
func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x100 && b.bootROMEnabled:
		return b.bootROM[addr]
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		if b.dma.Active() {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF: // echo RAM mirrors 0xC000-0xDDFF
		return b.wram[addr-0xE000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dma.Active() {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF: // unusable
		return 0xFF
	case addr == 0xFF00:
		return b.joypad.Read()
	case addr == 0xFF01:
		return b.serialData
	case addr == 0xFF02:
		return b.serialCtrl | 0x7E
	case addr == timer.DIV, addr == timer.TIMA, addr == timer.TMA, addr == timer.TAC:
		return b.timer.Read(addr)
	case addr == 0xFF0F:
		return b.irq.ReadIF()
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr >= 0xFF40 && addr <= 0xFF45, addr >= 0xFF47 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return 0xFF // OAM-DMA source register is write-only
	case addr == 0xFF50:
		return 0xFF
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFFFF:
		return b.irq.ReadIE()
	default:
		return 0xFF
	}
}

// RawRead reads a byte bypassing the DMA-active memory lock and PPU mode
// restrictions, for the DMA engine's own source reads.
func (b *Bus) RawRead(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.RawVRAM(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0xE000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return b.ppu.RawOAM(addr)
	default:
		return 0xFF
	}
}

// WriteOAM writes directly into OAM byte index (0..159), bypassing CPU
// access restrictions, for the DMA engine's destination writes.
func (b *Bus) WriteOAM(index int, v byte) { b.ppu.WriteOAMRaw(index, v) }

// Write handles a CPU write to addr.
func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		if b.dma.Active() {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wram[addr-0xE000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dma.Active() {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// unusable, ignored
	case addr == 0xFF00:
		b.joypad.Write(value)
	case addr == 0xFF01:
		b.serialData = value
	case addr == 0xFF02:
		b.serialCtrl = value & 0x81
		if value&0x80 != 0 && b.serialW != nil {
			_, _ = b.serialW.Write([]byte{b.serialData})
		}
	case addr == timer.DIV, addr == timer.TIMA, addr == timer.TMA, addr == timer.TAC:
		b.timer.Write(addr, value)
	case addr == 0xFF0F:
		b.irq.WriteIF(value)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr >= 0xFF40 && addr <= 0xFF45, addr >= 0xFF47 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.dma.Start(value)
	case addr == 0xFF50:
		if value != 0 {
			b.bootROMEnabled = false
		}
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFFFF:
		b.irq.WriteIE(value)
	}
}

// Tick advances every ticked peripheral by cycles T-cycles, called by the
// CPU after each instruction (or during HALT/STOP) with the cycle count it
// just spent.
func (b *Bus) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	b.ppu.Tick(cycles)
	b.apu.Tick(cycles)
	b.timer.Tick(cycles)
	b.dma.Tick(cycles)
}

// SaveState/LoadState serialize the whole bus: cartridge, WRAM, HRAM, and
// every peripheral, in a fixed field order internal/machine's binary
// save-state format writes verbatim into the top-level record.
type State struct {
	CartData   []byte
	WRAM       [0x2000]byte
	HRAM       [0x7F]byte
	PPUData    []byte
	APUData    []byte
	TimerData  []byte
	JoypadData []byte
	DMAData    []byte
	IRQData    []byte
	SerialData byte
	SerialCtrl byte
	BootROMOn  bool
}

func (b *Bus) SaveState() State {
	return State{
		CartData:   b.cart.SaveState(),
		WRAM:       b.wram,
		HRAM:       b.hram,
		PPUData:    b.ppu.SaveState(),
		APUData:    b.apu.SaveState(),
		TimerData:  b.timer.SaveState(),
		JoypadData: b.joypad.SaveState(),
		DMAData:    b.dma.SaveState(),
		IRQData:    b.irq.SaveState(),
		SerialData: b.serialData,
		SerialCtrl: b.serialCtrl,
		BootROMOn:  b.bootROMEnabled,
	}
}

func (b *Bus) LoadState(s State) {
	b.cart.LoadState(s.CartData)
	b.wram = s.WRAM
	b.hram = s.HRAM
	b.ppu.LoadState(s.PPUData)
	b.apu.LoadState(s.APUData)
	b.timer.LoadState(s.TimerData)
	b.joypad.LoadState(s.JoypadData)
	b.dma.LoadState(s.DMAData)
	b.irq.LoadState(s.IRQData)
	b.serialData = s.SerialData
	b.serialCtrl = s.SerialCtrl
	b.bootROMEnabled = s.BootROMOn
}

// Cartridge exposes the loaded cartridge, for battery-RAM persistence.
func (b *Bus) Cartridge() cart.Cartridge { return b.cart }
