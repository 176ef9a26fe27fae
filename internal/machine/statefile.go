package machine

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
)

// saveStateVersion is bumped whenever the on-disk layout changes.
const saveStateVersion uint32 = 1

// SaveState serializes the version, a header check against the loaded
// cartridge (title + global checksum byte), the ROM's title as a
// length-prefixed string, and the full core state in declaration order:
// CPU, then Bus (which in turn nests PPU/APU/Timer/Joypad/DMA/IRQ/cart).
func (m *Machine) SaveState() ([]byte, error) {
	if m.bus == nil || m.cpu == nil {
		return nil, newError(KindSaveState, "no cartridge loaded", nil)
	}

	title, checksum := m.headerFingerprint()

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, saveStateVersion)
	_ = binary.Write(&buf, binary.LittleEndian, checksum)
	writeLengthPrefixed(&buf, []byte(title))

	cpuData := m.cpu.SaveState()
	writeLengthPrefixed(&buf, cpuData)

	busState := m.bus.SaveState()
	writeLengthPrefixed(&buf, busState.CartData)
	buf.Write(busState.WRAM[:])
	buf.Write(busState.HRAM[:])
	writeLengthPrefixed(&buf, busState.PPUData)
	writeLengthPrefixed(&buf, busState.APUData)
	writeLengthPrefixed(&buf, busState.TimerData)
	writeLengthPrefixed(&buf, busState.JoypadData)
	writeLengthPrefixed(&buf, busState.DMAData)
	writeLengthPrefixed(&buf, busState.IRQData)
	buf.WriteByte(busState.SerialData)
	buf.WriteByte(busState.SerialCtrl)
	buf.WriteByte(boolByte(busState.BootROMOn))

	return buf.Bytes(), nil
}

// LoadState restores a snapshot produced by SaveState, refusing on version
// mismatch or a header fingerprint (title + global checksum) that doesn't
// match the currently-loaded cartridge.
func (m *Machine) LoadState(data []byte) error {
	if m.bus == nil || m.cpu == nil {
		return newError(KindSaveState, "no cartridge loaded", nil)
	}

	r := bytes.NewReader(data)
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	if version != saveStateVersion {
		return newError(KindSaveState, "version mismatch", nil)
	}
	var checksum byte
	if err := binary.Read(r, binary.LittleEndian, &checksum); err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	title, err := readLengthPrefixed(r)
	if err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	wantTitle, wantChecksum := m.headerFingerprint()
	if string(title) != wantTitle || checksum != wantChecksum {
		return newError(KindSaveState, "header mismatch against current ROM", nil)
	}

	cpuData, err := readLengthPrefixed(r)
	if err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}

	cartData, err := readLengthPrefixed(r)
	if err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	var s struct {
		WRAM [0x2000]byte
		HRAM [0x7F]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &s.WRAM); err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &s.HRAM); err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	ppuData, err := readLengthPrefixed(r)
	if err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	apuData, err := readLengthPrefixed(r)
	if err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	timerData, err := readLengthPrefixed(r)
	if err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	joypadData, err := readLengthPrefixed(r)
	if err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	dmaData, err := readLengthPrefixed(r)
	if err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	irqData, err := readLengthPrefixed(r)
	if err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	var serialData, serialCtrl, bootROMOn byte
	if serialData, err = r.ReadByte(); err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	if serialCtrl, err = r.ReadByte(); err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}
	if bootROMOn, err = r.ReadByte(); err != nil {
		return newError(KindSaveState, "truncated stream", err)
	}

	m.cpu.LoadState(cpuData)
	m.bus.LoadState(bus.State{
		CartData:   cartData,
		WRAM:       s.WRAM,
		HRAM:       s.HRAM,
		PPUData:    ppuData,
		APUData:    apuData,
		TimerData:  timerData,
		JoypadData: joypadData,
		DMAData:    dmaData,
		IRQData:    irqData,
		SerialData: serialData,
		SerialCtrl: serialCtrl,
		BootROMOn:  bootROMOn != 0,
	})
	return nil
}

// SaveStateToFile writes SaveState's output to path.
func (m *Machine) SaveStateToFile(path string) error {
	data, err := m.SaveState()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newError(KindSaveState, "write save-state file", err)
	}
	return nil
}

// LoadStateFromFile reads and applies a save-state written by SaveStateToFile.
func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newError(KindSaveState, "read save-state file", err)
	}
	return m.LoadState(data)
}

func (m *Machine) headerFingerprint() (title string, checksum byte) {
	if m.bus == nil {
		return "", 0
	}
	// The header lives in ROM bank 0, always addressable at 0x0100-0x014F
	// regardless of which bank is currently switched in.
	var raw [0x150]byte
	for i := range raw {
		raw[i] = m.bus.RawRead(uint16(i))
	}
	h, err := cart.ParseHeader(raw[:])
	if err != nil || h == nil {
		return "", 0
	}
	return h.Title, raw[0x14D]
}

func writeLengthPrefixed(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func readLengthPrefixed(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
