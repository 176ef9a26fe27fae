package cart

// MBC2 implements ROM banking (up to 256KB) plus the 512x4-bit RAM built
// into the MBC itself. RAM control writes are distinguished from ROM bank
// writes by address bit 8: even when both fall in 0x0000-0x3FFF, bit 8
// clear selects RAM-enable, bit 8 set selects the ROM bank register.
type MBC2 struct {
	rom []byte
	ram [512]byte // only the low nibble of each byte is wired up

	ramEnabled bool
	romBank    byte // 4 bits, 0 remapped to 1
}

func NewMBC2(rom []byte) *MBC2 {
	m := &MBC2{rom: rom}
	m.romBank = 1
	return m
}

func (m *MBC2) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x0F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		// RAM is only 512 bytes, mirrored across the whole A000-BFFF window;
		// only the low nibble of each stored byte is meaningful.
		return 0xF0 | (m.ram[int(addr-0xA000)%512] & 0x0F)
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value byte) {
	switch {
	case addr < 0x4000:
		if addr&0x0100 == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			bank := value & 0x0F
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		m.ram[int(addr-0xA000)%512] = value & 0x0F
	}
}

func (m *MBC2) SaveRAM() []byte {
	out := make([]byte, len(m.ram))
	copy(out, m.ram[:])
	return out
}

func (m *MBC2) LoadRAM(data []byte) {
	copy(m.ram[:], data)
}

type mbc2State struct {
	RAM        [512]byte
	RomBank    byte
	RamEnabled bool
}

func (m *MBC2) SaveState() []byte {
	return encodeGob(mbc2State{RAM: m.ram, RomBank: m.romBank, RamEnabled: m.ramEnabled})
}

func (m *MBC2) LoadState(data []byte) {
	var s mbc2State
	if !decodeGob(data, &s) {
		return
	}
	m.ram = s.RAM
	m.romBank = s.RomBank
	m.ramEnabled = s.RamEnabled
}
