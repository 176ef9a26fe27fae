package cart

import "testing"

func TestMBC2_RAMEnableAndNibbleRAM(t *testing.T) {
	rom := make([]byte, 256*1024)
	for bank := 0; bank < 16; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC2(rom)

	// RAM starts disabled: reads are 0xFF
	if got := m.Read(0xA000); got != 0xFF {
		t.Fatalf("disabled RAM read got %02X want FF", got)
	}

	// Enable via an address with bit 8 clear
	m.Write(0x0000, 0x0A)
	m.Write(0xA000, 0x3C)
	if got := m.Read(0xA000); got != 0xF0|0x0C {
		t.Fatalf("RAM nibble RW got %02X want FC", got)
	}

	// Mirrors every 512 bytes across the A000-BFFF window
	if got := m.Read(0xA200); got != 0xF0|0x0C {
		t.Fatalf("RAM mirror got %02X want FC", got)
	}
}

func TestMBC2_ROMBankSelectViaAddressBit8(t *testing.T) {
	rom := make([]byte, 256*1024)
	for bank := 0; bank < 16; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC2(rom)

	// Address bit 8 clear in 0x0000-0x3FFF selects RAM enable, not ROM bank
	m.Write(0x0000, 0x05)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("unexpected bank switch from RAM-enable write: got %02X", got)
	}

	// Address bit 8 set selects the ROM bank register
	m.Write(0x0100, 0x05)
	if got := m.Read(0x4000); got != 0x05 {
		t.Fatalf("bank select got %02X want 05", got)
	}

	// Writing 0 remaps to 1
	m.Write(0x0100, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap failed: got %02X", got)
	}
}
