package main

import (
	"errors"
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/machine"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/ui"
)

type cliFlags struct {
	ROMPath string
	BootROM string
	Scale   int
	Title   string
	Trace   bool
	SaveRAM bool

	Headless bool
	Frames   int
	PNGOut   string
	Expect   string
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gb)")
	flag.StringVar(&f.BootROM, "bootrom", "", "optional DMG boot ROM")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "gbemu", "window title")
	flag.BoolVar(&f.Trace, "trace", false, "CPU trace log")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist battery RAM to ROM.sav on exit and load on start")

	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert framebuffer CRC32 (hex)")
	flag.Parse()
	return f
}

// headlessHost is a no-op machine.HostBridge for scripted runs: it never
// presents or reads real input, so Machine.StepFrame just advances state.
type headlessHost struct{}

func (headlessHost) BlitScreen(*[160 * 144]uint32, int)     {}
func (headlessHost) PresentFrame()                          {}
func (headlessHost) OnAudioGenerated([]int16)               {}
func (headlessHost) HandleEvents(*machine.JoypadState) bool { return false }

func framebufferRGBA(fb *[160 * 144]uint32) []byte {
	out := make([]byte, len(fb)*4)
	for i, px := range fb {
		out[4*i+0] = byte(px >> 16)
		out[4*i+1] = byte(px >> 8)
		out[4*i+2] = byte(px)
		out[4*i+3] = 0xFF
	}
	return out
}

func runHeadless(m *machine.Machine, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	host := headlessHost{}
	for i := 0; i < frames; i++ {
		m.StepFrame(host)
	}
	dur := time.Since(start)

	fb := framebufferRGBA(m.Framebuffer())
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, 160, 144, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(pix)),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	copy(img.Pix, pix)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

func main() {
	f := parseFlags()
	var rom []byte
	if f.ROMPath != "" {
		rom = mustRead(f.ROMPath)
	}
	boot := mustRead(f.BootROM)

	if len(rom) >= 0x150 {
		if h, err := cart.ParseHeader(rom); err == nil {
			log.Printf("ROM: %q type=%s banks=%d ram=%dB", h.Title, h.CartTypeStr, h.ROMBanks, h.RAMSizeBytes)
		}
	}

	m := machine.New(machine.Config{
		Trace:           f.Trace,
		LimitFPS:        !f.Headless,
		BatteryAutosave: f.SaveRAM,
	})
	if len(boot) >= 0x100 {
		m.SetBootROM(boot)
	}

	var savPath string
	if len(rom) > 0 {
		if f.ROMPath != "" {
			if abs, err := filepath.Abs(f.ROMPath); err == nil {
				f.ROMPath = abs
			}
			if err := m.LoadROMFromFile(f.ROMPath); err != nil {
				log.Fatalf("load cart: %v", err)
			}
		} else if err := m.LoadCartridge(rom, boot); err != nil {
			log.Fatalf("load cart: %v", err)
		}
		if warn := m.LoadWarning(); warn != nil {
			log.Printf("warning: %v", warn)
		}

		if f.SaveRAM {
			savPath = strings.TrimSuffix(f.ROMPath, ".gb") + ".sav"
			if data, err := os.ReadFile(savPath); err == nil {
				if m.LoadBattery(data) {
					log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
				}
			}
		}
	}

	if f.Headless {
		if err := runHeadless(m, f.Frames, f.PNGOut, f.Expect); err != nil {
			log.Fatal(err)
		}
		writeBattery(m, f.SaveRAM, savPath)
		return
	}

	app := ui.NewApp(ui.Config{Title: f.Title, Scale: f.Scale}, m)
	if err := app.Run(); err != nil && !errors.Is(err, ui.ErrQuit) {
		log.Fatal(err)
	}
	writeBattery(m, f.SaveRAM, savPath)
}

func writeBattery(m *machine.Machine, save bool, savPath string) {
	if !save {
		return
	}
	if savPath == "" && m.ROMPath() != "" && strings.HasSuffix(strings.ToLower(m.ROMPath()), ".gb") {
		savPath = strings.TrimSuffix(m.ROMPath(), ".gb") + ".sav"
	}
	if savPath == "" {
		return
	}
	if data, ok := m.SaveBattery(); ok {
		if err := os.WriteFile(savPath, data, 0644); err == nil {
			log.Printf("wrote %s", savPath)
		}
	}
}
