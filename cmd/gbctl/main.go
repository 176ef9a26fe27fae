// Command gbctl runs the DMG core headlessly for scripted use: cartridge
// inspection, run-to-frame verification, save-state export, and audio
// capture, none of which need a window.
package main

import (
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/machine"
)

// CLI is the gbctl subcommand tree.
type CLI struct {
	Info      InfoCmd      `cmd:"" help:"Decode and print a ROM's cartridge header."`
	Run       RunCmd       `cmd:"" help:"Run a ROM headlessly for N frames and optionally check the framebuffer."`
	Savestate SavestateCmd `cmd:"" help:"Run a ROM for N frames and export a save-state."`
	Record    RecordCmd    `cmd:"" help:"Run a ROM for N frames and record its audio output to a WAV file."`
}

// InfoCmd decodes and prints a ROM's cartridge header.
type InfoCmd struct {
	ROM string `arg:"" type:"existingfile" help:"Path to ROM file."`
}

// Run executes the info command.
func (c *InfoCmd) Run() error {
	data, err := os.ReadFile(c.ROM)
	if err != nil {
		return fmt.Errorf("read ROM: %w", err)
	}
	h, err := cart.ParseHeader(data)
	if err != nil {
		return fmt.Errorf("parse header: %w", err)
	}
	fmt.Printf("Title:       %s\n", h.Title)
	fmt.Printf("Cart type:   %s (0x%02X)\n", h.CartTypeStr, h.CartType)
	fmt.Printf("ROM banks:   %d\n", h.ROMBanks)
	fmt.Printf("RAM size:    %d bytes\n", h.RAMSizeBytes)
	fmt.Printf("CGB flag:    0x%02X\n", h.CGBFlag)
	fmt.Printf("Header OK:   %v\n", cart.HeaderChecksumOK(data))
	return nil
}

// RunCmd runs a ROM headlessly and optionally checks the resulting frame.
type RunCmd struct {
	ROM     string `arg:"" type:"existingfile" help:"Path to ROM file."`
	BootROM string `help:"Optional DMG boot ROM."`
	Frames  int    `default:"300" help:"Number of frames to run."`
	PNGOut  string `help:"Write the final framebuffer to this PNG path."`
	Expect  string `help:"Expected framebuffer CRC32 (hex); mismatch is an error."`
}

// Run executes the run command.
func (c *RunCmd) Run() error {
	m, err := loadHeadless(c.ROM, c.BootROM)
	if err != nil {
		return err
	}
	stepFrames(m, c.Frames)

	fb := m.Framebuffer()
	rgba := framebufferRGBA(fb)
	crc := crc32.ChecksumIEEE(rgba)
	fmt.Printf("frames=%d fb_crc32=%08x\n", c.Frames, crc)

	if c.PNGOut != "" {
		if err := writePNG(rgba, c.PNGOut); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
	}
	if c.Expect != "" {
		want := strings.TrimPrefix(strings.ToLower(c.Expect), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

// SavestateCmd runs a ROM for N frames then writes a save-state file.
type SavestateCmd struct {
	ROM     string `arg:"" type:"existingfile" help:"Path to ROM file."`
	Out     string `arg:"" help:"Path to write the save-state to."`
	BootROM string `help:"Optional DMG boot ROM."`
	Frames  int    `default:"60" help:"Number of frames to run before saving."`
}

// Run executes the savestate command.
func (c *SavestateCmd) Run() error {
	m, err := loadHeadless(c.ROM, c.BootROM)
	if err != nil {
		return err
	}
	stepFrames(m, c.Frames)
	if err := m.SaveStateToFile(c.Out); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	fmt.Printf("wrote %s after %d frames\n", c.Out, c.Frames)
	return nil
}

// RecordCmd runs a ROM for N frames, capturing the APU's stereo output to
// a 16-bit WAV file.
type RecordCmd struct {
	ROM        string `arg:"" type:"existingfile" help:"Path to ROM file."`
	Out        string `arg:"" help:"Path to write the WAV file to."`
	BootROM    string `help:"Optional DMG boot ROM."`
	Frames     int    `default:"600" help:"Number of frames to run and record."`
	SampleRate int    `default:"48000" help:"APU sample rate."`
}

// Run executes the record command.
func (c *RecordCmd) Run() error {
	m := machine.New(machine.Config{SampleRate: c.SampleRate})
	if err := loadInto(m, c.ROM, c.BootROM); err != nil {
		return err
	}

	f, err := os.Create(c.Out)
	if err != nil {
		return fmt.Errorf("create %s: %w", c.Out, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, c.SampleRate, 16, 2, 1)
	defer enc.Close()

	for i := 0; i < c.Frames; i++ {
		m.StepFrameNoRender()
		samples := m.PullAudio(1 << 20)
		if len(samples) == 0 {
			continue
		}
		ints := make([]int, len(samples))
		for j, s := range samples {
			ints[j] = int(s)
		}
		buf := &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: c.SampleRate},
			Data:           ints,
			SourceBitDepth: 16,
		}
		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("write WAV frame: %w", err)
		}
	}
	fmt.Printf("wrote %s (%d frames)\n", c.Out, c.Frames)
	return nil
}

func loadHeadless(romPath, bootPath string) (*machine.Machine, error) {
	m := machine.New(machine.Config{})
	if err := loadInto(m, romPath, bootPath); err != nil {
		return nil, err
	}
	return m, nil
}

func loadInto(m *machine.Machine, romPath, bootPath string) error {
	var boot []byte
	if bootPath != "" {
		data, err := os.ReadFile(bootPath)
		if err != nil {
			return fmt.Errorf("read boot ROM: %w", err)
		}
		boot = data
	}
	if len(boot) >= 0x100 {
		m.SetBootROM(boot)
	}
	if err := m.LoadROMFromFile(romPath); err != nil {
		return fmt.Errorf("load ROM: %w", err)
	}
	return nil
}

func stepFrames(m *machine.Machine, n int) {
	for i := 0; i < n; i++ {
		m.StepFrameNoRender()
	}
}

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

func writePNG(rgba []byte, path string) error {
	img := &image.RGBA{Pix: rgba, Stride: 4 * 160, Rect: image.Rect(0, 0, 160, 144)}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("gbctl"),
		kong.Description("Headless control surface for the DMG core."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
