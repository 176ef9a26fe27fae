// Package ui hosts the DMG core in an ebiten window: it implements
// machine.HostBridge (screen blit, audio delivery, input collection) and
// ebiten.Game (the windowed run loop that drives Machine.StepFrame).
package ui

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/machine"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

const sampleRate = 48000

// App is a machine.HostBridge backed by an ebiten window. It also drives
// the Machine itself, calling StepFrame(a) once per ebiten Update.
type App struct {
	cfg Config
	mc  *machine.Machine

	tex *ebiten.Image

	audioCtx    *audio.Context
	audioPlayer *audio.Player
	ring        *audioRing

	paused bool
	fast   bool
	quit   bool
}

// NewApp wires an ebiten-backed host for mc.
func NewApp(cfg Config, mc *machine.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)

	a := &App{cfg: cfg, mc: mc, ring: newAudioRing(cfg.AudioLowLatency)}
	a.audioCtx = audio.NewContext(sampleRate)
	if p, err := a.audioCtx.NewPlayer(a.ring); err == nil {
		a.audioPlayer = p
		a.audioPlayer.Play()
	}
	return a
}

// Run starts ebiten's run loop, which drives Update/Draw until the window
// closes or HandleEvents reports quit.
func (a *App) Run() error { return ebiten.RunGame(a) }

// BlitScreen implements machine.HostBridge.
func (a *App) BlitScreen(pixels *[160 * 144]uint32, pitch int) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	rgba := make([]byte, 160*144*4)
	for i, px := range pixels {
		rgba[4*i+0] = byte(px >> 16) // R
		rgba[4*i+1] = byte(px >> 8)  // G
		rgba[4*i+2] = byte(px)       // B
		rgba[4*i+3] = 0xFF
	}
	a.tex.WritePixels(rgba)
}

// PresentFrame implements machine.HostBridge. Actual presentation happens
// in Draw, which ebiten calls on its own schedule; nothing to do here.
func (a *App) PresentFrame() {}

// OnAudioGenerated implements machine.HostBridge, queueing samples for the
// ebiten audio player to drain.
func (a *App) OnAudioGenerated(samples []int16) {
	a.ring.push(samples)
}

// HandleEvents implements machine.HostBridge: reads keyboard state into
// joypad and reports whether the window wants to close.
func (a *App) HandleEvents(joypad *machine.JoypadState) bool {
	joypad.Right = ebiten.IsKeyPressed(ebiten.KeyRight)
	joypad.Left = ebiten.IsKeyPressed(ebiten.KeyLeft)
	joypad.Up = ebiten.IsKeyPressed(ebiten.KeyUp)
	joypad.Down = ebiten.IsKeyPressed(ebiten.KeyDown)
	joypad.A = ebiten.IsKeyPressed(ebiten.KeyZ)
	joypad.B = ebiten.IsKeyPressed(ebiten.KeyX)
	joypad.Start = ebiten.IsKeyPressed(ebiten.KeyEnter)
	joypad.Select = ebiten.IsKeyPressed(ebiten.KeyShiftRight)
	return a.quit
}

// Update implements ebiten.Game. It steps the underlying Machine, which in
// turn calls back into a's HostBridge methods above.
func (a *App) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		a.quit = true
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		_ = a.mc.SaveStateToFile("slot0.savestate")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		_ = a.mc.LoadStateFromFile("slot0.savestate")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		_ = a.saveScreenshot()
	}

	if a.paused {
		if inpututil.IsKeyJustPressed(ebiten.KeyN) {
			a.mc.StepFrame(a)
		}
		return nil
	}

	steps := 1
	if a.fast {
		steps = 5
	}
	for i := 0; i < steps; i++ {
		if a.mc.StepFrame(a) {
			a.quit = true
		}
	}
	if a.quit {
		return ErrQuit
	}
	return nil
}

// ErrQuit is returned by App.Run when the user requested the window close
// (Escape key or the emulated core's HandleEvents reporting quit), as
// opposed to a real ebiten failure.
var ErrQuit = fmt.Errorf("ui: quit requested")

// Draw implements ebiten.Game, presenting the texture BlitScreen last wrote.
func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	screen.DrawImage(a.tex, nil)
}

// Layout implements ebiten.Game with the DMG's fixed native resolution.
func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) { return 160, 144 }

func (a *App) saveScreenshot() error {
	fb := a.mc.Framebuffer()
	if fb == nil {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, 160, 144))
	for i, px := range fb {
		img.Pix[4*i+0] = byte(px >> 16)
		img.Pix[4*i+1] = byte(px >> 8)
		img.Pix[4*i+2] = byte(px)
		img.Pix[4*i+3] = 0xFF
	}
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
