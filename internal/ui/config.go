package ui

// Config contains window/input/audio related settings for the ebiten host.
type Config struct {
	Title string // window title
	Scale int    // integer upscaling factor

	AudioLowLatency bool // hard-cap the audio ring buffer for minimal latency
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "gbemu"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
}
