package config

import (
	"time"

	"github.com/danmuck/lvstream/internal/fakecam"
	"github.com/danmuck/lvstream/internal/liveview"
)

func (c RelayConfig) LiveviewConfig() liveview.Config {
	cfg := liveview.DefaultConfig()
	if d, err := c.Timeout(); err == nil && d > 0 {
		cfg.RequestTimeout = d
	}
	if c.ReadBufferSize > 0 {
		cfg.ReadBufferSize = c.ReadBufferSize
	}
	return cfg
}

func (c FakecamConfig) CameraOptions() fakecam.Options {
	opts := fakecam.DefaultOptions()
	opts.Width = uint16(c.Width)
	opts.Height = uint16(c.Height)
	opts.FrameInterval = 0
	if c.FPS > 0 {
		opts.FrameInterval = time.Second / time.Duration(c.FPS)
	}
	opts.FocusEvery = c.FocusEvery
	opts.Playback = c.Playback
	opts.UnknownEvery = c.UnknownEvery
	opts.Padding = c.Padding
	return opts
}
