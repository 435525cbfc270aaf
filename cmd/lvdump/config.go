package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type dumpConfig struct {
	Target  string
	OutDir  string
	Timeout time.Duration
	// MaxImages stops the dump after that many images; zero means unbounded.
	MaxImages  int
	BufferSize int
}

type fileConfig struct {
	Target     string `toml:"target"`
	OutDir     string `toml:"out_dir"`
	Timeout    string `toml:"timeout"`
	MaxImages  int    `toml:"max_images"`
	BufferSize int    `toml:"read_buffer_size"`
}

func defaultDumpConfig() dumpConfig {
	return dumpConfig{
		Target:  "http://127.0.0.1:8080/liveview/liveviewstream",
		OutDir:  "lvdump",
		Timeout: 5 * time.Second,
	}
}

func loadDumpConfig(path string) (dumpConfig, error) {
	cfg := defaultDumpConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return dumpConfig{}, fmt.Errorf("load lvdump config: %w", err)
	}

	if meta.IsDefined("target") {
		cfg.Target = strings.TrimSpace(raw.Target)
	}
	if meta.IsDefined("out_dir") {
		cfg.OutDir = strings.TrimSpace(raw.OutDir)
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return dumpConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("max_images") {
		cfg.MaxImages = raw.MaxImages
	}
	if meta.IsDefined("read_buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return dumpConfig{}, fmt.Errorf("unknown lvdump config key %q", undecoded[0].String())
	}
	return cfg, cfg.validate()
}

func (c dumpConfig) validate() error {
	if c.Target == "" {
		return fmt.Errorf("target is required")
	}
	if c.OutDir == "" {
		return fmt.Errorf("out_dir is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if c.MaxImages < 0 {
		return fmt.Errorf("max_images must be >= 0")
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("read_buffer_size must be >= 0")
	}
	return nil
}
