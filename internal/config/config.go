package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type RelayConfig struct {
	Name           string     `toml:"name"`
	Addr           string     `toml:"addr"`
	Target         string     `toml:"target"`
	RequestTimeout string     `toml:"request_timeout"`
	ReadBufferSize int        `toml:"read_buffer_size"`
	CorsOrigins    []string   `toml:"cors_origins"`
	NATS           NATSConfig `toml:"nats"`
}

// NATSConfig enables packet publishing when URL is set.
type NATSConfig struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
	PublishImages bool   `toml:"publish_images"`
}

type FakecamConfig struct {
	Addr         string `toml:"addr"`
	Path         string `toml:"path"`
	Width        int    `toml:"width"`
	Height       int    `toml:"height"`
	FPS          int    `toml:"fps"`
	FocusEvery   int    `toml:"focus_every"`
	Playback     bool   `toml:"playback"`
	UnknownEvery int    `toml:"unknown_every"`
	Padding      int    `toml:"padding"`
}

func LoadRelayConfig(path string) (RelayConfig, error) {
	var cfg RelayConfig
	if err := loadToml(path, &cfg); err != nil {
		return RelayConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "lvrelay"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9200"
	}
	if cfg.RequestTimeout == "" {
		cfg.RequestTimeout = "5s"
	}
	if cfg.NATS.URL != "" && cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "liveview." + cfg.Name
	}
	if err := ValidateRelayConfig(cfg); err != nil {
		return RelayConfig{}, err
	}
	return cfg, nil
}

func LoadFakecamConfig(path string) (FakecamConfig, error) {
	var cfg FakecamConfig
	if err := loadToml(path, &cfg); err != nil {
		return FakecamConfig{}, err
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Path == "" {
		cfg.Path = "/liveview/liveviewstream"
	}
	if cfg.Width == 0 {
		cfg.Width = 640
	}
	if cfg.Height == 0 {
		cfg.Height = 480
	}
	if cfg.FPS == 0 {
		cfg.FPS = 30
	}
	if err := ValidateFakecamConfig(cfg); err != nil {
		return FakecamConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateRelayConfig(cfg RelayConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("relay config missing name")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("relay config missing addr")
	}
	if err := validateStreamURL(cfg.Target); err != nil {
		return fmt.Errorf("relay config target invalid: %w", err)
	}
	if _, err := cfg.Timeout(); err != nil {
		return fmt.Errorf("relay config request_timeout invalid: %w", err)
	}
	if cfg.ReadBufferSize < 0 {
		return fmt.Errorf("relay config read_buffer_size must not be negative")
	}
	if cfg.NATS.URL != "" && strings.TrimSpace(cfg.NATS.SubjectPrefix) == "" {
		return fmt.Errorf("relay config nats subject_prefix required")
	}
	return nil
}

func ValidateFakecamConfig(cfg FakecamConfig) error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("fakecam config missing addr")
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return fmt.Errorf("fakecam config path must start with /")
	}
	if cfg.Width <= 0 || cfg.Width > 0xFFFF || cfg.Height <= 0 || cfg.Height > 0xFFFF {
		return fmt.Errorf("fakecam config width/height out of range")
	}
	if cfg.FPS < 0 {
		return fmt.Errorf("fakecam config fps must not be negative")
	}
	if cfg.Padding < 0 || cfg.Padding > 255 {
		return fmt.Errorf("fakecam config padding out of range")
	}
	return nil
}

// Timeout parses RequestTimeout; empty means zero (use the stream default).
func (c RelayConfig) Timeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.RequestTimeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return d, nil
}

func validateStreamURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
