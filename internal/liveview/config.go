package liveview

import (
	"net/http"
	"time"
)

const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultReadBufferSize = 8192
	DefaultFpsInterval    = 5 * time.Second
)

// Config holds connection and decoder settings.
type Config struct {
	RequestTimeout time.Duration
	ReadBufferSize int
	FpsInterval    time.Duration
	// HTTPClient must not set Client.Timeout; it would cut the stream.
	HTTPClient *http.Client
}

func DefaultConfig() Config {
	return Config{
		RequestTimeout: DefaultRequestTimeout,
		ReadBufferSize: DefaultReadBufferSize,
		FpsInterval:    DefaultFpsInterval,
	}
}

// WithDefaults replaces zero fields with defaults.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.FpsInterval <= 0 {
		c.FpsInterval = d.FpsInterval
	}
	if c.HTTPClient == nil {
		c.HTTPClient = newStreamingClient()
	}
	return c
}

func newStreamingClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Body bytes must reach the decoder exactly as framed.
	transport.DisableCompression = true
	return &http.Client{Transport: transport}
}
