package conn

import (
	"time"

	"github.com/danmuck/nsqwire/internal/protocol/frame"
)

// Config holds per-connection transport settings. Timeouts apply only when
// the stream supports deadlines; zero disables them.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Limits         frame.Limits
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		WriteTimeout:   15 * time.Second,
		Limits:         frame.DefaultLimits(),
	}
}

// WithDefaults fills settings that have no meaningful zero value.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits = def.Limits
	}
	return c
}
