package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/nsqwire/internal/conn"
	"github.com/danmuck/nsqwire/internal/protocol/command"
)

type fileConfig struct {
	Addr              string   `toml:"addr"`
	Topic             string   `toml:"topic"`
	Channel           string   `toml:"channel"`
	ClientID          string   `toml:"client_id"`
	Hostname          string   `toml:"hostname"`
	UserAgent         string   `toml:"user_agent"`
	HeartbeatInterval string   `toml:"heartbeat_interval"`
	RDY               int64    `toml:"rdy"`
	MaxMessages       int      `toml:"max_messages"`
	AuthSecret        string   `toml:"auth_secret"`
	ConnectTimeout    string   `toml:"connect_timeout"`
	ReadTimeout       string   `toml:"read_timeout"`
	WriteTimeout      string   `toml:"write_timeout"`
	MetricsAddr       string   `toml:"metrics_addr"`
	MetricsCORS       []string `toml:"metrics_cors_origins"`
}

// tailConfig is the resolved runtime configuration.
type tailConfig struct {
	Addr              string
	Topic             string
	Channel           string
	ClientID          string
	Hostname          string
	UserAgent         string
	HeartbeatInterval time.Duration
	RDY               uint32
	// MaxMessages sends CLS after this many messages; 0 tails forever.
	MaxMessages int
	AuthSecret  string
	Conn        conn.Config
	// MetricsAddr serves /metrics while tailing when set.
	MetricsAddr string
	MetricsCORS []string
}

func defaultTailConfig() tailConfig {
	host, _ := os.Hostname()
	return tailConfig{
		Addr:      "127.0.0.1:4150",
		Channel:   "nsqtail#ephemeral",
		ClientID:  "nsqtail",
		Hostname:  host,
		UserAgent: "nsqtail/" + version,
		RDY:       1,
		Conn:      conn.DefaultConfig(),
	}
}

func loadTailConfig(path string) (tailConfig, error) {
	cfg := defaultTailConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return tailConfig{}, fmt.Errorf("load nsqtail config: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("topic") {
		cfg.Topic = strings.TrimSpace(raw.Topic)
	}
	if meta.IsDefined("channel") {
		cfg.Channel = strings.TrimSpace(raw.Channel)
	}
	if meta.IsDefined("client_id") {
		cfg.ClientID = strings.TrimSpace(raw.ClientID)
	}
	if meta.IsDefined("hostname") {
		cfg.Hostname = strings.TrimSpace(raw.Hostname)
	}
	if meta.IsDefined("user_agent") {
		cfg.UserAgent = strings.TrimSpace(raw.UserAgent)
	}
	if meta.IsDefined("heartbeat_interval") {
		d, err := parseDuration("heartbeat_interval", raw.HeartbeatInterval)
		if err != nil {
			return tailConfig{}, err
		}
		cfg.HeartbeatInterval = d
	}
	if meta.IsDefined("rdy") {
		if raw.RDY < 0 || raw.RDY > int64(^uint32(0)) {
			return tailConfig{}, fmt.Errorf("rdy out of range: %d", raw.RDY)
		}
		cfg.RDY = uint32(raw.RDY)
	}
	if meta.IsDefined("max_messages") {
		cfg.MaxMessages = raw.MaxMessages
	}
	if meta.IsDefined("auth_secret") {
		cfg.AuthSecret = raw.AuthSecret
	}
	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration("connect_timeout", raw.ConnectTimeout)
		if err != nil {
			return tailConfig{}, err
		}
		cfg.Conn.ConnectTimeout = d
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration("read_timeout", raw.ReadTimeout)
		if err != nil {
			return tailConfig{}, err
		}
		cfg.Conn.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration("write_timeout", raw.WriteTimeout)
		if err != nil {
			return tailConfig{}, err
		}
		cfg.Conn.WriteTimeout = d
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("metrics_cors_origins") {
		cfg.MetricsCORS = raw.MetricsCORS
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// validateTail checks what the tail subcommand needs before dialing.
func (c tailConfig) validateTail() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("nsqtail config missing addr")
	}
	if !command.ValidName(c.Topic) {
		return fmt.Errorf("nsqtail config invalid topic %q", c.Topic)
	}
	if !command.ValidName(c.Channel) {
		return fmt.Errorf("nsqtail config invalid channel %q", c.Channel)
	}
	if c.MaxMessages < 0 {
		return fmt.Errorf("nsqtail config max_messages must not be negative")
	}
	return nil
}
