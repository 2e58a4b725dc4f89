package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Poll      PollConfig      `yaml:"poll"`
	Limits    LimitsConfig    `yaml:"limits"`
	Transport TransportConfig `yaml:"transport"`
	Resync    ResyncConfig    `yaml:"resync"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the marketplace API base URL and the local debug
// listener address.
type ServerConfig struct {
	APIBase   string `yaml:"api_base"`
	DebugAddr string `yaml:"debug_addr"`
	// TLSSkipVerify disables certificate verification toward the API.
	// Dev-only; the marketplace terminates TLS with a real certificate.
	TLSSkipVerify bool `yaml:"tls_skip_verify"`
}

// AuthConfig holds the bearer credential sources and session tunables.
// Token wins over TokenFile; when both are empty the credential is read
// from the on-disk session store under StatePath.
type AuthConfig struct {
	Token     string   `yaml:"token"`
	TokenFile string   `yaml:"token_file"`
	StatePath string   `yaml:"state_path"`
	Grace     Duration `yaml:"grace"`
}

// PollConfig controls the two scheduler timers and per-request budgets.
type PollConfig struct {
	SummaryInterval Duration `yaml:"summary_interval"`
	ThreadInterval  Duration `yaml:"thread_interval"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	PageSize        int      `yaml:"page_size"`
}

// LimitsConfig caps outbound request rate toward the marketplace API.
type LimitsConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// TransportConfig selects the HTTP client engine.
type TransportConfig struct {
	Engine string `yaml:"engine"` // nethttp | fasthttp
}

// ResyncConfig holds configuration for the periodic full-refresh runner.
type ResyncConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Cron         string `yaml:"cron"`
	KeepMessages int    `yaml:"keep_messages"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Duration is a wrapper around time.Duration that supports YAML parsing
// from strings like "15s" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
