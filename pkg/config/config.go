package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Normalize when a value is unset.
const (
	DefaultAPIBase         = "http://localhost:8000/api"
	DefaultDebugAddr       = "127.0.0.1:9180"
	DefaultStatePath       = "./.msgsync"
	DefaultSummaryInterval = 15 * time.Second
	DefaultThreadInterval  = 5 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultGrace           = 5 * time.Second
	DefaultPageSize        = 50
)

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (apiBase string, cfgPath string, setFlags map[string]bool) {
	apiPtr := flag.String("api", DefaultAPIBase, "Marketplace API base URL")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *apiPtr, *cfgPtr, setFlags
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and the environment variable `MSGSYNC_CONFIG` when the flag was
// not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("MSGSYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// LoadEnvOverrides applies environment overrides onto the provided cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	setStr := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			envUsed = true
			*dst = v
		}
	}
	setDur := func(key string, dst *Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if td, err := time.ParseDuration(v); err == nil {
				envUsed = true
				*dst = Duration(td)
			}
		}
	}

	setStr("MSGSYNC_API_BASE", &cfg.Server.APIBase)
	setStr("MSGSYNC_DEBUG_ADDR", &cfg.Server.DebugAddr)
	setStr("MSGSYNC_TOKEN", &cfg.Auth.Token)
	setStr("MSGSYNC_TOKEN_FILE", &cfg.Auth.TokenFile)
	setStr("MSGSYNC_STATE_PATH", &cfg.Auth.StatePath)
	setStr("MSGSYNC_TRANSPORT", &cfg.Transport.Engine)
	setDur("MSGSYNC_SUMMARY_INTERVAL", &cfg.Poll.SummaryInterval)
	setDur("MSGSYNC_THREAD_INTERVAL", &cfg.Poll.ThreadInterval)
	setDur("MSGSYNC_REQUEST_TIMEOUT", &cfg.Poll.RequestTimeout)
	setDur("MSGSYNC_GRACE", &cfg.Auth.Grace)

	if v := os.Getenv("MSGSYNC_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			envUsed = true
			cfg.Poll.PageSize = n
		}
	}
	if v := os.Getenv("MSGSYNC_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Limits.RPS = f
		}
	}
	if v := os.Getenv("MSGSYNC_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Limits.Burst = n
		}
	}
	if v := os.Getenv("MSGSYNC_RESYNC_CRON"); v != "" {
		envUsed = true
		cfg.Resync.Enabled = true
		cfg.Resync.Cron = strings.TrimSpace(v)
	}
	return envUsed
}

// Normalize fills unset fields with defaults and clamps nonsensical
// values. It is safe to call on a zero Config.
func (c *Config) Normalize() {
	if c.Server.APIBase == "" {
		c.Server.APIBase = DefaultAPIBase
	}
	c.Server.APIBase = strings.TrimRight(c.Server.APIBase, "/")
	if c.Server.DebugAddr == "" {
		c.Server.DebugAddr = DefaultDebugAddr
	}
	if c.Auth.StatePath == "" {
		c.Auth.StatePath = DefaultStatePath
	}
	if c.Auth.Grace.Duration() <= 0 {
		c.Auth.Grace = Duration(DefaultGrace)
	}
	if c.Poll.SummaryInterval.Duration() <= 0 {
		c.Poll.SummaryInterval = Duration(DefaultSummaryInterval)
	}
	if c.Poll.ThreadInterval.Duration() <= 0 {
		c.Poll.ThreadInterval = Duration(DefaultThreadInterval)
	}
	if c.Poll.RequestTimeout.Duration() <= 0 {
		c.Poll.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if c.Poll.PageSize <= 0 {
		c.Poll.PageSize = DefaultPageSize
	}
	if c.Transport.Engine == "" {
		c.Transport.Engine = "nethttp"
	}
	if c.Resync.KeepMessages <= 0 {
		c.Resync.KeepMessages = 500
	}
}

// LoadEffective loads config from the given path and applies environment
// overrides and defaults. A missing config file is not an error; env and
// defaults still apply.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	cfg.Normalize()
	return cfg, envUsed, nil
}
