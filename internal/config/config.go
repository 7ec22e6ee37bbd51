// Package config holds llamagate runtime parameters. Precedence, lowest
// first: Default(), an optional file (Load), environment (ApplyEnv), then
// CLI flags applied by cmd/llamagate.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"llamagate/internal/common/fsutil"
	"llamagate/internal/forward"
	"llamagate/internal/httpapi"
	"llamagate/internal/supervisor"
)

// Config is the full runtime configuration.
type Config struct {
	Gateway GatewayConfig `json:"gateway" yaml:"gateway" toml:"gateway"`
	Llama   LlamaConfig   `json:"llama" yaml:"llama" toml:"llama"`
	Log     LogConfig     `json:"log" yaml:"log" toml:"log"`
}

// GatewayConfig controls the public HTTP surface.
type GatewayConfig struct {
	Port                  int      `json:"port" yaml:"port" toml:"port"`
	ForwardPrefix         string   `json:"forward_prefix" yaml:"forward_prefix" toml:"forward_prefix"`
	StatusPath            string   `json:"status_path" yaml:"status_path" toml:"status_path"`
	MetricsPath           string   `json:"metrics_path" yaml:"metrics_path" toml:"metrics_path"`
	ForwardTimeoutSeconds int      `json:"forward_timeout_seconds" yaml:"forward_timeout_seconds" toml:"forward_timeout_seconds"`
	MaxBodyBytes          int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	RateLimitRPS          float64  `json:"rate_limit_rps" yaml:"rate_limit_rps" toml:"rate_limit_rps"`
	RateLimitBurst        int      `json:"rate_limit_burst" yaml:"rate_limit_burst" toml:"rate_limit_burst"`
	CORSEnabled           bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins           []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// LlamaConfig controls the supervised llama-server.
type LlamaConfig struct {
	Model                 string   `json:"model" yaml:"model" toml:"model"`
	Bin                   string   `json:"bin" yaml:"bin" toml:"bin"`
	Host                  string   `json:"host" yaml:"host" toml:"host"`
	Port                  int      `json:"port" yaml:"port" toml:"port"`
	CtxSize               int      `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	GPULayers             int      `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	Parallel              int      `json:"parallel" yaml:"parallel" toml:"parallel"`
	CacheTypeK            string   `json:"cache_type_k" yaml:"cache_type_k" toml:"cache_type_k"`
	CacheTypeV            string   `json:"cache_type_v" yaml:"cache_type_v" toml:"cache_type_v"`
	Jinja                 bool     `json:"jinja" yaml:"jinja" toml:"jinja"`
	ContBatching          bool     `json:"cont_batching" yaml:"cont_batching" toml:"cont_batching"`
	FlashAttn             bool     `json:"flash_attn" yaml:"flash_attn" toml:"flash_attn"`
	ExtraArgs             []string `json:"extra_args" yaml:"extra_args" toml:"extra_args"`
	StartupTimeoutSeconds int      `json:"startup_timeout_seconds" yaml:"startup_timeout_seconds" toml:"startup_timeout_seconds"`
	StopTimeoutSeconds    int      `json:"stop_timeout_seconds" yaml:"stop_timeout_seconds" toml:"stop_timeout_seconds"`
}

// LogConfig controls the root zerolog logger.
type LogConfig struct {
	// Level: debug|info|warn|error.
	Level string `json:"level" yaml:"level" toml:"level"`
	// Format: json|console.
	Format string `json:"format" yaml:"format" toml:"format"`
}

// Default returns the built-in defaults.
func Default() Config {
	sup := supervisor.DefaultConfig()
	return Config{
		Gateway: GatewayConfig{
			Port:                  5000,
			ForwardPrefix:         httpapi.DefaultForwardPrefix,
			StatusPath:            httpapi.DefaultStatusPath,
			MetricsPath:           httpapi.DefaultMetricsPath,
			ForwardTimeoutSeconds: int(forward.DefaultTimeout / time.Second),
			MaxBodyBytes:          forward.DefaultMaxBodyBytes,
		},
		Llama: LlamaConfig{
			Bin:                   sup.Bin,
			Host:                  sup.Host,
			Port:                  sup.Port,
			CtxSize:               sup.CtxSize,
			GPULayers:             sup.GPULayers,
			Parallel:              sup.Parallel,
			CacheTypeK:            sup.CacheTypeK,
			CacheTypeV:            sup.CacheTypeV,
			Jinja:                 sup.Jinja,
			ContBatching:          sup.ContBatching,
			FlashAttn:             sup.FlashAttn,
			StartupTimeoutSeconds: int(sup.StartupTimeout / time.Second),
			StopTimeoutSeconds:    int(sup.StopTimeout / time.Second),
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks ranges. A missing model is reported by the supervisor at
// startup, not here.
func (c Config) Validate() error {
	if err := checkPort("gateway.port", c.Gateway.Port); err != nil {
		return err
	}
	if err := checkPort("llama.port", c.Llama.Port); err != nil {
		return err
	}
	if c.Gateway.Port == c.Llama.Port {
		return fmt.Errorf("gateway.port and llama.port must differ (both %d)", c.Gateway.Port)
	}
	if !strings.HasPrefix(c.Gateway.ForwardPrefix, "/") {
		return fmt.Errorf("gateway.forward_prefix must start with /: %q", c.Gateway.ForwardPrefix)
	}
	if !strings.HasPrefix(c.Gateway.StatusPath, "/") {
		return fmt.Errorf("gateway.status_path must start with /: %q", c.Gateway.StatusPath)
	}
	if c.Gateway.ForwardTimeoutSeconds < 0 {
		return fmt.Errorf("gateway.forward_timeout_seconds must be >= 0")
	}
	if c.Llama.StartupTimeoutSeconds <= 0 {
		return fmt.Errorf("llama.startup_timeout_seconds must be > 0")
	}
	if c.Llama.Parallel <= 0 {
		return fmt.Errorf("llama.parallel must be > 0")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console: %q", c.Log.Format)
	}
	return nil
}

func checkPort(field string, p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("%s out of range: %d", field, p)
	}
	return nil
}

// ListenAddr is the gateway bind address.
func (c Config) ListenAddr() string { return ":" + strconv.Itoa(c.Gateway.Port) }

// LlamaBaseURL is where the gateway reaches the child. Wildcard bind
// addresses are dialed on loopback.
func (c Config) LlamaBaseURL() string {
	host := c.Llama.Host
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Llama.Port))
}

// SupervisorConfig converts the llama section.
func (c Config) SupervisorConfig() supervisor.Config {
	l := c.Llama
	sc := supervisor.DefaultConfig()
	sc.Model = l.Model
	sc.Bin = fsutil.MustExpandHome(l.Bin)
	sc.Host = l.Host
	sc.Port = l.Port
	sc.CtxSize = l.CtxSize
	sc.GPULayers = l.GPULayers
	sc.Parallel = l.Parallel
	sc.CacheTypeK = l.CacheTypeK
	sc.CacheTypeV = l.CacheTypeV
	sc.Jinja = l.Jinja
	sc.ContBatching = l.ContBatching
	sc.FlashAttn = l.FlashAttn
	sc.ExtraArgs = append([]string(nil), l.ExtraArgs...)
	sc.StartupTimeout = time.Duration(l.StartupTimeoutSeconds) * time.Second
	if l.StopTimeoutSeconds > 0 {
		sc.StopTimeout = time.Duration(l.StopTimeoutSeconds) * time.Second
	}
	return sc
}

// ForwardOptions converts the gateway section for the Forwarder.
func (c Config) ForwardOptions() forward.Options {
	return forward.Options{
		BaseURL:      c.LlamaBaseURL(),
		Timeout:      time.Duration(c.Gateway.ForwardTimeoutSeconds) * time.Second,
		MaxBodyBytes: c.Gateway.MaxBodyBytes,
	}
}

// HTTPOptions converts the gateway section for the router.
func (c Config) HTTPOptions() httpapi.Options {
	return httpapi.Options{
		ForwardPrefix: c.Gateway.ForwardPrefix,
		StatusPath:    c.Gateway.StatusPath,
		MetricsPath:   c.Gateway.MetricsPath,
		LogLevel:      c.Log.Level,
		CORS: httpapi.CORSOptions{
			Enabled:        c.Gateway.CORSEnabled,
			AllowedOrigins: append([]string(nil), c.Gateway.CORSOrigins...),
		},
		RateLimit: httpapi.RateLimitOptions{
			RPS:   c.Gateway.RateLimitRPS,
			Burst: c.Gateway.RateLimitBurst,
		},
	}
}
