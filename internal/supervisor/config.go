package supervisor

import "time"

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultBin            = "/app/llama-server"
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 1234
	DefaultGPULayers      = 9999
	DefaultParallel       = 4
	DefaultCacheType      = "f16"
	DefaultPollInterval   = 1 * time.Second
	DefaultStartupTimeout = 300 * time.Second
	DefaultStopTimeout    = 10 * time.Second
	defaultTailBytes      = 8 << 10
)

// Config holds the launch parameters for llama-server.
type Config struct {
	// Model is the Hugging Face repo passed as --hf-repo. Required.
	Model string
	Bin   string
	Host  string
	Port  int
	// CtxSize of 0 keeps the model's own context length.
	CtxSize      int
	GPULayers    int
	Parallel     int
	CacheTypeK   string
	CacheTypeV   string
	Jinja        bool
	ContBatching bool
	FlashAttn    bool
	ExtraArgs    []string

	PollInterval    time.Duration
	StartupTimeout  time.Duration
	StopTimeout     time.Duration
	OutputTailBytes int
}

// DefaultConfig returns a Config with every documented default set.
// Model is left empty; callers must supply it.
func DefaultConfig() Config {
	return Config{
		Bin:            DefaultBin,
		Host:           DefaultHost,
		Port:           DefaultPort,
		GPULayers:      DefaultGPULayers,
		Parallel:       DefaultParallel,
		CacheTypeK:     DefaultCacheType,
		CacheTypeV:     DefaultCacheType,
		Jinja:          true,
		ContBatching:   true,
		FlashAttn:      true,
		PollInterval:   DefaultPollInterval,
		StartupTimeout: DefaultStartupTimeout,
		StopTimeout:    DefaultStopTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.Bin == "" {
		c.Bin = DefaultBin
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.Parallel <= 0 {
		c.Parallel = DefaultParallel
	}
	if c.CacheTypeK == "" {
		c.CacheTypeK = DefaultCacheType
	}
	if c.CacheTypeV == "" {
		c.CacheTypeV = DefaultCacheType
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.OutputTailBytes <= 0 {
		c.OutputTailBytes = defaultTailBytes
	}
	return c
}
