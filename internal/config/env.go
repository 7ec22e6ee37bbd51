package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables. Unset or blank variables keep the
// current value, except METRICS_PATH where an explicit empty value disables
// the endpoint. Malformed values are reported together.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.envString("MODEL_NAME", &c.Llama.Model)
	e.envString("LLAMA_SERVER_BIN", &c.Llama.Bin)
	e.envString("LLAMA_HOST", &c.Llama.Host)
	e.envInt("LLAMA_PORT", &c.Llama.Port)
	e.envInt("MAX_CONTEXT", &c.Llama.CtxSize)
	e.envInt("GPU_LAYERS", &c.Llama.GPULayers)
	e.envInt("PARALLEL_REQUESTS", &c.Llama.Parallel)
	e.envString("CACHE_TYPE_K", &c.Llama.CacheTypeK)
	e.envString("CACHE_TYPE_V", &c.Llama.CacheTypeV)
	e.envCSV("LLAMA_EXTRA_ARGS", &c.Llama.ExtraArgs)
	e.envSeconds("STARTUP_TIMEOUT", &c.Llama.StartupTimeoutSeconds)

	e.envInt("PORT", &c.Gateway.Port)
	e.envSeconds("FORWARD_TIMEOUT", &c.Gateway.ForwardTimeoutSeconds)
	e.envString("FORWARD_PREFIX", &c.Gateway.ForwardPrefix)
	e.envString("STATUS_PATH", &c.Gateway.StatusPath)
	if v, ok := lookup("METRICS_PATH"); ok {
		c.Gateway.MetricsPath = strings.TrimSpace(v)
	}
	e.envInt64("MAX_BODY_BYTES", &c.Gateway.MaxBodyBytes)
	e.envFloat("RATE_LIMIT_RPS", &c.Gateway.RateLimitRPS)
	e.envInt("RATE_LIMIT_BURST", &c.Gateway.RateLimitBurst)
	e.envBool("CORS_ENABLED", &c.Gateway.CORSEnabled)
	e.envCSV("CORS_ORIGINS", &c.Gateway.CORSOrigins)

	e.envString("LOG_LEVEL", &c.Log.Level)
	e.envString("LOG_FORMAT", &c.Log.Format)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup LookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (e *envReader) envString(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) envInt(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) envInt64(key string, dst *int64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) envFloat(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) envBool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		*dst = true
	case "0", "false", "no", "n", "off":
		*dst = false
	default:
		e.fail(key, v, errors.New("not a boolean"))
	}
}

// envSeconds accepts a plain integer number of seconds or a Go duration.
func (e *envReader) envSeconds(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = int(d / time.Second)
}

func (e *envReader) envCSV(key string, dst *[]string) {
	if v, ok := e.get(key); ok {
		*dst = SplitCSV(v)
	}
}

// SplitCSV splits a comma-separated list, trimming blanks and dropping
// empty items.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
