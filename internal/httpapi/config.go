package httpapi

import (
	"context"
	"strings"
)

// Options configures the router. Zero values select defaults.
type Options struct {
	// ForwardPrefix selects requests relayed to the child (literal prefix).
	ForwardPrefix string
	// StatusPath serves the health snapshot.
	StatusPath string
	// MetricsPath serves Prometheus metrics; empty disables the endpoint.
	MetricsPath string
	// LogLevel is the default per-request log level (off|error|info|debug).
	LogLevel string
	// CORS is opt-in.
	CORS CORSOptions
	// RateLimit applies to forwarded requests only.
	RateLimit RateLimitOptions
	// BaseContext is canceled on shutdown; in-flight forwards observe it.
	BaseContext context.Context
}

// CORSOptions configures github.com/go-chi/cors.
type CORSOptions struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// RateLimitOptions configures a token bucket; RPS <= 0 disables limiting.
type RateLimitOptions struct {
	RPS   float64
	Burst int
}

const (
	DefaultForwardPrefix = "/v1"
	DefaultStatusPath    = "/ping"
	DefaultMetricsPath   = "/metrics"
)

// DefaultOptions returns the router defaults.
func DefaultOptions() Options {
	return Options{
		ForwardPrefix: DefaultForwardPrefix,
		StatusPath:    DefaultStatusPath,
		MetricsPath:   DefaultMetricsPath,
		LogLevel:      "info",
	}
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.ForwardPrefix) == "" {
		o.ForwardPrefix = DefaultForwardPrefix
	}
	if strings.TrimSpace(o.StatusPath) == "" {
		o.StatusPath = DefaultStatusPath
	}
	if o.CORS.Enabled {
		if len(o.CORS.AllowedOrigins) == 0 {
			o.CORS.AllowedOrigins = []string{"*"}
		}
		if len(o.CORS.AllowedMethods) == 0 {
			o.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
		}
		if len(o.CORS.AllowedHeaders) == 0 {
			o.CORS.AllowedHeaders = []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-Log-Level"}
		}
	}
	if o.RateLimit.RPS > 0 && o.RateLimit.Burst <= 0 {
		o.RateLimit.Burst = int(o.RateLimit.RPS)
		if o.RateLimit.Burst < 1 {
			o.RateLimit.Burst = 1
		}
	}
	return o
}
