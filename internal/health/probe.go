// Package health probes the supervised llama-server and aggregates process,
// host and request statistics into a types.HealthSnapshot.
package health

import (
	"context"
	"net/http"
	"time"
)

// ProbeResult is the outcome of a single liveness check.
type ProbeResult int

const (
	// Unavailable means the child could not be reached at all.
	Unavailable ProbeResult = iota
	// Unhealthy means the child answered with a non-200 status.
	Unhealthy
	// Healthy means the child answered 200.
	Healthy
)

func (r ProbeResult) String() string {
	switch r {
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unavailable"
	}
}

// DefaultProbeTimeout bounds each liveness check.
const DefaultProbeTimeout = 2 * time.Second

// LivenessProbe issues GET <base>/health against the child.
type LivenessProbe struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewLivenessProbe returns a probe for the given base URL (e.g.
// http://127.0.0.1:1234). A non-positive timeout selects DefaultProbeTimeout.
func NewLivenessProbe(baseURL string, timeout time.Duration) *LivenessProbe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &LivenessProbe{
		url:     baseURL + "/health",
		timeout: timeout,
		client:  &http.Client{},
	}
}

// URL returns the probed endpoint.
func (p *LivenessProbe) URL() string { return p.url }

// Probe performs one check. It never returns an error and never blocks past
// the probe timeout.
func (p *LivenessProbe) Probe(ctx context.Context) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Unavailable
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Unavailable
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return Healthy
	}
	return Unhealthy
}

// IsAlive reports whether Probe returns Healthy.
func (p *LivenessProbe) IsAlive(ctx context.Context) bool {
	return p.Probe(ctx) == Healthy
}
