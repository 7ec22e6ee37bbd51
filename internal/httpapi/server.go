// Package httpapi exposes the gateway over HTTP: the prefix proxy, the
// status endpoint and the operational extras (metrics, swagger).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"llamagate/pkg/types"
)

// Forwarder relays a request to llama-server. Any response from the child is
// a success; errors implement HTTPError where a status is known.
type Forwarder interface {
	Forward(r *http.Request) (*http.Response, error)
}

// HealthSource builds the status payload. It must not fail.
type HealthSource interface {
	Snapshot(ctx context.Context) types.HealthSnapshot
}

// Recorder receives forward outcomes.
type Recorder interface {
	RecordSuccess()
	RecordError()
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Forwarder Forwarder
	Health    HealthSource
	Counters  Recorder
	Log       zerolog.Logger
}

// NewMux builds the router.
func NewMux(d Deps, opts Options) http.Handler {
	opts = opts.withDefaults()
	log := d.Log.With().Str("component", "httpapi").Logger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware(opts.ForwardPrefix))
	if opts.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORS.AllowedOrigins,
			AllowedMethods:   opts.CORS.AllowedMethods,
			AllowedHeaders:   opts.CORS.AllowedHeaders,
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	p := &proxy{
		prefix:   opts.ForwardPrefix,
		fwd:      d.Forwarder,
		counters: d.Counters,
		defLevel: parseLevel(opts.LogLevel),
		log:      log,
		opts:     opts,
	}
	if opts.RateLimit.RPS > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit.RPS), opts.RateLimit.Burst)
	}
	r.Use(p.middleware)

	// Compression only for the local JSON endpoint; proxied bytes are relayed as-is.
	r.With(middleware.Compress(5)).Get(opts.StatusPath, func(w http.ResponseWriter, r *http.Request) {
		snap := d.Health.Snapshot(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	if opts.MetricsPath != "" {
		r.Get(opts.MetricsPath, promhttp.Handler().ServeHTTP)
	}

	MountSwagger(r)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}
