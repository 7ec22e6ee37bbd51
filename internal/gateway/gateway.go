// Package gateway wires the supervisor, health aggregator, forwarder and
// HTTP layer into one process lifecycle.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"llamagate/internal/config"
	"llamagate/internal/forward"
	"llamagate/internal/health"
	"llamagate/internal/httpapi"
	"llamagate/internal/stats"
	"llamagate/internal/supervisor"
)

// ShutdownTimeout bounds graceful HTTP shutdown before in-flight forwards
// are aborted.
const ShutdownTimeout = 5 * time.Second

// Gateway owns the supervised child and the public HTTP server.
type Gateway struct {
	cfg      config.Config
	log      zerolog.Logger
	started  time.Time
	sup      *supervisor.Supervisor
	probe    *health.LivenessProbe
	counters *stats.Counters
	agg      *health.Aggregator
	handler  http.Handler

	base       context.Context
	cancelBase context.CancelFunc
}

// New builds a Gateway from cfg. Nothing is started until Run.
func New(cfg config.Config, log zerolog.Logger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	started := time.Now()
	probe := health.NewLivenessProbe(cfg.LlamaBaseURL(), health.DefaultProbeTimeout)
	sup := supervisor.New(cfg.SupervisorConfig(), probe, log)
	sup.SetPublisher(logPublisher{log: log.With().Str("component", "supervisor").Logger()})

	counters := stats.NewCounters()
	agg := health.NewAggregator(health.Sources{
		Probe:    probe,
		Process:  sup,
		System:   health.HostSampler{},
		GPU:      health.NewNvidiaSMI(),
		Counters: counters,
	}, started, log)
	fwd := forward.New(cfg.ForwardOptions(), log)

	base, cancel := context.WithCancel(context.Background())
	opts := cfg.HTTPOptions()
	opts.BaseContext = base
	handler := httpapi.NewMux(httpapi.Deps{
		Forwarder: fwd,
		Health:    agg,
		Counters:  counters,
		Log:       log,
	}, opts)

	return &Gateway{
		cfg:        cfg,
		log:        log.With().Str("component", "gateway").Logger(),
		started:    started,
		sup:        sup,
		probe:      probe,
		counters:   counters,
		agg:        agg,
		handler:    handler,
		base:       base,
		cancelBase: cancel,
	}, nil
}

// Handler returns the HTTP handler; usable before Run for tests.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Supervisor exposes the child supervisor.
func (g *Gateway) Supervisor() *supervisor.Supervisor { return g.sup }

// Aggregator exposes the health aggregator.
func (g *Gateway) Aggregator() *health.Aggregator { return g.agg }

// Run starts llama-server, waits until it is ready, then serves HTTP until
// ctx is canceled. A startup failure stops the child and is returned; the
// HTTP listener is never opened in that case.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.cancelBase()

	g.log.Info().Str("model", g.cfg.Llama.Model).Str("llama", g.cfg.LlamaBaseURL()).Msg("starting llama-server")
	if err := <-g.sup.StartAsync(ctx); err != nil {
		if stopErr := g.sup.Stop(); stopErr != nil {
			g.log.Warn().Err(stopErr).Msg("stop after failed startup")
		}
		if out := g.sup.Output(); out != "" {
			g.log.Error().Str("output", out).Msg("llama-server output")
		}
		return fmt.Errorf("llama-server startup: %w", err)
	}

	snap := g.agg.Snapshot(ctx)
	g.log.Info().Interface("health", snap).Msg("initial health check")

	ln, err := net.Listen("tcp", g.cfg.ListenAddr())
	if err != nil {
		_ = g.sup.Stop()
		return fmt.Errorf("listen %s: %w", g.cfg.ListenAddr(), err)
	}
	return g.serve(ctx, ln)
}

func (g *Gateway) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.log.Info().Str("addr", ln.Addr().String()).Msg("llamagate listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		g.log.Info().Msg("shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shCtx)
		g.cancelBase()
		if err != nil {
			g.log.Warn().Err(err).Msg("graceful shutdown incomplete")
			_ = srv.Close()
		}
		return nil
	})
	err := eg.Wait()

	if stopErr := g.sup.Stop(); stopErr != nil {
		g.log.Warn().Err(stopErr).Msg("stop llama-server")
	}
	g.log.Info().Msg("llamagate stopped")
	return err
}
