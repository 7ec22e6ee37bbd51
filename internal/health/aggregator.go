package health

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"llamagate/internal/stats"
	"llamagate/pkg/types"
)

// Prober is the liveness check used by the aggregator.
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}

// StateSource exposes the supervisor view the aggregator needs.
type StateSource interface {
	Ready() bool
	PID() int
}

// CounterSource exposes request counters.
type CounterSource interface {
	Snapshot() stats.Snapshot
}

// Sources groups the aggregator inputs. GPU may be nil to skip the query.
type Sources struct {
	Probe    Prober
	Process  StateSource
	System   SystemSampler
	GPU      GPUQuerier
	Counters CounterSource
}

// Aggregator builds HealthSnapshots. It reads its sources and never mutates them.
type Aggregator struct {
	src     Sources
	started time.Time
	log     zerolog.Logger
	now     func() time.Time
}

// NewAggregator returns an Aggregator; started is the gateway start time used
// for uptime.
func NewAggregator(src Sources, started time.Time, log zerolog.Logger) *Aggregator {
	if src.System == nil {
		src.System = HostSampler{}
	}
	return &Aggregator{
		src:     src,
		started: started,
		log:     log.With().Str("component", "health").Logger(),
		now:     time.Now,
	}
}

// Snapshot collects a point-in-time HealthSnapshot. It never fails: a
// collector error yields zero values (or a null gpu) and a log line.
// Collectors run concurrently so the cost is the slowest one, not the sum.
func (a *Aggregator) Snapshot(ctx context.Context) types.HealthSnapshot {
	var (
		probe  = Unavailable
		cpuPct float64
		memory types.MemoryStats
		gpu    *types.GPUStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if a.src.Probe != nil {
			probe = a.src.Probe.Probe(gctx)
		}
		return nil
	})
	g.Go(func() error {
		v, err := a.src.System.CPUPercent(gctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("cpu sample failed")
			return nil
		}
		cpuPct = v
		return nil
	})
	g.Go(func() error {
		v, err := a.src.System.Memory(gctx)
		if err != nil {
			a.log.Warn().Err(err).Msg("memory sample failed")
			return nil
		}
		memory = v
		return nil
	})
	if a.src.GPU != nil {
		g.Go(func() error {
			v, err := a.src.GPU.QueryGPU(gctx)
			if err != nil {
				a.log.Debug().Err(err).Msg("gpu query failed")
				return nil
			}
			gpu = v
			return nil
		})
	}
	_ = g.Wait()

	ready := a.src.Process != nil && a.src.Process.Ready()
	var pid *int
	if a.src.Process != nil {
		if p := a.src.Process.PID(); p > 0 {
			pid = &p
		}
	}

	var st types.Statistics
	if a.src.Counters != nil {
		cs := a.src.Counters.Snapshot()
		st = types.Statistics{
			RequestsProcessed: cs.Processed,
			Errors:            cs.Errors,
			SuccessRate:       cs.SuccessRate(),
		}
		if !cs.LastRequest.IsZero() {
			lr := cs.LastRequest
			st.LastRequest = &lr
		}
	} else {
		st.SuccessRate = stats.SuccessRate(0, 0)
	}

	status := types.StatusUnhealthy
	if probe == Healthy && ready {
		status = types.StatusHealthy
	}

	now := a.now()
	return types.HealthSnapshot{
		Status:        status,
		Timestamp:     now,
		UptimeSeconds: round2(now.Sub(a.started).Seconds()),
		Server: types.ServerStatus{
			LlamaCppReady: probe == Healthy,
			ModelLoaded:   ready,
			PID:           pid,
		},
		System: types.SystemStatus{
			CPUUsagePercent: cpuPct,
			Memory:          memory,
		},
		GPU:        gpu,
		Statistics: st,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
