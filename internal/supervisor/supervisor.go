package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Prober reports whether the child answers its health endpoint.
// Implementations must be bounded in time and must not return errors.
type Prober interface {
	IsAlive(ctx context.Context) bool
}

// Supervisor spawns a single llama-server and tracks its lifecycle.
type Supervisor struct {
	cfg       Config
	probe     Prober
	log       zerolog.Logger
	publisher EventPublisher

	mu        sync.RWMutex
	state     State
	err       string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	exited    chan struct{}
	exitErr   error
	tail      *tailBuffer
	stopping  bool
}

// New constructs a Supervisor. Unset Config fields take package defaults.
func New(cfg Config, probe Prober, log zerolog.Logger) *Supervisor {
	s := &Supervisor{
		cfg:       cfg.withDefaults(),
		probe:     probe,
		log:       log.With().Str("component", "supervisor").Logger(),
		publisher: noopPublisher{},
		state:     StateNotStarted,
	}
	observeState(s.state)
	return s
}

// SetPublisher installs an EventPublisher for lifecycle events.
func (s *Supervisor) SetPublisher(p EventPublisher) {
	if p == nil {
		s.publisher = noopPublisher{}
		return
	}
	s.publisher = p
}

// StartAsync runs Start in its own goroutine. The returned channel yields
// exactly one value: nil once the child is ready, or the startup error.
func (s *Supervisor) StartAsync(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- s.Start(ctx) }()
	return ch
}

// Start spawns llama-server and polls the prober until the child is ready,
// the child exits, the startup timeout elapses, or ctx is canceled.
// On failure the caller is responsible for calling Stop.
func (s *Supervisor) Start(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.Model) == "" {
		return &ConfigError{Field: "model", Msg: "model identifier is required"}
	}

	s.mu.Lock()
	if s.state != StateNotStarted {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("supervisor already started (state=%s)", st)
	}
	s.setStateLocked(StateStarting)
	s.mu.Unlock()

	cfg := s.cfg
	args := BuildArgs(cfg)
	tail := newTailBuffer(cfg.OutputTailBytes)
	stdout := &lineLogger{log: s.log, level: zerolog.InfoLevel, stream: "stdout", tail: tail}
	stderr := &lineLogger{log: s.log, level: zerolog.WarnLevel, stream: "stderr", tail: tail}

	cmd := exec.Command(cfg.Bin, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Grandchildren holding the pipes open must not wedge Wait.
	cmd.WaitDelay = 2 * time.Second

	// A foreign listener on the port would answer the readiness probe
	// in place of the child.
	if err := checkPortFree(cfg.Host, cfg.Port); err != nil {
		return s.spawnFailed(err)
	}

	s.log.Info().Str("bin", cfg.Bin).Strs("args", args).Msg("starting llama-server")
	if err := cmd.Start(); err != nil {
		return s.spawnFailed(err)
	}

	startTs := time.Now()
	exited := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.startedAt = startTs
	s.exited = exited
	s.tail = tail
	s.mu.Unlock()
	s.log.Info().Int("pid", cmd.Process.Pid).Msg("llama-server spawned")
	s.publisher.Publish(Event{Name: "spawn_start", Fields: map[string]any{"pid": cmd.Process.Pid}})

	go s.monitor(cmd, stdout, stderr, exited)

	deadline := time.NewTimer(cfg.StartupTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-exited:
			s.mu.RLock()
			exitErr := s.exitErr
			s.mu.RUnlock()
			if exitErr == nil {
				exitErr = errors.New("exited cleanly before ready")
			}
			out := tail.String()
			s.log.Error().Int("pid", cmd.Process.Pid).Err(exitErr).Msg("llama-server exited during startup")
			s.publisher.Publish(Event{Name: "exit_early", Fields: map[string]any{"pid": cmd.Process.Pid, "error": exitErr.Error()}})
			return &StartupError{Reason: ReasonExited, Output: out, Err: exitErr}
		default:
		}

		if s.probe.IsAlive(ctx) {
			s.mu.Lock()
			if s.state == StateStarting {
				s.setStateLocked(StateReady)
				s.err = ""
			}
			st := s.state
			s.mu.Unlock()
			if st == StateReady {
				dur := time.Since(startTs)
				startupDuration.Set(dur.Seconds())
				s.log.Info().Int("pid", cmd.Process.Pid).Dur("dur", dur).Msg("llama-server ready")
				s.publisher.Publish(Event{Name: "ready", Fields: map[string]any{"pid": cmd.Process.Pid, "dur_ms": dur.Milliseconds()}})
				return nil
			}
		}

		select {
		case <-exited:
			// Reported at the top of the loop, before any further probe.
		case <-deadline.C:
			s.mu.Lock()
			s.err = "startup timeout"
			s.mu.Unlock()
			s.log.Error().Int("pid", cmd.Process.Pid).Dur("timeout", cfg.StartupTimeout).Msg("llama-server not ready in time")
			s.publisher.Publish(Event{Name: "timeout", Fields: map[string]any{"pid": cmd.Process.Pid}})
			return &StartupError{
				Reason: ReasonTimeout,
				Output: tail.String(),
				Err:    fmt.Errorf("not ready after %s", cfg.StartupTimeout),
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (s *Supervisor) spawnFailed(err error) error {
	s.mu.Lock()
	s.setStateLocked(StateCrashed)
	s.err = err.Error()
	s.mu.Unlock()
	s.log.Error().Err(err).Msg("llama-server spawn failed")
	s.publisher.Publish(Event{Name: "spawn_error", Fields: map[string]any{"error": err.Error()}})
	return &StartupError{Reason: ReasonSpawnFailed, Err: err}
}

// checkPortFree binds host:port once and releases it.
func checkPortFree(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("llama port %s unavailable: %w", addr, err)
	}
	return l.Close()
}

// monitor waits for the child to exit and records the outcome.
func (s *Supervisor) monitor(cmd *exec.Cmd, stdout, stderr *lineLogger, exited chan struct{}) {
	err := cmd.Wait()
	stdout.flush()
	stderr.flush()

	s.mu.Lock()
	s.exitErr = err
	expected := s.stopping
	if !expected {
		s.setStateLocked(StateCrashed)
		if err != nil {
			s.err = err.Error()
		} else {
			s.err = "exited"
		}
	}
	s.mu.Unlock()
	close(exited)

	if !expected {
		s.log.Warn().Int("pid", cmd.Process.Pid).Err(err).Msg("llama-server exited")
		fields := map[string]any{"pid": cmd.Process.Pid}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.publisher.Publish(Event{Name: "exited", Fields: fields})
	}
}

// Stop terminates the child: SIGTERM first, SIGKILL after StopTimeout.
// It is safe to call more than once and on a supervisor that never spawned.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	if cmd == nil || cmd.Process == nil {
		s.mu.Unlock()
		return nil
	}
	if s.stopping {
		s.mu.Unlock()
		<-exited
		return nil
	}
	s.stopping = true
	s.mu.Unlock()

	select {
	case <-exited:
	default:
		s.log.Info().Int("pid", cmd.Process.Pid).Msg("stopping llama-server")
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.log.Debug().Err(err).Msg("sigterm failed")
		}
		select {
		case <-exited:
		case <-time.After(s.cfg.StopTimeout):
			s.log.Warn().Int("pid", cmd.Process.Pid).Dur("grace", s.cfg.StopTimeout).Msg("llama-server did not stop in time, killing")
			_ = cmd.Process.Kill()
			<-exited
		}
	}

	s.mu.Lock()
	s.setStateLocked(StateStopped)
	s.mu.Unlock()
	s.publisher.Publish(Event{Name: "stopped", Fields: map[string]any{"pid": cmd.Process.Pid}})
	return nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether the child reached StateReady and is still running.
func (s *Supervisor) Ready() bool { return s.State() == StateReady }

// PID returns the child's process id, or 0 if it was never spawned.
func (s *Supervisor) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pid
}

// StartedAt returns the spawn time, zero if never spawned.
func (s *Supervisor) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Output returns the captured tail of the child's stdout/stderr.
func (s *Supervisor) Output() string {
	s.mu.RLock()
	tail := s.tail
	s.mu.RUnlock()
	if tail == nil {
		return ""
	}
	return tail.String()
}

// Snapshot returns a read-only view of the supervisor state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{State: s.state, PID: s.pid, Err: s.err}
}

func (s *Supervisor) setStateLocked(st State) {
	s.state = st
	observeState(st)
}
