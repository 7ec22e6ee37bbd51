package supervisor

import (
	"errors"
	"fmt"
)

// ConfigError signals a missing or invalid launch parameter. It is raised
// before any process is spawned.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string { return "config: " + e.Field + ": " + e.Msg }

// IsConfigError reports whether err is (or wraps) a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Startup failure reasons.
const (
	ReasonExited      = "process exited"
	ReasonTimeout     = "timeout"
	ReasonSpawnFailed = "spawn failed"
)

// StartupError reports that the child never became ready.
type StartupError struct {
	Reason string
	// Output is the captured tail of the child's stdout/stderr.
	Output string
	Err    error
}

func (e *StartupError) Error() string {
	msg := "llama-server startup failed: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += fmt.Sprintf("; output tail: %s", e.Output)
	}
	return msg
}

func (e *StartupError) Unwrap() error { return e.Err }

// IsStartupError reports whether err is (or wraps) a *StartupError.
func IsStartupError(err error) bool {
	var se *StartupError
	return errors.As(err, &se)
}

// IsStartupTimeout reports whether err is a StartupError caused by the timeout.
func IsStartupTimeout(err error) bool {
	var se *StartupError
	return errors.As(err, &se) && se.Reason == ReasonTimeout
}

// IsCrashed reports whether err is a StartupError caused by the child exiting.
func IsCrashed(err error) bool {
	var se *StartupError
	return errors.As(err, &se) && se.Reason == ReasonExited
}
