package gateway

import (
	"github.com/rs/zerolog"

	"llamagate/internal/supervisor"
)

// logPublisher writes supervisor lifecycle events to the structured log.
type logPublisher struct{ log zerolog.Logger }

func (p logPublisher) Publish(e supervisor.Event) {
	ev := p.log.Info()
	switch e.Name {
	case "exit_early", "timeout", "exited", "spawn_error":
		ev = p.log.Warn()
	}
	ev.Str("event", e.Name).Fields(e.Fields).Msg("supervisor event")
}
