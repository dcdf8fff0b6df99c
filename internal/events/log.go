package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes each event as a structured log line.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("session_id", ev.SessionID).
		RawJSON("payload", ev.Payload).
		Msg("domain_event")
	return nil
}
