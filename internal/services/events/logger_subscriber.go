package events

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/interfaces"
	"github.com/ternarybob/pricewatch/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs run lifecycle events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Info().
			Str("event_type", string(event.Type))

		if status, ok := event.Payload.(models.RunStatus); ok {
			logEvent = logEvent.
				Str("run_id", status.RunID).
				Str("state", string(status.State))
			if status.ReportPath != "" {
				logEvent = logEvent.Str("report_path", status.ReportPath)
			}
			if status.Error != "" {
				logEvent = logEvent.Str("error", status.Error)
			}
		}

		logEvent.Msg("Run state changed")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	return eventService.Subscribe(interfaces.EventRunStateChanged, NewLoggerSubscriber(logger))
}
