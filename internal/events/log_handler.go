package events

import (
	"context"

	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// LogHandler records outbox entries in the log. Used when no queue is configured.
type LogHandler struct {
	logger *logging.Logger
}

func NewLogHandler(logger *logging.Logger) *LogHandler {
	return &LogHandler{logger: logging.OrDefault(logger)}
}

// Handle implements DeliveryHandler.
func (h *LogHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	h.logger.Info("lead event", "event_id", entry.ID, "type", entry.Type, "payload", string(entry.Payload))
	return nil
}
