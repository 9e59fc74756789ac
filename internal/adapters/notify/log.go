// Package notify implements the notification channels the event dispatcher
// delivers to: a structured-log channel, a signed outbound webhook and a
// Redis pub/sub publisher.
package notify

import (
	"context"
	"log/slog"

	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.Channel = (*LogChannel)(nil)

// LogChannel writes each event as an INFO record. It never fails.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel returns a channel that logs to logger.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With(slog.String("channel", "log"))}
}

// Name implements [ports.Channel].
func (c *LogChannel) Name() string {
	return "log"
}

// Deliver implements [ports.Channel].
func (c *LogChannel) Deliver(ctx context.Context, ev event.Event) error {
	attrs := []any{
		slog.String("event_id", ev.ID),
		slog.String("event_type", string(ev.Type)),
		slog.String("user_id", ev.UserID),
		slog.String("ordering_key", ev.OrderingKey),
		slog.Uint64("sequence", ev.Sequence),
	}
	if len(ev.Data) > 0 {
		data := make([]any, 0, len(ev.Data))
		for k, v := range ev.Data {
			data = append(data, slog.String(k, v))
		}
		attrs = append(attrs, slog.Group("data", data...))
	}

	c.logger.InfoContext(ctx, "event", attrs...)
	return nil
}
