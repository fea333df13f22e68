// ABOUTME: Operator notifications for agent lifecycle events.
// ABOUTME: Sinks are fire-and-forget; delivery failures are logged and swallowed.

package notify

import (
	"context"
	"log/slog"
)

// Sink delivers operator-facing notices. Notify never blocks on delivery
// and never fails the caller.
type Sink interface {
	Notify(ctx context.Context, text string)
}

// LogSink writes notices to the log. Used when no operator room is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "notify")}
}

func (s *LogSink) Notify(ctx context.Context, text string) {
	s.logger.Info("notification", "text", text)
}
