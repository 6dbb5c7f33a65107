package notify

import (
	"context"
	"log/slog"
)

// LoggingNotifier logs every event at info level. It is the default
// Notifier wired by the CLI when no external delivery channel is
// configured.
type LoggingNotifier struct {
	logger *slog.Logger
}

// NewLoggingNotifier returns a Notifier that writes events through logger.
func NewLoggingNotifier(logger *slog.Logger) *LoggingNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingNotifier{logger: logger}
}

func (n *LoggingNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.Info("job event",
		"event", string(event.Kind),
		"job_id", event.JobID,
		"job_kind", event.JobKind,
		"message", event.Message,
	)
	return nil
}
