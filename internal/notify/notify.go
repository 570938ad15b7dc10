package notify

import (
	"context"
	"log/slog"
	"time"
)

// Sender delivers short student-facing messages. The SMS gateway lives
// behind this boundary; the service only sees Send with a bounded
// timeout.
type Sender interface {
	Send(ctx context.Context, studentID int64, message string) error
}

// LogSender writes notifications to the log instead of a gateway.
// Used in development and as the default wiring.
type LogSender struct {
	logger  *slog.Logger
	timeout time.Duration
}

func NewLogSender(logger *slog.Logger, timeout time.Duration) *LogSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LogSender{logger: logger, timeout: timeout}
}

func (s *LogSender) Send(ctx context.Context, studentID int64, message string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.logger.InfoContext(ctx, "notification",
		"student_id", studentID,
		"message", message,
	)

	return nil
}
