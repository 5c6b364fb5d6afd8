package audit

import (
	"context"
	"log/slog"
)

// LogSink writes facts to a structured logger.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Record(ctx context.Context, fact Fact) error {
	s.log.InfoContext(ctx, "Public fact recorded",
		"id", fact.ID.String(),
		"kind", fact.Kind,
		"winner", fact.Winner,
		"recordedAt", fact.RecordedAt,
	)
	return nil
}
