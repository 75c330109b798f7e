package channels

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nodewatch/sentinel/internal/domain"
)

// LogSender writes each alert as a structured log line, the Go analogue of
// LogChannel: the simplest Sender, always available, used as the fallback
// channel every deployment wires regardless of what else is configured.
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "log_channel").Logger()}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, a domain.Alert) error {
	event := s.log.Info()
	switch a.Severity {
	case domain.SeverityWarning:
		event = s.log.Warn()
	case domain.SeverityError, domain.SeverityCritical:
		event = s.log.Error()
	}
	event.
		Str("alert_code", a.AlertCode.Name).
		Str("metric", a.Metric.Name).
		Str("severity", string(a.Severity)).
		Str("parent_id", a.ParentID).
		Str("origin_id", a.OriginID).
		Float64("timestamp", a.Timestamp).
		Msg(a.Message)
	return nil
}
