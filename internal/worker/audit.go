// Package worker consumes attendance events from the queue and stores them in
// the audit trail.
package worker

import (
	"context"

	"clubhub/internal/attendance"
	"clubhub/internal/logging"
	"clubhub/internal/metrics"
	"clubhub/internal/queue"
)

// Recorder stores one audit entry. *attendance.Service implements it.
type Recorder interface {
	RecordAudit(ctx context.Context, e attendance.Event) error
}

// RunAudit processes messages until ctx ends or the queue closes. Malformed
// messages and failed writes are logged and dropped.
func RunAudit(ctx context.Context, q queue.Queue, rec Recorder) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	logging.Info().Msg("audit worker started")
	for msg := range messages {
		handle(ctx, msg, rec)
	}
	logging.Info().Msg("audit worker stopped")
	return nil
}

func handle(ctx context.Context, msg queue.Message, rec Recorder) {
	e, err := attendance.DecodeEvent(msg)
	if err != nil {
		metrics.AuditEntries.WithLabelValues("dropped").Inc()
		logging.Warn().Err(err).Str("type", msg.Type).Msg("dropping queue message")
		return
	}
	if err := rec.RecordAudit(ctx, e); err != nil {
		metrics.AuditEntries.WithLabelValues("failed").Inc()
		logging.Error().Err(err).
			Str("session", e.SessionID).
			Str("user", e.UserID).
			Msg("audit write failed")
		return
	}
	metrics.AuditEntries.WithLabelValues("stored").Inc()
	logging.Debug().Str("session", e.SessionID).Str("user", e.UserID).Str("status", string(e.Status)).Msg("audit entry stored")
}
