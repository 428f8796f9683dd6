package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sis-student-api/internal/domain"
)

// AuditLogger returns a catch-all handler writing one structured audit line
// per published event.
func AuditLogger(logger *zap.Logger) Handler {
	return func(ctx context.Context, event domain.Event) error {
		fields := []zap.Field{
			zap.String("event_id", event.EventID()),
			zap.String("event_type", event.EventType()),
			zap.String("aggregate_id", event.AggregateID()),
			zap.Time("occurred_at", event.OccurredAt()),
		}
		switch e := event.(type) {
		case domain.StudentStatusChanged:
			fields = append(fields,
				zap.String("old_status", e.OldStatus.String()),
				zap.String("new_status", e.NewStatus.String()),
				zap.String("reason", e.Reason),
			)
		case domain.ParentAdded:
			fields = append(fields,
				zap.String("parent_name", e.Parent.Name),
				zap.Bool("is_primary", e.Parent.IsPrimary),
			)
		}
		logger.Info("domain_event", fields...)
		return nil
	}
}
