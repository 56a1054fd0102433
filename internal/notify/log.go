package notify

import (
	"context"

	"github.com/ayo6706/token-ledger/internal/observability"
	"go.uber.org/zap"
)

// LogNotifier writes events to the global zap logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, events ...Event) {
	for _, e := range events {
		fields := []zap.Field{
			zap.String("event_id", e.ID.String()),
			zap.String("type", e.Type),
			zap.String("account", e.Account.String()),
			zap.Time("at", e.At),
		}
		if e.Memo != "" {
			fields = append(fields, zap.String("memo", e.Memo))
		}
		for k, v := range e.Fields {
			fields = append(fields, zap.String(k, v))
		}
		zap.L().Info("notification", fields...)
		observability.IncrementNotification("log", "delivered")
	}
}
