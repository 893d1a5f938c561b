// Package notifier publishes client lifecycle events to external sinks.
package notifier

import (
	"context"

	"github.com/amoylab/castwall/internal/registry"

	"go.uber.org/zap"
)

// Notifier delivers lifecycle events to one sink
type Notifier interface {
	Notify(ctx context.Context, ev registry.Event) error
	Close() error
}

// NoopNotifier discards every event
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, registry.Event) error { return nil }
func (NoopNotifier) Close() error                                 { return nil }

// LogNotifier writes events to the structured log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier.log")}
}

func (n *LogNotifier) Notify(_ context.Context, ev registry.Event) error {
	fields := []zap.Field{
		zap.String("type", string(ev.Type)),
		zap.Int64("client_id", ev.ClientID),
		zap.Time("at", ev.At),
	}
	if ev.SessionID != "" {
		fields = append(fields, zap.String("session", registry.AbbreviateSession(ev.SessionID)))
	}
	if ev.Type == registry.EventClientReaped {
		fields = append(fields, zap.Duration("idle", ev.IdleFor), zap.Int("discarded", ev.Discarded))
	}
	n.logger.Info("client lifecycle event", fields...)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
