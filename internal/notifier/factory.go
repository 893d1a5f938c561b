package notifier

import (
	"fmt"

	"github.com/amoylab/castwall/internal/common/config"

	"go.uber.org/zap"
)

// Type represents the type of notifier
type Type string

const (
	// TypeNone discards events
	TypeNone Type = "none"
	// TypeLog writes events to the log
	TypeLog Type = "log"
	// TypeRedis appends events to a Redis stream
	TypeRedis Type = "redis"
)

// NewNotifier creates a notifier based on configuration
func NewNotifier(logger *zap.Logger, cfg *config.NotifierConfig) (Notifier, error) {
	logger.Info("Initializing notifier", zap.String("type", cfg.Type))
	switch Type(cfg.Type) {
	case TypeNone:
		return NoopNotifier{}, nil
	case TypeLog:
		return NewLogNotifier(logger), nil
	case TypeRedis:
		n, err := NewRedisNotifier(logger, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %s", cfg.Type)
	}
}
