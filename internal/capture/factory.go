package capture

import (
	"fmt"

	"github.com/amoylab/castwall/internal/common/cnst"
	"github.com/amoylab/castwall/internal/common/config"

	"go.uber.org/zap"
)

// Type represents the type of capture source
type Type string

const (
	// TypeSynthetic generates moving test windows
	TypeSynthetic Type = "synthetic"
	// TypeDirectory reads every image file of a directory
	TypeDirectory Type = "directory"
	// TypeCommand runs external capture tools
	TypeCommand Type = "command"
)

// NewSource creates a capture source based on configuration
func NewSource(logger *zap.Logger, cfg *config.CaptureConfig) (Source, error) {
	logger.Info("Initializing capture source", zap.String("type", cfg.Type))
	switch Type(cfg.Type) {
	case TypeSynthetic:
		return NewSyntheticSource(cfg.Synthetic), nil
	case TypeDirectory:
		return NewDirectorySource(logger, cfg.Directory)
	case TypeCommand:
		return NewCommandSource(logger, cfg.Command)
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnknownCaptureType, cfg.Type)
	}
}
