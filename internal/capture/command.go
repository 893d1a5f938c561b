package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"

	"github.com/amoylab/castwall/internal/common/config"

	"go.uber.org/zap"
)

// CommandSource runs external tools that each write one encoded image to
// stdout, e.g. `import -window root png:-`.
type CommandSource struct {
	logger   *zap.Logger
	commands []config.CaptureCommand
}

// NewCommandSource creates a command source
func NewCommandSource(logger *zap.Logger, cfg config.CommandCaptureConfig) (*CommandSource, error) {
	if len(cfg.Commands) == 0 {
		return nil, fmt.Errorf("command capture requires at least one command")
	}
	for i, c := range cfg.Commands {
		if len(c.Args) == 0 {
			return nil, fmt.Errorf("capture command %d (%s) has no args", i, c.Name)
		}
	}
	return &CommandSource{
		logger:   logger.Named("capture.command"),
		commands: cfg.Commands,
	}, nil
}

func (s *CommandSource) Name() string { return string(TypeCommand) }

func (s *CommandSource) Capture(ctx context.Context) ([]Window, error) {
	out := make([]Window, 0, len(s.commands))
	for _, c := range s.commands {
		img, err := s.run(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("capture command failed", zap.String("name", c.Name), zap.Error(err))
			continue
		}
		app := c.App
		if app == "" {
			app = c.Name
		}
		out = append(out, NewWindow("command:"+c.Name, c.Name, app, img))
	}
	return out, nil
}

func (s *CommandSource) run(ctx context.Context, c config.CaptureCommand) (image.Image, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}
	return img, nil
}
