package capture

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/internal/compositor"

	"go.uber.org/zap"
)

const (
	placeholderWidth  = 600
	placeholderHeight = 400
)

// Provider is the capture boundary used by the broadcast loop. It never
// fails: timeouts, errors and panics of the source all yield an empty
// snapshot (or the configured placeholders).
type Provider struct {
	source       Source
	logger       *zap.Logger
	timeout      time.Duration
	maxWindows   int
	trimmer      *compositor.Trimmer
	placeholders []string
}

// NewProvider wraps source
func NewProvider(logger *zap.Logger, source Source, cfg *config.CaptureConfig, maxWindows int) *Provider {
	p := &Provider{
		source:       source,
		logger:       logger.Named("capture"),
		timeout:      cfg.Timeout,
		maxWindows:   maxWindows,
		placeholders: cfg.Placeholders,
	}
	if cfg.Trim.Enabled {
		p.trimmer = compositor.NewTrimmer(cfg.Trim)
	}
	return p
}

// SourceName returns the name of the wrapped source
func (p *Provider) SourceName() string { return p.source.Name() }

// Capture returns the current usable windows, at most maxWindows of them
func (p *Provider) Capture(ctx context.Context) []Window {
	windows, err := p.captureSource(ctx)
	if err != nil {
		p.logger.Warn("capture failed", zap.String("source", p.source.Name()), zap.Error(err))
		windows = nil
	}

	usable := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.Image == nil {
			continue
		}
		if p.trimmer != nil {
			cropped, ok := p.trimmer.Trim(w.Image)
			if !ok {
				p.logger.Debug("dropping unusable window", zap.String("window", w.ID))
				continue
			}
			w = NewWindow(w.ID, w.Name, w.App, cropped)
		}
		usable = append(usable, w)
	}

	if len(usable) == 0 {
		usable = p.placeholderWindows()
	}
	if p.maxWindows > 0 && len(usable) > p.maxWindows {
		usable = usable[:p.maxWindows]
	}
	return usable
}

func (p *Provider) captureSource(ctx context.Context) ([]Window, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type result struct {
		windows []Window
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("capture source panicked: %v", r)}
			}
		}()
		windows, err := p.source.Capture(ctx)
		done <- result{windows: windows, err: err}
	}()

	select {
	case res := <-done:
		return res.windows, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Provider) placeholderWindows() []Window {
	if len(p.placeholders) == 0 {
		return nil
	}
	out := make([]Window, 0, len(p.placeholders))
	for _, app := range p.placeholders {
		img := compositor.Placeholder(placeholderWidth, placeholderHeight, image.Pt(50, 200),
			"App: "+app, "Waiting for window...")
		out = append(out, NewWindow("placeholder:"+app, app, app, img))
	}
	return out
}
