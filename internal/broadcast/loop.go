// Package broadcast runs the producer that captures, composes, encodes and
// fans frames out to every active client.
package broadcast

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/amoylab/castwall/internal/capture"
	"github.com/amoylab/castwall/internal/common/cnst"
	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/internal/compositor"
	"github.com/amoylab/castwall/internal/frame"
	"github.com/amoylab/castwall/internal/registry"
	"github.com/amoylab/castwall/pkg/metrics"
	"github.com/amoylab/castwall/pkg/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Capturer is the snapshot source the loop consumes
type Capturer interface {
	Capture(ctx context.Context) []capture.Window
}

// Loop is the single producer of the hub
type Loop struct {
	logger     *zap.Logger
	capturer   Capturer
	compositor *compositor.Compositor
	encoder    *frame.Encoder
	registry   *registry.Registry
	metrics    *metrics.Metrics
	tracer     *trace.Builder

	minInterval  time.Duration
	idleInterval time.Duration

	seq      atomic.Uint64
	windows  atomic.Int64
	failures atomic.Uint64

	running  *atomic.Bool
	stopped  atomic.Bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a broadcast loop. m may be nil.
func New(
	logger *zap.Logger,
	capturer Capturer,
	comp *compositor.Compositor,
	enc *frame.Encoder,
	reg *registry.Registry,
	m *metrics.Metrics,
	cfg config.BroadcastConfig,
) *Loop {
	return &Loop{
		logger:       logger.Named("broadcast"),
		capturer:     capturer,
		compositor:   comp,
		encoder:      enc,
		registry:     reg,
		metrics:      m,
		tracer:       trace.Tracer(cnst.TraceBroadcast),
		minInterval:  cfg.MinInterval,
		idleInterval: cfg.IdleInterval,
		running:      &atomic.Bool{},
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// WindowsCount returns the window count of the most recent snapshot
func (l *Loop) WindowsCount() int { return int(l.windows.Load()) }

// Seq returns the number of ticks started so far
func (l *Loop) Seq() uint64 { return l.seq.Load() }

// Failures returns the number of ticks that failed or panicked
func (l *Loop) Failures() uint64 { return l.failures.Load() }

// Start runs the loop in the background until Stop or ctx ends. A loop
// cannot be restarted once stopped.
func (l *Loop) Start(ctx context.Context) {
	if l.stopped.Load() {
		return
	}
	if l.running.CompareAndSwap(false, true) {
		go l.run(ctx)
		l.logger.Info("Started broadcast loop",
			zap.Duration("min_interval", l.minInterval),
			zap.Duration("idle_interval", l.idleInterval))
	}
}

// Stop asks the loop to exit after the current tick and waits for it, or
// for ctx to end.
func (l *Loop) Stop(ctx context.Context) error {
	if !l.running.CompareAndSwap(true, false) {
		return nil
	}
	l.stopped.Store(true)
	close(l.stopChan)
	select {
	case <-l.done:
		l.logger.Info("Stopped broadcast loop", zap.Uint64("ticks", l.seq.Load()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		default:
		}

		start := time.Now()
		targets, err := l.tick(ctx)
		if err != nil {
			l.logger.Error("broadcast tick failed", zap.Error(err))
		}

		wait := l.minInterval - time.Since(start)
		if targets == 0 && l.idleInterval > wait {
			wait = l.idleInterval
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-l.stopChan:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Tick runs one capture, compose, encode and publish cycle. Panics are
// recovered and returned as errors.
func (l *Loop) Tick(ctx context.Context) error {
	_, err := l.tick(ctx)
	return err
}

func (l *Loop) tick(ctx context.Context) (targets int, err error) {
	start := time.Now()
	seq := l.seq.Add(1)
	status := metrics.TickOK

	span := l.tracer.Start(ctx, cnst.SpanBroadcastTick).WithAttrs(attribute.Int64("tick.seq", int64(seq)))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick %d panicked: %v", seq, r)
		}
		if err != nil {
			status = metrics.TickError
			l.failures.Add(1)
			span.Fail(err)
		}
		l.metrics.TickDone(status, start)
		span.End()
	}()

	now := l.registry.Now()
	sets := l.registry.ActiveQueueSets(now)
	l.metrics.SetClients(l.registry.ClientCount(), len(sets))

	cs := l.tracer.Start(span.Ctx, cnst.SpanBroadcastCapture)
	windows := l.capturer.Capture(cs.Ctx)
	cs.WithAttrs(attribute.Int("windows", len(windows))).End()

	l.windows.Store(int64(len(windows)))
	l.metrics.SetWindows(len(windows))

	if len(sets) == 0 {
		status = metrics.TickIdle
		return 0, nil
	}
	span.WithAttrs(attribute.Int("clients", len(sets)))

	frames, err := l.encode(span.Ctx, seq, now, windows)
	if err != nil {
		return len(sets), err
	}

	ps := l.tracer.Start(span.Ctx, cnst.SpanBroadcastPublish).WithAttrs(attribute.Int("frames", len(frames)))
	for _, set := range sets {
		for _, f := range frames {
			evicted, accepted := set.Publish(f)
			if accepted {
				l.metrics.FramePublished(f.Key.Kind(), evicted)
			}
		}
	}
	ps.End()
	return len(sets), nil
}

// encode composes the tiled view and encodes it together with every window.
// The tiled frame comes first.
func (l *Loop) encode(ctx context.Context, seq uint64, now time.Time, windows []capture.Window) ([]*frame.Frame, error) {
	images := make([]image.Image, len(windows))
	for i, w := range windows {
		images[i] = w.Image
	}

	cs := l.tracer.Start(ctx, cnst.SpanBroadcastCompose)
	tiled := l.compositor.Compose(images)
	cs.End()

	es := l.tracer.Start(ctx, cnst.SpanBroadcastEncode)
	defer es.End()

	data, err := l.encoder.Encode(tiled)
	if err != nil {
		es.Fail(err)
		return nil, fmt.Errorf("encode tiled view: %w", err)
	}
	frames := make([]*frame.Frame, 0, len(windows)+1)
	frames = append(frames, &frame.Frame{Key: frame.TiledKey, Seq: seq, CapturedAt: now, Data: data})
	l.metrics.FrameEncoded(frame.TiledKey.Kind(), len(data))

	for i, w := range windows {
		data, err := l.encoder.Encode(w.Image)
		if err != nil {
			l.logger.Warn("skipping window that failed to encode",
				zap.Int("index", i), zap.String("window", w.ID), zap.Error(err))
			continue
		}
		key := frame.WindowKey(i)
		frames = append(frames, &frame.Frame{Key: key, Seq: seq, CapturedAt: now, Data: data})
		l.metrics.FrameEncoded(key.Kind(), len(data))
	}
	return frames, nil
}
