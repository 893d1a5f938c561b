package registry

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultReapInterval defines how often the reaper sweeps the registry
const DefaultReapInterval = 5 * time.Second

// Reaper periodically removes inactive clients from a Registry. It runs on
// its own timer, independent of the broadcast cadence.
type Reaper struct {
	registry *Registry
	logger   *zap.Logger
	interval time.Duration
	running  *atomic.Bool
	stopChan chan struct{}
	stopped  *atomic.Bool
	done     chan struct{}
	sweeps   atomic.Int64
	onSweep  func(reaped []int64)
}

// NewReaper creates a reaper for r sweeping every interval
func NewReaper(r *Registry, logger *zap.Logger, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Reaper{
		registry: r,
		logger:   logger.Named("registry.reaper"),
		interval: interval,
		running:  &atomic.Bool{},
		stopChan: make(chan struct{}),
		stopped:  &atomic.Bool{},
		done:     make(chan struct{}),
	}
}

// OnSweep registers a callback invoked after every sweep
func (p *Reaper) OnSweep(fn func(reaped []int64)) {
	p.onSweep = fn
}

// Start begins sweeping in the background. A stopped reaper stays stopped.
func (p *Reaper) Start(ctx context.Context) {
	if p.stopped.Load() {
		return
	}
	if p.running.CompareAndSwap(false, true) {
		go p.loop(ctx)
		p.logger.Info("Started client reaper",
			zap.Duration("interval", p.interval),
			zap.Duration("timeout", p.registry.Timeout()))
	}
}

// Stop halts the reaper and waits for the loop to exit
func (p *Reaper) Stop() {
	if p.running.CompareAndSwap(true, false) {
		if p.stopped.CompareAndSwap(false, true) {
			close(p.stopChan)
		}
		<-p.done
		p.logger.Info("Stopped client reaper")
	}
}

// IsRunning returns whether the reaper loop is active
func (p *Reaper) IsRunning() bool {
	return p.running.Load()
}

// Sweeps returns how many sweeps have run
func (p *Reaper) Sweeps() int64 {
	return p.sweeps.Load()
}

// Sweep reaps immediately and returns the removed ids
func (p *Reaper) Sweep() []int64 {
	reaped := p.registry.Reap(p.registry.Now())
	p.sweeps.Add(1)
	if len(reaped) > 0 {
		p.logger.Debug("Performed client sweep", zap.Int64s("reaped", reaped))
	}
	if p.onSweep != nil {
		p.onSweep(reaped)
	}
	return reaped
}

func (p *Reaper) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Client reaper stopped due to context cancellation")
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}
