package notifier

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/amoylab/castwall/internal/registry"

	"go.uber.org/zap"
)

const deliverTimeout = 5 * time.Second

// Dispatcher decouples event producers from slow sinks. Observe never
// blocks: events beyond the buffer are dropped and counted.
type Dispatcher struct {
	logger   *zap.Logger
	notifier Notifier
	events   chan registry.Event
	running  *atomic.Bool
	stopped  atomic.Bool
	stopChan chan struct{}
	done     chan struct{}
	dropped  atomic.Uint64
	onDrop   func()
}

// NewDispatcher creates a dispatcher in front of n
func NewDispatcher(logger *zap.Logger, n Notifier, bufferSize int) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Dispatcher{
		logger:   logger.Named("notifier.dispatcher"),
		notifier: n,
		events:   make(chan registry.Event, bufferSize),
		running:  &atomic.Bool{},
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// OnDrop registers a callback for dropped events
func (d *Dispatcher) OnDrop(fn func()) { d.onDrop = fn }

// Observe enqueues ev. It matches registry.Observer.
func (d *Dispatcher) Observe(ev registry.Event) {
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		if d.onDrop != nil {
			d.onDrop()
		}
	}
}

// Dropped returns the number of events lost to a full buffer
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Start begins delivering events
func (d *Dispatcher) Start(ctx context.Context) {
	if d.stopped.Load() {
		return
	}
	if d.running.CompareAndSwap(false, true) {
		go d.loop(ctx)
		d.logger.Info("Started event dispatcher", zap.Int("buffer", cap(d.events)))
	}
}

// Stop delivers what is already queued and halts the dispatcher
func (d *Dispatcher) Stop() {
	if d.running.CompareAndSwap(true, false) {
		d.stopped.Store(true)
		close(d.stopChan)
		<-d.done
		d.logger.Info("Stopped event dispatcher", zap.Uint64("dropped", d.dropped.Load()))
	}
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case ev := <-d.events:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			return
		case <-d.stopChan:
			for {
				select {
				case ev := <-d.events:
					d.deliver(context.Background(), ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev registry.Event) {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	if err := d.notifier.Notify(ctx, ev); err != nil {
		d.logger.Warn("failed to deliver event",
			zap.String("type", string(ev.Type)),
			zap.Int64("client_id", ev.ClientID),
			zap.Error(err))
	}
}
