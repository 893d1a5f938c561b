package notifier

import (
	"context"
	"errors"

	"github.com/amoylab/castwall/internal/registry"
)

// CompositeNotifier fans one event out to several notifiers
type CompositeNotifier struct {
	notifiers []Notifier
}

// NewCompositeNotifier combines notifiers; nil entries are skipped
func NewCompositeNotifier(notifiers ...Notifier) *CompositeNotifier {
	n := &CompositeNotifier{}
	for _, inner := range notifiers {
		if inner != nil {
			n.notifiers = append(n.notifiers, inner)
		}
	}
	return n
}

// Notify delivers ev to every notifier, even when some fail
func (n *CompositeNotifier) Notify(ctx context.Context, ev registry.Event) error {
	var errs []error
	for _, inner := range n.notifiers {
		if err := inner.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *CompositeNotifier) Close() error {
	var errs []error
	for _, inner := range n.notifiers {
		if err := inner.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
