package notestest

import (
	"context"
	"sync"

	"github.com/siahsang/notes/internal/notify"
)

// Notifier records events instead of sending them. Dispatch records
// synchronously so tests can inspect events right after the call returns.
type Notifier struct {
	mu     sync.Mutex
	events []notify.Event

	// Err is returned by Notify when set.
	Err error
}

func (n *Notifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *Notifier) Dispatch(ctx context.Context, ev notify.Event) {
	_ = n.Notify(ctx, ev)
}

func (n *Notifier) Events() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Event(nil), n.events...)
}
