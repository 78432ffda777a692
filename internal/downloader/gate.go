package downloader

import "context"

// gate is a counting admission gate: at most cap(slots) fetches are
// in flight at once. Waiters are admitted in whatever order the
// runtime wakes them; tasks are interchangeable.
type gate struct {
	slots chan struct{}
}

func newGate(capacity int) *gate {
	if capacity < 1 {
		capacity = 1
	}
	return &gate{slots: make(chan struct{}, capacity)}
}

func (g *gate) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case g.slots <- struct{}{}:
		return nil
	}
}

func (g *gate) Release() {
	<-g.slots
}
