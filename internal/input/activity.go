package input

import "sync"

// Activity is a single-slot coalescing notification channel between the
// device readers and the idle-timeout loop.
//
// Notify never blocks: while a notification is pending further ones are
// dropped. Close marks the consumer as gone, after which Notify reports false
// so readers can exit.
type Activity struct {
	ch     chan struct{}
	closed chan struct{}
	once   sync.Once
}

// NewActivity creates an empty Activity.
func NewActivity() *Activity {
	return &Activity{
		ch:     make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Notify records activity. It returns false once the consumer has gone.
func (a *Activity) Notify() bool {
	select {
	case <-a.closed:
		return false
	default:
	}

	select {
	case a.ch <- struct{}{}:
	default:
	}
	return true
}

// C returns the channel the consumer receives notifications on.
func (a *Activity) C() <-chan struct{} {
	return a.ch
}

// Close marks the consumer as gone. Safe to call more than once.
func (a *Activity) Close() {
	a.once.Do(func() { close(a.closed) })
}

// Done is closed once Close has been called.
func (a *Activity) Done() <-chan struct{} {
	return a.closed
}
