package search

import (
	"sync/atomic"
	"time"
)

// DefaultDebounce is the coalescing window used when none is configured.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces rapid successive queries: a query is only sent to the
// worker once no newer query has arrived for the configured window.
// Responses are delivered to the callback from the debouncer's goroutine.
type Debouncer struct {
	worker  *Worker
	window  time.Duration
	deliver func(Response)

	submitCh chan Query
	stopCh   chan struct{}
	stopped  chan struct{}
	closed   atomic.Bool
}

// NewDebouncer starts a debouncer in front of w.
func NewDebouncer(w *Worker, window time.Duration, deliver func(Response)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	d := &Debouncer{
		worker:   w,
		window:   window,
		deliver:  deliver,
		submitCh: make(chan Query),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Debouncer) run() {
	defer close(d.stopped)

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending Query
		replyCh <-chan Response
	)

	for {
		select {
		case <-d.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case q := <-d.submitCh:
			pending = q
			if timer == nil {
				timer = time.NewTimer(d.window)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(d.window)
			}

		case <-fire:
			replyCh = d.worker.Query(pending)

		case resp := <-replyCh:
			replyCh = nil
			if d.deliver != nil {
				d.deliver(resp)
			}
		}
	}
}

// Submit schedules q, superseding any query still inside the window.
func (d *Debouncer) Submit(q Query) {
	select {
	case d.submitCh <- q:
	case <-d.stopped:
	}
}

// Close stops the debouncer. Pending queries are dropped.
func (d *Debouncer) Close() {
	if d.closed.CompareAndSwap(false, true) {
		close(d.stopCh)
	}
	<-d.stopped
}
