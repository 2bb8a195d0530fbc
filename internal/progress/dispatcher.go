package progress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Dispatcher delivers events to synchronous and asynchronous listeners.
//
// Synchronous listeners run inline in Publish and their errors (including
// recovered panics) are returned to the publisher. Asynchronous listeners run
// in order on a single dispatcher goroutine; their errors are recorded and
// exposed through Err.
type Dispatcher struct {
	syncListeners  []transfertypes.Listener
	asyncListeners []transfertypes.Listener

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []transfertypes.Event
	closed bool

	errMu     sync.Mutex
	asyncErrs []error

	drained chan struct{}
}

// NewDispatcher creates a dispatcher for the given registrations.
func NewDispatcher(registrations []transfertypes.ListenerRegistration) *Dispatcher {
	d := &Dispatcher{drained: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)

	for _, r := range registrations {
		if r.Listener == nil {
			continue
		}
		if r.Mode == transfertypes.DeliverAsync {
			d.asyncListeners = append(d.asyncListeners, r.Listener)
		} else {
			d.syncListeners = append(d.syncListeners, r.Listener)
		}
	}

	if len(d.asyncListeners) > 0 {
		go d.loop()
	}
	return d
}

// Publish delivers e. It returns the joined errors of synchronous listeners.
// Events published after Close are dropped.
func (d *Dispatcher) Publish(e transfertypes.Event) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	if len(d.asyncListeners) > 0 {
		d.queue = append(d.queue, e)
		d.cond.Signal()
	}
	d.mu.Unlock()

	var errs []error
	for _, l := range d.syncListeners {
		if err := deliver(l, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops accepting events. Queued events are still delivered to
// asynchronous listeners; Drained is closed afterwards.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	if len(d.asyncListeners) == 0 {
		close(d.drained)
		return
	}
	d.cond.Signal()
}

// Drained is closed once Close was called and every queued event was delivered.
func (d *Dispatcher) Drained() <-chan struct{} {
	return d.drained
}

// Err returns the errors raised by asynchronous listeners so far.
func (d *Dispatcher) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return errors.Join(d.asyncErrs...)
}

func (d *Dispatcher) loop() {
	defer close(d.drained)

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		for _, e := range batch {
			for _, l := range d.asyncListeners {
				if err := deliver(l, e); err != nil {
					d.errMu.Lock()
					d.asyncErrs = append(d.asyncErrs, err)
					d.errMu.Unlock()
				}
			}
		}
	}
}

func deliver(l transfertypes.Listener, e transfertypes.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked on %s: %v", e.Type, r)
		}
	}()
	if err := l.OnEvent(e); err != nil {
		return fmt.Errorf("listener failed on %s: %w", e.Type, err)
	}
	return nil
}
