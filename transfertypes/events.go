package transfertypes

// EventType identifies a progress event.
type EventType string

const (
	// EventTransferStarted is published once remote work was initiated
	EventTransferStarted EventType = "transfer_started"

	// EventPartCompleted is published for every accepted part
	EventPartCompleted EventType = "part_completed"

	// EventPartFailed is published for the part failure that stopped the transfer
	EventPartFailed EventType = "part_failed"

	// EventTransferCompleted is published when the transfer reached DONE
	EventTransferCompleted EventType = "transfer_completed"

	// EventTransferFailed is published when the transfer reached FAILED
	EventTransferFailed EventType = "transfer_failed"
)

// Terminal reports whether the event type ends a transfer.
func (t EventType) Terminal() bool {
	return t == EventTransferCompleted || t == EventTransferFailed
}

// Event is a progress notification delivered to listeners.
type Event struct {
	// Type is the kind of event
	Type EventType

	// TransferID identifies the transfer
	TransferID string

	// Direction of the transfer
	Direction Direction

	// Bucket and Key identify the remote object
	Bucket string
	Key    string

	// Part is the 1-based part number for part events
	Part int

	// Bytes is the part length for part events
	Bytes int64

	// Progress is the transfer snapshot taken when the event was published
	Progress Snapshot

	// Err is the failure for EventPartFailed and EventTransferFailed
	Err error
}

// Listener receives progress events.
// A listener registered with DeliverSync runs on the goroutine that detected
// the event and its error is returned to that publisher. A listener registered
// with DeliverAsync runs on a dedicated goroutine and its errors are only
// recorded.
type Listener interface {
	OnEvent(Event) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event) error

// OnEvent calls f(e).
func (f ListenerFunc) OnEvent(e Event) error {
	return f(e)
}

// DeliveryMode selects how a listener is invoked.
type DeliveryMode int

const (
	// DeliverSync invokes the listener inline
	DeliverSync DeliveryMode = iota

	// DeliverAsync invokes the listener on a separate goroutine
	DeliverAsync
)

// String returns the delivery mode name.
func (m DeliveryMode) String() string {
	if m == DeliverAsync {
		return "async"
	}
	return "sync"
}
