package notify

import "github.com/google/uuid"

// Status classifies an event published on the bus.
type Status int

const (
	StatusSuccess Status = iota + 1
	StatusInProgress
	StatusError
	StatusCreated
	StatusRead
	StatusDonationImported
	StatusDonationFailed
	StatusDuplicateProfile
)

// Event is one status report from a pipeline component. Events are ephemeral;
// nothing is retained after the fan-out returns.
type Event struct {
	RunID   uuid.UUID
	Source  string
	Message string
	Code    Status
	Err     error
	Payload any
}

// Observer receives every event published on a Bus. Handlers run on the
// publisher's goroutine and must return promptly.
type Observer interface {
	Update(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Update(e Event) { f(e) }

// Bus is a synchronous fan-out channel for pipeline status reporting. One Bus
// belongs to one import run; it is not safe for concurrent publishers, which
// matches the pipeline's single thread of control.
type Bus struct {
	runID     uuid.UUID
	observers []Observer
}

// NewBus creates a bus with a fresh run id and the given subscribers. The
// subscriber list is normally fixed at construction.
func NewBus(observers ...Observer) *Bus {
	return &Bus{runID: uuid.New(), observers: observers}
}

// RunID identifies the import run this bus reports for.
func (b *Bus) RunID() uuid.UUID { return b.runID }

// Attach adds an observer to the end of the fan-out order.
func (b *Bus) Attach(o Observer) {
	b.observers = append(b.observers, o)
}

// Publish stamps the run id on the event and delivers it to every observer in
// registration order, blocking until each handler returns.
func (b *Bus) Publish(e Event) {
	e.RunID = b.runID
	for _, o := range b.observers {
		o.Update(e)
	}
}

// Report is shorthand for publishing a simple status message.
func (b *Bus) Report(source, message string, code Status) {
	b.Publish(Event{Source: source, Message: message, Code: code})
}

// ReportErr publishes an error event carrying the underlying failure.
func (b *Bus) ReportErr(source, message string, code Status, err error) {
	b.Publish(Event{Source: source, Message: message, Code: code, Err: err})
}
