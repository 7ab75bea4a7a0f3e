package console

import "sync"

// EventKind identifies a console notification
type EventKind int

const (
	EventBufferChanged EventKind = iota
	EventLineCompleted
	EventTextAppended
	EventHistoryChanged
	EventConfigChanged
	EventError
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case EventBufferChanged:
		return "buffer_changed"
	case EventLineCompleted:
		return "line_completed"
	case EventTextAppended:
		return "text_appended"
	case EventHistoryChanged:
		return "history_changed"
	case EventConfigChanged:
		return "config_changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a notification for the presentation layer. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind EventKind

	// Index and Line describe a completed line
	Index int
	Line  string

	// Text is the normalized text of a partial line update
	Text string

	// Flag names the setting that changed
	Flag string

	Err error
}

// Handler receives console events. Handlers run synchronously on the
// goroutine that caused the event and must not block.
type Handler func(Event)

// observers is a list of handlers kept apart from the data it reports on
type observers struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	order    []int
	next     int
}

// subscribe registers h and returns a function removing it
func (o *observers) subscribe(h Handler) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.handlers == nil {
		o.handlers = make(map[int]Handler)
	}

	id := o.next
	o.next++
	o.handlers[id] = h
	o.order = append(o.order, id)

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()

		delete(o.handlers, id)
		for i, v := range o.order {
			if v == id {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	}
}

// publish delivers events in order to every handler
func (o *observers) publish(events ...Event) {
	o.mu.RLock()
	handlers := make([]Handler, 0, len(o.order))
	for _, id := range o.order {
		handlers = append(handlers, o.handlers[id])
	}
	o.mu.RUnlock()

	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}
