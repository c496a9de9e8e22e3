package telemetry

import "sync"

// Listener receives engine events. Implementations must not block for long:
// they run on the goroutine that emitted the event.
type Listener interface {
	OnEvent(event *Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(event *Event)

func (f ListenerFunc) OnEvent(event *Event) { f(event) }

// Emitter fans events out to registered listeners. A nil *Emitter discards
// everything.
type Emitter struct {
	mux       sync.RWMutex
	listeners []Listener
}

// NewEmitter creates an emitter with the given listeners.
func NewEmitter(listeners ...Listener) *Emitter {
	ret := &Emitter{}
	ret.Add(listeners...)
	return ret
}

// Add registers listeners.
func (e *Emitter) Add(listeners ...Listener) {
	if e == nil {
		return
	}
	e.mux.Lock()
	defer e.mux.Unlock()
	for _, l := range listeners {
		if l != nil {
			e.listeners = append(e.listeners, l)
		}
	}
}

// Emit delivers event to every listener.
func (e *Emitter) Emit(event *Event) {
	if e == nil || event == nil {
		return
	}
	e.mux.RLock()
	listeners := e.listeners
	e.mux.RUnlock()
	for _, l := range listeners {
		l.OnEvent(event)
	}
}

// Recorder is a Listener that keeps every event, for tests and reports.
type Recorder struct {
	mux    sync.Mutex
	events []*Event
}

func (r *Recorder) OnEvent(event *Event) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []*Event {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]*Event(nil), r.events...)
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mux.Lock()
	defer r.mux.Unlock()
	ret := 0
	for _, e := range r.events {
		if e.Kind == kind {
			ret++
		}
	}
	return ret
}
