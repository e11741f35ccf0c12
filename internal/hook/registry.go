package hook

import (
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Kind decides whether a handler's return value feeds back into the
// payload chain.
type Kind int

const (
	// KindObserver handlers see the payload; their return value is
	// discarded.
	KindObserver Kind = iota

	// KindFilter handlers may return a replacement payload. Returning
	// nil keeps the current payload.
	KindFilter
)

// Handler processes an event payload. Filter handlers return the
// transformed payload or nil to leave it unchanged.
type Handler func(payload any) any

type registration struct {
	id       string
	priority int
	seq      uint64
	kind     Kind
	fn       Handler
}

// Registry dispatches named events to registered handlers. Handlers
// run in priority order, highest first; ties run in registration
// order. A panicking handler is logged and skipped, never propagated
// to the caller.
type Registry struct {
	mu      sync.RWMutex
	events  map[string][]registration
	nextSeq uint64
	logger  *log.Logger
}

// NewRegistry returns an empty registry. A nil logger discards panic
// reports.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = discardLogger()
	}
	return &Registry{
		events: make(map[string][]registration),
		logger: logger,
	}
}

// Register adds a handler for event and returns its registration id
// for later removal.
func (r *Registry) Register(event string, priority int, kind Kind, fn Handler) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	regs := append(r.events[event], registration{
		id:       id,
		priority: priority,
		seq:      r.nextSeq,
		kind:     kind,
		fn:       fn,
	})
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].priority != regs[j].priority {
			return regs[i].priority > regs[j].priority
		}
		return regs[i].seq < regs[j].seq
	})
	r.events[event] = regs
	return id
}

// Unregister removes a handler by registration id. Unknown ids are
// ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for event, regs := range r.events {
		for i, reg := range regs {
			if reg.id == id {
				r.events[event] = append(regs[:i:i], regs[i+1:]...)
				return
			}
		}
	}
}

// Fire runs all handlers for event. Return values are discarded, so
// observers and filters behave identically here.
func (r *Registry) Fire(event string, payload any) {
	for _, reg := range r.snapshot(event) {
		r.invoke(event, reg, payload)
	}
}

// Filter threads payload through the event's filter handlers, highest
// priority first, and returns the final value. Observer handlers run
// too but cannot transform. A filter returning nil keeps the payload
// from the previous step.
func (r *Registry) Filter(event string, payload any) any {
	for _, reg := range r.snapshot(event) {
		out := r.invoke(event, reg, payload)
		if reg.kind == KindFilter && out != nil {
			payload = out
		}
	}
	return payload
}

// HandlerCount reports the number of handlers registered for event.
func (r *Registry) HandlerCount(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events[event])
}

// Reset removes every handler.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[string][]registration)
}

// snapshot copies the handler list so handlers can register or
// unregister during dispatch without corrupting iteration.
func (r *Registry) snapshot(event string) []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := r.events[event]
	out := make([]registration, len(regs))
	copy(out, regs)
	return out
}

// invoke runs a single handler, converting a panic into a log entry.
func (r *Registry) invoke(event string, reg registration, payload any) (out any) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			r.logger.Error("hook handler panicked", "event", event, "id", reg.id, "panic", rec)
		}
	}()
	return reg.fn(payload)
}
