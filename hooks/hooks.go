// Package hooks implements the simulator's lifecycle hook registry: a
// point-keyed table of callback lists fired at start, ROI begin/end,
// instrumentation mode transitions, and shutdown.
package hooks

import "sync"

// Point names a lifecycle event a hook can be registered against:
// process start, ROI begin/end, process end, and an instrumentation-mode
// transition.
type Point int

const (
	Start Point = iota
	ROIBegin
	ROIEnd
	End
	ModeChange
)

func (p Point) String() string {
	switch p {
	case Start:
		return "start"
	case ROIBegin:
		return "roi-begin"
	case ROIEnd:
		return "roi-end"
	case End:
		return "end"
	case ModeChange:
		return "mode-change"
	default:
		return "unknown"
	}
}

// Callback is a hook function. arg carries point-specific data (nil for
// Start/End/ROIBegin/ROIEnd; the new InstrumentationMode for ModeChange).
type Callback func(arg any)

// Registry is the hook table: a point-keyed list of callbacks, invoked
// in registration order.
type Registry struct {
	mu    sync.Mutex
	hooks map[Point][]Callback
}

// NewRegistry constructs an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{hooks: map[Point][]Callback{}}
}

// Register adds cb to the list invoked at point. Hooks live for the
// process lifetime, so there is no matching Unregister.
func (r *Registry) Register(point Point, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[point] = append(r.hooks[point], cb)
}

// Fire invokes every callback registered at point, in registration order,
// passing arg through unchanged.
func (r *Registry) Fire(point Point, arg any) {
	r.mu.Lock()
	cbs := make([]Callback, len(r.hooks[point]))
	copy(cbs, r.hooks[point])
	r.mu.Unlock()

	for _, cb := range cbs {
		cb(arg)
	}
}
