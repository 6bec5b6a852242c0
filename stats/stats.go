// Package stats implements the statistics registry: named, per-object,
// per-index counters and gauges, dumped at end of run in the
// "prefix.object[index].name value" line format.
package stats

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
)

// metric is one registered (object, index, name) -> value binding.
type metric struct {
	object string
	index  uint32
	name   string
	read   func() float64
}

// Registry is a statistics registry. Registration happens during setup
// (single-threaded); counter increments are deliberately non-atomic, so
// statistics may be mildly racy — callers that need precision should
// synchronize externally.
type Registry struct {
	mu       sync.Mutex
	metrics  []*metric
	hists    map[string]*Histogram
	counters map[string]*counter
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{hists: map[string]*Histogram{}}
}

// RegisterGauge registers a named metric backed by a read function,
// evaluated at Dump time, so the registry always reports the live value
// rather than a registration-time snapshot.
func (r *Registry) RegisterGauge(object string, index uint32, name string, read func() float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, &metric{object: object, index: index, name: name, read: read})
}

// counter is a simple named accumulator for RegisterCounter/IncCounter.
type counter struct {
	value uint64
}

// RegisterCounter declares a counter metric that starts at zero and can be
// incremented with IncCounter.
func (r *Registry) RegisterCounter(object string, index uint32, name string) {
	c := &counter{}
	r.mu.Lock()
	r.metrics = append(r.metrics, &metric{
		object: object, index: index, name: name,
		read: func() float64 { return float64(c.value) },
	})
	r.counterRef(object, index, name, c)
	r.mu.Unlock()
}

// counterRef maps (object,index,name) to its backing counter so
// IncCounter can find it without a type assertion on the closure.
func (r *Registry) counterRef(object string, index uint32, name string, c *counter) {
	if r.counters == nil {
		r.counters = map[string]*counter{}
	}
	r.counters[counterKey(object, index, name)] = c
}

func counterKey(object string, index uint32, name string) string {
	return fmt.Sprintf("%s[%d].%s", object, index, name)
}

// IncCounter increments a previously-registered counter by one.
func (r *Registry) IncCounter(object string, index uint32, name string) {
	r.mu.Lock()
	c := r.counters[counterKey(object, index, name)]
	r.mu.Unlock()
	if c != nil {
		c.value++
	}
}

// Dump writes every registered metric as "prefix.object[index].name value"
// to dst, sorted by object, index, then name for deterministic output.
func (r *Registry) Dump(prefix string, dst io.Writer) error {
	r.mu.Lock()
	metrics := make([]*metric, len(r.metrics))
	copy(metrics, r.metrics)
	r.mu.Unlock()

	sort.SliceStable(metrics, func(i, j int) bool {
		if metrics[i].object != metrics[j].object {
			return metrics[i].object < metrics[j].object
		}
		if metrics[i].index != metrics[j].index {
			return metrics[i].index < metrics[j].index
		}
		return metrics[i].name < metrics[j].name
	})

	for _, m := range metrics {
		if _, err := fmt.Fprintf(dst, "%s.%s[%d].%s %v\n", prefix, m.object, m.index, m.name, m.read()); err != nil {
			return err
		}
	}
	return nil
}

// HistMaxBins is the number of log-scaled bins a Histogram keeps.
const HistMaxBins = 64

// Histogram is a running histogram with log-scaled bins.
type Histogram struct {
	n        uint64
	sum      float64
	sumSq    float64
	min, max uint64
	bins     [HistMaxBins]uint64
}

// NewHistogram declares and registers a histogram under the given name.
func (r *Registry) NewHistogram(name string) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := &Histogram{}
	r.hists[name] = h
	return h
}

// Update records a new sample.
func (h *Histogram) Update(v uint64) {
	if h.n == 0 {
		h.min, h.max = v, v
	}
	h.n++
	h.sum += float64(v)
	h.sumSq += float64(v) * float64(v)
	if v < h.min {
		h.min = v
	}
	if v > h.max {
		h.max = v
	}
	bin := floorLog2(v) + 1
	if bin >= HistMaxBins {
		bin = HistMaxBins - 1
	}
	if bin < 0 {
		bin = 0
	}
	h.bins[bin]++
}

// Merge combines another histogram's samples into h.
func (h *Histogram) Merge(other *Histogram) {
	if h.n == 0 {
		h.min, h.max = other.min, other.max
	}
	h.n += other.n
	h.sum += other.sum
	h.sumSq += other.sumSq
	if other.n > 0 && other.min < h.min {
		h.min = other.min
	}
	if other.n > 0 && other.max > h.max {
		h.max = other.max
	}
	for i := range h.bins {
		h.bins[i] += other.bins[i]
	}
}

// Mean returns the sample mean, or 0 if no samples were recorded.
func (h *Histogram) Mean() float64 {
	if h.n == 0 {
		return 0
	}
	return h.sum / float64(h.n)
}

// StdDev returns the sample standard deviation.
func (h *Histogram) StdDev() float64 {
	if h.n < 2 {
		return 0
	}
	mean := h.sum / float64(h.n)
	variance := (h.sumSq/float64(h.n) - mean*mean) * float64(h.n) / float64(h.n-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Count, Min, Max expose the histogram's summary statistics.
func (h *Histogram) Count() uint64 { return h.n }

func (h *Histogram) Min() uint64 { return h.min }

func (h *Histogram) Max() uint64 { return h.max }

func floorLog2(v uint64) int {
	if v == 0 {
		return 0
	}
	n := -1
	for v > 0 {
		v >>= 1
		n++
	}
	return n
}
