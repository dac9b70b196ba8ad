package registry

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrUnknownBackend is returned when an operation names a key never
// configured at construction time. In practice every writer is fed from
// the registry's own backend list, so this is a programming error rather
// than a runtime condition.
var ErrUnknownBackend = errors.New("registry: unknown backend")

// entry is one backend's live state. All fields are protected by mu except
// activeRequests, which is the hottest-contention field and is kept as an
// atomic counter read/written without the lock, per the concurrency model.
type entry struct {
	host string
	port int

	activeRequests atomic.Int64

	mu                  sync.RWMutex
	gpuUtilization      int
	gpuMemoryUsedGB     float64
	gpuMemoryTotalGB    float64
	gpuTemperature      int
	gpus                []GPUSample
	gpuCount            int
	isHealthy           bool
	consecutiveFailures int
	lastCheck           time.Time
}

func (e *entry) snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	gpus := make([]GPUSample, len(e.gpus))
	copy(gpus, e.gpus)
	return Snapshot{
		Host:                e.host,
		Port:                e.port,
		ActiveRequests:      e.activeRequests.Load(),
		GPUUtilization:      e.gpuUtilization,
		GPUMemoryUsedGB:     e.gpuMemoryUsedGB,
		GPUMemoryTotalGB:    e.gpuMemoryTotalGB,
		GPUTemperature:      e.gpuTemperature,
		GPUs:                gpus,
		GPUCount:            e.gpuCount,
		IsHealthy:           e.isHealthy,
		ConsecutiveFailures: e.consecutiveFailures,
		LastCheck:           e.lastCheck,
	}
}

// Registry is the shared, process-lifetime store of backend state. Its key
// set is fixed at construction and never grows or shrinks (spec invariant);
// the underlying map is therefore never written to after New
// returns, so it needs no lock of its own — only each entry's fields do.
type Registry struct {
	entries map[string]*entry
	order   []string // sorted keys, for deterministic snapshot iteration
}

// New builds a registry with one entry per configured backend, in the
// initial healthy state with zeroed telemetry.
func New(backends []Backend) *Registry {
	entries := make(map[string]*entry, len(backends))
	order := make([]string, 0, len(backends))
	for _, b := range backends {
		k := key(b.Host, b.Port)
		entries[k] = &entry{
			host:      b.Host,
			port:      b.Port,
			isHealthy: true,
		}
		order = append(order, k)
	}
	sort.Strings(order)
	return &Registry{entries: entries, order: order}
}

func (r *Registry) lookup(host string, port int) (*entry, error) {
	e, ok := r.entries[key(host, port)]
	if !ok {
		return nil, ErrUnknownBackend
	}
	return e, nil
}

// UpdateMetrics merges a successful sidecar poll into the named entry:
// telemetry is replaced wholesale, the health state is restored, and the
// failure counter resets. Unknown keys change no state and return
// ErrUnknownBackend.
func (r *Registry) UpdateMetrics(host string, port int, doc MetricsDocument) error {
	e, err := r.lookup(host, port)
	if err != nil {
		return err
	}

	e.activeRequests.Store(int64(doc.ActiveRequests))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.gpuUtilization = doc.GPUUtilization
	e.gpuMemoryUsedGB = doc.GPUMemoryUsedGB
	e.gpuMemoryTotalGB = doc.GPUMemoryTotalGB
	e.gpuTemperature = doc.GPUTemperature
	e.gpus = doc.GPUs
	e.gpuCount = doc.GPUCount
	e.lastCheck = time.Now()
	e.isHealthy = true
	e.consecutiveFailures = 0
	return nil
}

// MarkUnhealthy records a transient failure against the named entry. Once
// consecutive_failures reaches threshold, is_healthy flips false. Telemetry
// is left untouched.
func (r *Registry) MarkUnhealthy(host string, port int, threshold int) error {
	e, err := r.lookup(host, port)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.consecutiveFailures++
	if e.consecutiveFailures >= threshold {
		e.isHealthy = false
	}
	return nil
}

// MarkHealthy restores an entry after a successful direct health probe,
// without touching telemetry (used by the health checker; the metrics
// poller restores health via UpdateMetrics instead).
func (r *Registry) MarkHealthy(host string, port int) error {
	e, err := r.lookup(host, port)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.isHealthy = true
	e.consecutiveFailures = 0
	return nil
}

// IncrementRequests bumps the active-request counter. This is the proxy's
// hot-path call and never blocks on the entry lock.
func (r *Registry) IncrementRequests(host string, port int) error {
	e, err := r.lookup(host, port)
	if err != nil {
		return err
	}
	e.activeRequests.Add(1)
	return nil
}

// DecrementRequests lowers the active-request counter, saturating at 0.
func (r *Registry) DecrementRequests(host string, port int) error {
	e, err := r.lookup(host, port)
	if err != nil {
		return err
	}
	for {
		cur := e.activeRequests.Load()
		if cur <= 0 {
			return nil
		}
		if e.activeRequests.CompareAndSwap(cur, cur-1) {
			return nil
		}
	}
}

// HealthySnapshot returns a point-in-time copy of every healthy entry, in
// stable host:port order, safe to iterate without holding any registry or
// entry lock. The order makes selection's tie-break deterministic.
func (r *Registry) HealthySnapshot() []Snapshot {
	out := make([]Snapshot, 0, len(r.entries))
	for _, k := range r.order {
		s := r.entries[k].snapshot()
		if s.IsHealthy {
			out = append(out, s)
		}
	}
	return out
}

// SnapshotAll returns a read-only copy of every entry, in stable host:port
// order, for the admin surface.
func (r *Registry) SnapshotAll() []Snapshot {
	out := make([]Snapshot, 0, len(r.entries))
	for _, k := range r.order {
		out = append(out, r.entries[k].snapshot())
	}
	return out
}

// Backends returns the fixed set of configured identities in stable
// host:port order.
func (r *Registry) Backends() []Backend {
	out := make([]Backend, 0, len(r.entries))
	for _, k := range r.order {
		e := r.entries[k]
		out = append(out, Backend{Host: e.host, Port: e.port})
	}
	return out
}

// Lookup returns a single entry's snapshot, for callers (like the health
// checker) that need one backend's current state rather than the whole
// set.
func (r *Registry) Lookup(host string, port int) (Snapshot, bool) {
	e, err := r.lookup(host, port)
	if err != nil {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}
