package candle

import (
	"log/slog"
	"sync"
)

// pendingCreation is the handle concurrent callers coalesce onto while one
// goroutine constructs the aggregator for a session.
type pendingCreation struct {
	done chan struct{}
	agg  *Aggregator
}

// Registry is the process-wide, per-session aggregator directory. Exactly
// one Aggregator exists per session; creation is serialized by a per-session
// lock plus a pending-creation handle so concurrent GetOrCreate calls for
// the same session coalesce onto the same instance rather than racing to
// build two.
type Registry struct {
	mu         sync.Mutex
	instances  map[string]*Aggregator
	pending    map[string]*pendingCreation
	historyCap int
	logger     *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(historyCap int, logger *slog.Logger) *Registry {
	return &Registry{
		instances:  make(map[string]*Aggregator),
		pending:    make(map[string]*pendingCreation),
		historyCap: historyCap,
		logger:     logger.With("component", "candle_registry"),
	}
}

// GetOrCreate returns the aggregator for sessionID, creating it with
// initialPrice if absent. Concurrent calls for the same session that race
// during creation wait on the same pending handle and receive the same
// instance.
func (r *Registry) GetOrCreate(sessionID string, initialPrice float64) *Aggregator {
	r.mu.Lock()
	if agg, ok := r.instances[sessionID]; ok {
		r.mu.Unlock()
		return agg
	}
	if p, ok := r.pending[sessionID]; ok {
		r.mu.Unlock()
		<-p.done
		return p.agg
	}

	p := &pendingCreation{done: make(chan struct{})}
	r.pending[sessionID] = p
	r.mu.Unlock()

	agg := New(initialPrice, r.historyCap, r.logger)

	r.mu.Lock()
	r.instances[sessionID] = agg
	delete(r.pending, sessionID)
	r.mu.Unlock()

	p.agg = agg
	close(p.done)
	return agg
}

// Get returns the existing aggregator for sessionID, or false if none.
func (r *Registry) Get(sessionID string) (*Aggregator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg, ok := r.instances[sessionID]
	return agg, ok
}

// Release disposes of the aggregator and any pending-creation handle for a
// session, as part of session delete.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, sessionID)
	delete(r.pending, sessionID)
}

// IntegrityReport is the result of an instance-integrity audit.
type IntegrityReport struct {
	TotalInstances    int
	OrphanLocks       int // pending handles still registered although their instance is already stored
	UninitializedInstances int // instances whose current candle and history are both empty
}

// Audit counts instances, orphan pending locks, and uninitialized
// instances. Duplicate identifiers are not checked: the instance map
// cannot hold two entries for one session.
func (r *Registry) Audit() IntegrityReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := IntegrityReport{TotalInstances: len(r.instances)}

	for sessionID, p := range r.pending {
		if _, hasInstance := r.instances[sessionID]; hasInstance && p.agg != nil {
			report.OrphanLocks++
		}
	}

	for _, agg := range r.instances {
		agg.mu.Lock()
		if agg.current == nil && len(agg.history) == 0 {
			report.UninitializedInstances++
		}
		agg.mu.Unlock()
	}

	return report
}
