package observability

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fairyhunter13/browndog-tests/internal/domain"
)

// ConnectionType represents different types of external connections
type ConnectionType string

// Predefined connection types used across the system.
const (
	ConnectionTypeBrowndog ConnectionType = "browndog"
	ConnectionTypeQueue    ConnectionType = "queue"
	ConnectionTypeMail     ConnectionType = "mail"
)

// ConnectionMetrics tracks call outcomes for one operation against one connection.
type ConnectionMetrics struct {
	mu sync.RWMutex

	ConnectionType ConnectionType
	Operation      string

	TotalRequests   int64
	SuccessRequests int64
	FailureRequests int64
	TimeoutRequests int64

	TotalLatency time.Duration
	MinLatency   time.Duration
	MaxLatency   time.Duration

	// ErrorCounts is keyed by error class, not message, to keep cardinality bounded.
	ErrorCounts map[string]int64

	FirstRequest time.Time
	LastRequest  time.Time
}

// NewConnectionMetrics creates new connection metrics
func NewConnectionMetrics(connType ConnectionType, operation string) *ConnectionMetrics {
	return &ConnectionMetrics{
		ConnectionType: connType,
		Operation:      operation,
		MinLatency:     time.Hour,
		ErrorCounts:    make(map[string]int64),
	}
}

// RecordRequest records a request start
func (cm *ConnectionMetrics) RecordRequest() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.TotalRequests++
	now := time.Now()
	if cm.FirstRequest.IsZero() {
		cm.FirstRequest = now
	}
	cm.LastRequest = now
}

func (cm *ConnectionMetrics) observeLatency(d time.Duration) {
	cm.TotalLatency += d
	if d < cm.MinLatency {
		cm.MinLatency = d
	}
	if d > cm.MaxLatency {
		cm.MaxLatency = d
	}
}

// RecordSuccess records a successful operation
func (cm *ConnectionMetrics) RecordSuccess(d time.Duration) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.SuccessRequests++
	cm.observeLatency(d)
}

// RecordFailure records a failed operation under its error class.
func (cm *ConnectionMetrics) RecordFailure(err error, d time.Duration) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.FailureRequests++
	cm.observeLatency(d)
	cm.ErrorCounts[ErrorClass(err)]++
}

// RecordTimeout records a call that hit its deadline.
func (cm *ConnectionMetrics) RecordTimeout(d time.Duration) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.TimeoutRequests++
	cm.observeLatency(d)
	cm.ErrorCounts["timeout"]++
}

// Stats is a point-in-time copy of ConnectionMetrics.
type Stats struct {
	ConnectionType ConnectionType
	Operation      string
	Total          int64
	Success        int64
	Failure        int64
	Timeout        int64
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	Errors         map[string]int64
}

// Snapshot returns the current counters.
func (cm *ConnectionMetrics) Snapshot() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	s := Stats{
		ConnectionType: cm.ConnectionType,
		Operation:      cm.Operation,
		Total:          cm.TotalRequests,
		Success:        cm.SuccessRequests,
		Failure:        cm.FailureRequests,
		Timeout:        cm.TimeoutRequests,
		MaxLatency:     cm.MaxLatency,
		Errors:         make(map[string]int64, len(cm.ErrorCounts)),
	}
	if done := cm.SuccessRequests + cm.FailureRequests + cm.TimeoutRequests; done > 0 {
		s.AvgLatency = cm.TotalLatency / time.Duration(done)
		s.MinLatency = cm.MinLatency
	}
	for k, v := range cm.ErrorCounts {
		s.Errors[k] = v
	}
	return s
}

// ErrorClass maps an error onto a short label.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotReady):
		return "not_ready"
	case errors.Is(err, domain.ErrService):
		return "service"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	default:
		return "other"
	}
}

// Registry hands out one ConnectionMetrics per operation.
type Registry struct {
	mu       sync.Mutex
	connType ConnectionType
	byOp     map[string]*ConnectionMetrics
}

// NewRegistry creates an empty registry for connType.
func NewRegistry(connType ConnectionType) *Registry {
	return &Registry{connType: connType, byOp: map[string]*ConnectionMetrics{}}
}

// For returns the metrics for operation, creating them on first use.
func (r *Registry) For(operation string) *ConnectionMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	cm, ok := r.byOp[operation]
	if !ok {
		cm = NewConnectionMetrics(r.connType, operation)
		r.byOp[operation] = cm
	}
	return cm
}

// Snapshot returns stats for every operation sorted by name.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	ops := make([]*ConnectionMetrics, 0, len(r.byOp))
	for _, cm := range r.byOp {
		ops = append(ops, cm)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(ops))
	for _, cm := range ops {
		out = append(out, cm.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}
