package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu                 sync.Mutex
	requestCount       map[string]int64
	errorCount         map[string]int64
	liveConnections    int64
	rejectedHandshakes map[string]int64
	deliveredEvents    map[string]int64
	droppedEvents      map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:       make(map[string]int64),
		errorCount:         make(map[string]int64),
		rejectedHandshakes: make(map[string]int64),
		deliveredEvents:    make(map[string]int64),
		droppedEvents:      make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// ConnectionOpened tracks an admitted realtime connection.
func (m *Metrics) ConnectionOpened() {
	m.addConnections(1)
}

// ConnectionClosed tracks a realtime connection leaving the registry.
func (m *Metrics) ConnectionClosed() {
	m.addConnections(-1)
}

func (m *Metrics) addConnections(delta int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liveConnections += delta
}

// RecordRejectedHandshake counts realtime connections refused by the gate, by error code.
func (m *Metrics) RecordRejectedHandshake(code string) {
	if m == nil {
		return
	}
	m.incr(m.rejectedHandshakes, code)
}

// RecordDelivery counts room deliveries; dropped events are those refused by a full queue.
func (m *Metrics) RecordDelivery(room string, delivered, dropped int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveredEvents[room] += int64(delivered)
	m.droppedEvents[room] += int64(dropped)
}

// incr expects a non-nil receiver.
func (m *Metrics) incr(counter map[string]int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counter[key]++
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests           map[string]int64 `json:"requests"`
	Errors             map[string]int64 `json:"errors"`
	LiveConnections    int64            `json:"live_connections"`
	RejectedHandshakes map[string]int64 `json:"rejected_handshakes"`
	DeliveredEvents    map[string]int64 `json:"delivered_events"`
	DroppedEvents      map[string]int64 `json:"dropped_events"`
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:           copyCounts(m.requestCount),
		Errors:             copyCounts(m.errorCount),
		LiveConnections:    m.liveConnections,
		RejectedHandshakes: copyCounts(m.rejectedHandshakes),
		DeliveredEvents:    copyCounts(m.deliveredEvents),
		DroppedEvents:      copyCounts(m.droppedEvents),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
