package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Snapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/auth/login", "POST", 200, time.Millisecond)
	m.RecordError("/api/managers", "GET", "AUTHORIZATION_DENIED")
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RecordRejectedHandshake("ACCOUNT_DISABLED")
	m.RecordDelivery("Health Department", 3, 1)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Requests["/api/auth/login|POST|200"])
	assert.Equal(t, int64(1), snap.Errors["/api/managers|GET|AUTHORIZATION_DENIED"])
	assert.Equal(t, int64(1), snap.LiveConnections)
	assert.Equal(t, int64(1), snap.RejectedHandshakes["ACCOUNT_DISABLED"])
	assert.Equal(t, int64(3), snap.DeliveredEvents["Health Department"])
	assert.Equal(t, int64(1), snap.DroppedEvents["Health Department"])
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, 0)
	m.RecordError("/", "GET", "NOT_FOUND")
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.RecordRejectedHandshake("x")
	m.RecordDelivery("room", 1, 0)
	assert.Equal(t, Snapshot{}, m.Snapshot())
}
