package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-desk/complaint-portal/internal/auth"
	"github.com/civic-desk/complaint-portal/internal/config"
	"github.com/civic-desk/complaint-portal/internal/domain"
	"github.com/civic-desk/complaint-portal/internal/events"
	"github.com/civic-desk/complaint-portal/internal/locks"
	"github.com/civic-desk/complaint-portal/internal/observability"
	"github.com/civic-desk/complaint-portal/internal/presence"
	"github.com/civic-desk/complaint-portal/internal/repository"
	"github.com/civic-desk/complaint-portal/internal/service"
)

type gatewayEnv struct {
	server   *httptest.Server
	store    *repository.MemoryStore
	tokens   *auth.TokenManager
	tracker  *presence.Tracker
	accounts *service.AccountService
	metrics  *observability.Metrics
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newGatewayEnv(t *testing.T, rt config.RealtimeConfig) *gatewayEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	tokens := auth.NewTokenManager("realtime-secret", time.Hour)
	gate := auth.NewGate(tokens, store.Accounts())
	keyed := locks.NewKeyedMutex()
	ledger := service.NewLoginLedger(store.LoginHistory(), store.Accounts())
	dispatcher := events.NewInMemoryDispatcher(nil)
	metrics := observability.NewMetrics()

	tracker := presence.NewTracker(presence.Dependencies{
		Gate:       gate,
		Ledger:     ledger,
		Locks:      keyed,
		Dispatcher: dispatcher,
	}, nil)
	gateway := NewGateway(rt, GatewayDependencies{
		Tracker:    tracker,
		Dispatcher: dispatcher,
		Metrics:    metrics,
	}, nil)
	gateway.RegisterHandlers()

	accounts := service.NewAccountService(config.Config{Auth: config.AuthConfig{BcryptCost: 4}}, service.AccountDependencies{
		AccountRepo: store.Accounts(),
		Ledger:      ledger,
		Gate:        gate,
		Locks:       keyed,
		Dispatcher:  dispatcher,
	}, nil)

	server := httptest.NewServer(NewHandler(gateway))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gateway.Shutdown(ctx)
		server.Close()
	})
	return &gatewayEnv{server: server, store: store, tokens: tokens, tracker: tracker, accounts: accounts, metrics: metrics}
}

func defaultRealtime() config.RealtimeConfig {
	return config.RealtimeConfig{HeartbeatIntervalSeconds: 3600, HeartbeatTimeoutSeconds: 5, SendBuffer: 16}
}

func (e *gatewayEnv) account(t *testing.T, email string, role domain.Role, department string) (*domain.Account, string) {
	t.Helper()
	account := &domain.Account{Name: email, Email: email, Role: role, Active: true}
	if department != "" {
		account.Department = &department
	}
	require.NoError(t, e.store.Accounts().Create(context.Background(), account))
	token, _, err := e.tokens.Issue(account)
	require.NoError(t, err)
	return account, token
}

func (e *gatewayEnv) dial(t *testing.T, header string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts := &websocket.DialOptions{}
	if header != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{header}}
	}
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(e.server.URL, "http")+"/ws", opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f frame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	return f
}

// readEvent skips frames until one named event arrives.
func readEvent(t *testing.T, conn *websocket.Conn, event string) frame {
	t.Helper()
	for i := 0; i < 20; i++ {
		f := read(t, conn)
		if f.Event == event {
			return f
		}
	}
	t.Fatalf("event %q not received", event)
	return frame{}
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"event": event, "data": data}))
}

func errorText(t *testing.T, f frame) string {
	t.Helper()
	require.Equal(t, EventError, f.Event)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	return payload.Message
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.NotEqual(t, websocket.StatusCode(-1), websocket.CloseStatus(err))
}

func TestGateway_RejectsHandshakes(t *testing.T) {
	env := newGatewayEnv(t, defaultRealtime())
	disabled, disabledToken := env.account(t, "off@kmc.gov.in", domain.RoleDepartmentManager, domain.DepartmentHealth)
	require.NoError(t, env.store.Accounts().SetActive(context.Background(), disabled.ID, false))

	cases := []struct {
		name    string
		header  string
		message string
	}{
		{"missing", "", "No token provided"},
		{"bad scheme", "Token abc", "Invalid token format"},
		{"garbage", "Bearer abc", "Invalid token format"},
		{"disabled", "Bearer " + disabledToken, "Access disabled by System Manager"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := env.dial(t, tc.header)
			assert.Equal(t, tc.message, errorText(t, read(t, conn)))
			expectClosed(t, conn)
		})
	}

	assert.Zero(t, env.tracker.Len())
	assert.Equal(t, int64(1), env.metrics.Snapshot().RejectedHandshakes["ACCOUNT_DISABLED"])
}

func TestGateway_QueryTokenAndPresence(t *testing.T) {
	env := newGatewayEnv(t, defaultRealtime())
	account, token := env.account(t, "health@kmc.gov.in", domain.RoleDepartmentManager, domain.DepartmentHealth)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(env.server.URL, "http")+"/ws?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	ready := read(t, conn)
	require.Equal(t, EventReady, ready.Event)
	var payload ReadyPayload
	require.NoError(t, json.Unmarshal(ready.Data, &payload))
	assert.Equal(t, account.ID, payload.AccountID)
	assert.Equal(t, domain.DepartmentHealth, payload.Department)
	assert.True(t, env.tracker.Online(account.ID))

	send(t, conn, EventManagerOnline, account.ID)
	send(t, conn, EventJoinDepartment, domain.DepartmentHealth)
	readEvent(t, conn, EventJoinedDepartment)

	history, err := env.store.LoginHistory().ListByAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return !env.tracker.Online(account.ID) }, 5*time.Second, 10*time.Millisecond)

	history, err = env.store.LoginHistory().ListByAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Open())
}

func TestGateway_ComplaintUpdatesStayInRoom(t *testing.T) {
	env := newGatewayEnv(t, defaultRealtime())
	_, healthToken := env.account(t, "health@kmc.gov.in", domain.RoleDepartmentManager, domain.DepartmentHealth)
	_, waterToken := env.account(t, "water@kmc.gov.in", domain.RoleDepartmentManager, domain.DepartmentWater)
	_, adminToken := env.account(t, "admin@kmc.gov.in", domain.RoleSystemManager, "")

	health := env.dial(t, "Bearer "+healthToken)
	readEvent(t, health, EventReady)
	send(t, health, EventJoinDepartment, JoinPayload{Department: domain.DepartmentHealth})
	readEvent(t, health, EventJoinedDepartment)

	water := env.dial(t, "Bearer "+waterToken)
	readEvent(t, water, EventReady)
	send(t, water, EventJoinDepartment, domain.DepartmentWater)
	readEvent(t, water, EventJoinedDepartment)

	send(t, water, EventJoinDepartment, domain.DepartmentHealth)
	assert.Equal(t, "Access denied", errorText(t, read(t, water)))

	admin := env.dial(t, "Bearer "+adminToken)
	readEvent(t, admin, EventReady)

	send(t, admin, EventComplaintUpdate, domain.ComplaintStatusUpdate{
		ID:         "CMP-1",
		Status:     domain.ComplaintStatusInProgress,
		Assignee:   "Field Team 3",
		Department: domain.DepartmentHealth,
	})
	got := readEvent(t, health, EventComplaintUpdated)
	var update domain.ComplaintStatusUpdate
	require.NoError(t, json.Unmarshal(got.Data, &update))
	assert.Equal(t, "CMP-1", update.ID)
	assert.Equal(t, domain.ComplaintStatusInProgress, update.Status)

	send(t, admin, EventComplaintUpdate, domain.ComplaintStatusUpdate{
		ID:         "CMP-2",
		Status:     domain.ComplaintStatusResolved,
		Department: domain.DepartmentWater,
	})
	got = readEvent(t, water, EventComplaintUpdated)
	require.NoError(t, json.Unmarshal(got.Data, &update))
	assert.Equal(t, "CMP-2", update.ID, "water never sees the Health update")

	send(t, health, EventComplaintUpdate, domain.ComplaintStatusUpdate{ID: "CMP-3", Department: domain.DepartmentWater})
	assert.Equal(t, "Access denied", errorText(t, read(t, health)))
}

func TestGateway_DisableEvictsLiveConnections(t *testing.T) {
	env := newGatewayEnv(t, defaultRealtime())
	account, token := env.account(t, "health@kmc.gov.in", domain.RoleDepartmentManager, domain.DepartmentHealth)
	adminAccount, adminToken := env.account(t, "admin@kmc.gov.in", domain.RoleSystemManager, "")

	admin := env.dial(t, "Bearer "+adminToken)
	readEvent(t, admin, EventReady)

	first := env.dial(t, "Bearer "+token)
	readEvent(t, first, EventReady)
	second := env.dial(t, "Bearer "+token)
	readEvent(t, second, EventReady)
	require.Equal(t, 2, env.tracker.ConnectionCount(account.ID))

	_, err := env.accounts.ToggleAccess(context.Background(), auth.PrincipalFor(adminAccount), account.ID)
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{first, second} {
		assert.Equal(t, "Access disabled by System Manager", errorText(t, readEvent(t, conn, EventError)))
		expectClosed(t, conn)
	}
	require.Eventually(t, func() bool { return !env.tracker.Online(account.ID) }, 5*time.Second, 10*time.Millisecond)

	status := readEvent(t, admin, EventManagerStatusUpdate)
	var payload StatusPayload
	require.NoError(t, json.Unmarshal(status.Data, &payload))
	assert.Equal(t, account.ID, payload.AccountID)

	history, err := env.store.LoginHistory().ListByAccount(context.Background(), account.ID)
	require.NoError(t, err)
	for _, entry := range history {
		assert.False(t, entry.Open())
	}

	again := env.dial(t, "Bearer "+token)
	assert.Equal(t, "Access disabled by System Manager", errorText(t, read(t, again)))
}

func TestGateway_HeartbeatDropsSilentPeer(t *testing.T) {
	rt := defaultRealtime()
	rt.HeartbeatIntervalSeconds = 1
	rt.HeartbeatTimeoutSeconds = 1
	env := newGatewayEnv(t, rt)
	account, token := env.account(t, "health@kmc.gov.in", domain.RoleDepartmentManager, domain.DepartmentHealth)

	// the client never reads, so pings go unanswered
	_ = env.dial(t, "Bearer "+token)
	require.Eventually(t, func() bool { return env.tracker.Online(account.ID) }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !env.tracker.Online(account.ID) }, 10*time.Second, 50*time.Millisecond)

	fresh, err := env.store.Accounts().GetByID(context.Background(), account.ID)
	require.NoError(t, err)
	assert.False(t, fresh.IsOnline)
}
