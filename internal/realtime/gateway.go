package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-desk/complaint-portal/internal/auth"
	"github.com/civic-desk/complaint-portal/internal/config"
	"github.com/civic-desk/complaint-portal/internal/domain"
	"github.com/civic-desk/complaint-portal/internal/events"
	"github.com/civic-desk/complaint-portal/internal/observability"
	"github.com/civic-desk/complaint-portal/internal/presence"
	apperrors "github.com/civic-desk/complaint-portal/pkg/util/errorutil"
)

const (
	writeTimeout   = 5 * time.Second
	releaseTimeout = 5 * time.Second
	maxFrameBytes  = 64 << 10
)

// Gateway accepts websocket connections, admits them through the presence
// tracker and routes their events.
type Gateway struct {
	cfg        config.RealtimeConfig
	tracker    *presence.Tracker
	router     *Router
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[string]*client
	wg      sync.WaitGroup
}

// GatewayDependencies wires the gateway.
type GatewayDependencies struct {
	Tracker    *presence.Tracker
	Router     *Router
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
}

// NewGateway builds a gateway.
func NewGateway(cfg config.RealtimeConfig, deps GatewayDependencies, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := deps.Router
	if router == nil {
		router = NewRouter()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	return &Gateway{
		cfg:        cfg,
		tracker:    deps.Tracker,
		router:     router,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.Named("realtime"),
		clients:    make(map[string]*client),
	}
}

// Router exposes the room router.
func (g *Gateway) Router() *Router {
	return g.router
}

// RegisterHandlers subscribes the gateway to account and presence events.
func (g *Gateway) RegisterHandlers() {
	if g.dispatcher == nil {
		return
	}
	g.dispatcher.Subscribe(events.EventAccessChanged, g.handleAccessChanged)
	g.dispatcher.Subscribe(events.EventSessionTerminated, g.handleSessionTerminated)
	g.dispatcher.Subscribe(events.EventPresenceChanged, g.handlePresenceChanged)
}

// ServeHTTP upgrades the request and runs the connection until it ends.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.cfg.AllowedOrigins})
	if err != nil {
		g.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	g.wg.Add(1)
	defer g.wg.Done()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newClient(uuid.NewString(), g.cfg.SendBuffer)

	token, err := credentialFromRequest(r)
	var conn *presence.Connection
	if err == nil {
		conn, err = g.tracker.Admit(ctx, c.id, token, c.evict)
	}
	if err != nil {
		g.reject(ctx, ws, c.id, err)
		return
	}

	g.register(c)
	g.metrics.ConnectionOpened()
	defer g.teardown(ws, c, conn)

	principal := conn.Principal()
	g.logger.Info("connection accepted",
		zap.String("conn_id", c.id),
		zap.String("account_id", principal.AccountID),
		zap.String("role", string(principal.Role)))

	if auth.Grants(principal.Role, auth.CapViewAllDepartments) {
		g.router.Join(c, SystemManagersRoom)
	}
	c.Deliver(Message{Event: EventReady, Data: ReadyPayload{
		ConnectionID: c.id,
		AccountID:    principal.AccountID,
		Role:         string(principal.Role),
		Department:   principal.Department,
	}})

	go g.writeLoop(ctx, cancel, ws, c)
	go g.heartbeat(ctx, cancel, ws, c)
	g.readLoop(ctx, ws, c, conn)
}

// Shutdown asks every live connection to close and waits for their teardown.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		c.close(websocket.StatusGoingAway, "Server shutting down")
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func credentialFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return auth.BearerToken(header)
	}
	return r.URL.Query().Get("token"), nil
}

func (g *Gateway) reject(ctx context.Context, ws *websocket.Conn, connID string, err error) {
	de := apperrors.ToDomainError(err)
	g.metrics.RecordRejectedHandshake(de.Code)
	g.logger.Info("connection rejected", zap.String("conn_id", connID), zap.String("code", de.Code))

	writeCtx, done := context.WithTimeout(ctx, writeTimeout)
	_ = wsjson.Write(writeCtx, ws, errorMessage(de.Message, de.Code))
	done()
	_ = ws.Close(websocket.StatusPolicyViolation, de.Message)
}

func (g *Gateway) register(c *client) {
	g.mu.Lock()
	g.clients[c.id] = c
	g.mu.Unlock()
}

func (g *Gateway) teardown(ws *websocket.Conn, c *client, conn *presence.Connection) {
	g.mu.Lock()
	delete(g.clients, c.id)
	g.mu.Unlock()

	c.shutdown()
	g.router.Remove(c.id)

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	g.tracker.Release(ctx, conn)
	g.metrics.ConnectionClosed()
	_ = ws.CloseNow()

	g.logger.Info("connection closed",
		zap.String("conn_id", c.id),
		zap.String("account_id", conn.AccountID()),
		zap.String("reason", c.closeReason()))
}

func (g *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, c *client, conn *presence.Connection) {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			c.Deliver(errorMessage("Unsupported frame", apperrors.ErrValidation.Code))
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.Deliver(errorMessage("Invalid message", apperrors.ErrValidation.Code))
			continue
		}
		g.handle(ctx, c, conn, env)
	}
}

func (g *Gateway) writeLoop(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, c *client) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.final:
			_ = g.write(ctx, ws, frame.msg)
			_ = ws.Close(frame.code, frame.reason)
			return
		case msg := <-c.send:
			if err := g.write(ctx, ws, msg); err != nil {
				g.logger.Debug("write failed", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		}
	}
}

func (g *Gateway) write(ctx context.Context, ws *websocket.Conn, msg Message) error {
	writeCtx, done := context.WithTimeout(ctx, writeTimeout)
	defer done()
	return wsjson.Write(writeCtx, ws, msg)
}

// heartbeat pings the peer; an unanswered ping cancels the connection, which
// runs the same teardown as a voluntary close.
func (g *Gateway) heartbeat(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, c *client) {
	ticker := time.NewTicker(g.cfg.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, done := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout())
			err := ws.Ping(pingCtx)
			done()
			if err != nil {
				if ctx.Err() == nil {
					c.setReason("heartbeat timeout")
					g.logger.Info("heartbeat failed", zap.String("conn_id", c.id), zap.Error(err))
				}
				cancel()
				return
			}
		}
	}
}

func (g *Gateway) handle(ctx context.Context, c *client, conn *presence.Connection, env Envelope) {
	switch env.Event {
	case EventManagerOnline:
		if _, err := g.tracker.DeclareOnline(ctx, conn); err != nil {
			g.terminate(c, err)
		}
	case EventJoinDepartment:
		principal, ok := g.refresh(ctx, c, conn)
		if !ok {
			return
		}
		department, err := decodeJoin(env.Data)
		department = strings.TrimSpace(department)
		if err != nil || department == "" {
			c.Deliver(errorMessage("Department is required", apperrors.ErrValidation.Code))
			return
		}
		if err := authorizeRoom(principal, department); err != nil {
			c.Deliver(errorMessage(apperrors.ErrAuthorizationDenied.Message, apperrors.ErrAuthorizationDenied.Code))
			return
		}
		g.router.Join(c, department)
		c.Deliver(Message{Event: EventJoinedDepartment, Data: JoinPayload{Department: department}})
	case EventComplaintUpdate:
		principal, ok := g.refresh(ctx, c, conn)
		if !ok {
			return
		}
		var update domain.ComplaintStatusUpdate
		if err := json.Unmarshal(env.Data, &update); err != nil || update.ID == "" || strings.TrimSpace(update.Department) == "" {
			c.Deliver(errorMessage("Complaint id and department are required", apperrors.ErrValidation.Code))
			return
		}
		if update.Status != "" && !update.Status.Valid() {
			c.Deliver(errorMessage("Invalid complaint status", apperrors.ErrValidation.Code))
			return
		}
		if err := authorizeRoom(principal, update.Department); err != nil {
			c.Deliver(errorMessage(apperrors.ErrAuthorizationDenied.Message, apperrors.ErrAuthorizationDenied.Code))
			return
		}
		delivered, dropped := g.router.Publish(update.Department, Message{Event: EventComplaintUpdated, Data: update})
		g.metrics.RecordDelivery(update.Department, delivered, dropped)
		if g.dispatcher != nil {
			_ = g.dispatcher.Publish(ctx, events.New(events.EventComplaintStatusChanged, principal.AccountID, principal.AccountID,
				events.ComplaintStatusChangedPayload{Update: update, Delivered: delivered}))
		}
	default:
		c.Deliver(errorMessage("Unknown event", apperrors.ErrValidation.Code))
	}
}

// refresh re-runs the account gate before acting on an inbound event.
func (g *Gateway) refresh(ctx context.Context, c *client, conn *presence.Connection) (*auth.Principal, bool) {
	principal, err := g.tracker.Refresh(ctx, conn)
	if err != nil {
		g.terminate(c, err)
		return nil, false
	}
	return principal, true
}

// terminate closes the connection after an authentication failure.
func (g *Gateway) terminate(c *client, err error) {
	if errors.Is(err, presence.ErrNotTracked) {
		return
	}
	de := apperrors.ToDomainError(err)
	g.logger.Info("connection terminated", zap.String("conn_id", c.id), zap.String("code", de.Code))
	c.evict(de.Message)
}

func authorizeRoom(principal *auth.Principal, room string) error {
	if room == SystemManagersRoom {
		return apperrors.ErrAuthorizationDenied
	}
	return auth.AuthorizeDepartment(principal, room)
}

func (g *Gateway) handleAccessChanged(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AccessChangedPayload)
	if !ok {
		return nil
	}
	if !payload.Active {
		reason := apperrors.ErrAccountDisabled.Message
		if payload.Deleted {
			reason = apperrors.ErrAccountNotFound.Message
		}
		g.tracker.Evict(event.AccountID, reason)
	}
	active := payload.Active
	g.broadcastStatus(StatusPayload{AccountID: event.AccountID, IsActive: &active, Deleted: payload.Deleted})
	return nil
}

func (g *Gateway) handleSessionTerminated(_ context.Context, event events.Event) error {
	reason := "Session ended"
	if payload, ok := event.Payload.(events.SessionTerminatedPayload); ok && payload.Reason != "" {
		reason = payload.Reason
	}
	g.tracker.Evict(event.AccountID, reason)
	return nil
}

func (g *Gateway) handlePresenceChanged(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.PresenceChangedPayload)
	if !ok {
		return nil
	}
	online := payload.Online
	g.broadcastStatus(StatusPayload{AccountID: event.AccountID, Online: &online})
	return nil
}

func (g *Gateway) broadcastStatus(status StatusPayload) {
	delivered, dropped := g.router.Publish(SystemManagersRoom, Message{Event: EventManagerStatusUpdate, Data: status})
	g.metrics.RecordDelivery(SystemManagersRoom, delivered, dropped)
}

type closeFrame struct {
	msg    Message
	code   websocket.StatusCode
	reason string
}

// client is the gateway's side of one socket. All writes go through the
// writer goroutine; send is bounded and a full queue drops the message.
type client struct {
	id    string
	send  chan Message
	final chan closeFrame

	mu     sync.Mutex
	closed bool
	reason string
}

func newClient(id string, buffer int) *client {
	return &client{
		id:    id,
		send:  make(chan Message, buffer),
		final: make(chan closeFrame, 1),
	}
}

func (c *client) ID() string { return c.id }

func (c *client) Deliver(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// evict queues a final error frame and closes with a policy violation.
func (c *client) evict(reason string) {
	c.close(websocket.StatusPolicyViolation, reason)
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.reason = reason
	c.mu.Unlock()

	c.final <- closeFrame{msg: errorMessage(reason, ""), code: code, reason: reason}
}

func (c *client) shutdown() {
	c.mu.Lock()
	c.closed = true
	if c.reason == "" {
		c.reason = "closed"
	}
	c.mu.Unlock()
}

func (c *client) setReason(reason string) {
	c.mu.Lock()
	if c.reason == "" {
		c.reason = reason
	}
	c.mu.Unlock()
}

func (c *client) closeReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}
