// Package presence owns the registry of live realtime connections and keeps
// the login ledger and the denormalized online flag in step with it.
package presence

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/civic-desk/complaint-portal/internal/auth"
	"github.com/civic-desk/complaint-portal/internal/domain"
	"github.com/civic-desk/complaint-portal/internal/events"
	"github.com/civic-desk/complaint-portal/internal/locks"
	apperrors "github.com/civic-desk/complaint-portal/pkg/util/errorutil"
)

// State is the lifecycle stage of a connection.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateTracked
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateTracked:
		return "tracked"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ErrNotTracked is returned for connections that were never admitted or already released.
var ErrNotTracked = errors.New("presence: connection not tracked")

// EvictFunc asks the transport to drop a connection, telling the client why.
type EvictFunc func(reason string)

// Ledger is the session ledger the tracker drives on connect and disconnect.
type Ledger interface {
	OpenSession(ctx context.Context, accountID string) (*domain.LoginHistoryEntry, bool, error)
	CloseSession(ctx context.Context, accountID string) (*domain.LoginHistoryEntry, error)
}

// Connection is one realtime channel as seen by the tracker.
type Connection struct {
	ID string

	mu        sync.Mutex
	state     State
	claims    *auth.SessionClaims
	principal *auth.Principal
	evict     EvictFunc
}

// State returns the connection's lifecycle stage.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Principal returns the principal resolved at admission or at the last refresh.
func (c *Connection) Principal() *auth.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal
}

// AccountID returns the tracked account, empty before admission.
func (c *Connection) AccountID() string {
	if p := c.Principal(); p != nil {
		return p.AccountID
	}
	return ""
}

// Tracker maps live connections to accounts.
//
// Presence for an account is "at least one tracked connection". The 0->1 and
// 1->0 transitions open and close the ledger session under the account's lock,
// the same lock the REST login and access toggle take.
type Tracker struct {
	gate       *auth.Gate
	ledger     Ledger
	locks      *locks.KeyedMutex
	mirror     Mirror
	dispatcher events.Dispatcher
	logger     *zap.Logger

	mu        sync.RWMutex
	conns     map[string]*Connection
	byAccount map[string]map[string]*Connection
	pending   map[string]struct{}
}

// Dependencies wires the tracker's collaborators. Mirror and Dispatcher are optional.
type Dependencies struct {
	Gate       *auth.Gate
	Ledger     Ledger
	Locks      *locks.KeyedMutex
	Mirror     Mirror
	Dispatcher events.Dispatcher
}

// NewTracker builds an empty tracker.
func NewTracker(deps Dependencies, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	mirror := deps.Mirror
	if mirror == nil {
		mirror = NopMirror{}
	}
	return &Tracker{
		gate:       deps.Gate,
		ledger:     deps.Ledger,
		locks:      deps.Locks,
		mirror:     mirror,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("presence"),
		conns:      make(map[string]*Connection),
		byAccount:  make(map[string]map[string]*Connection),
		pending:    make(map[string]struct{}),
	}
}

// Admit authenticates a new connection and starts tracking it.
// On failure the connection is left Disconnected and the gate error is returned.
func (t *Tracker) Admit(ctx context.Context, connID, rawToken string, evict EvictFunc) (*Connection, error) {
	conn := &Connection{ID: connID, state: StateAuthenticating, evict: evict}

	claims, err := t.gate.Verify(rawToken)
	if err != nil {
		conn.setState(StateDisconnected)
		return conn, err
	}

	unlock := t.locks.Lock(claims.AccountID)
	principal, err := t.gate.Resolve(ctx, claims)
	if err != nil {
		unlock()
		conn.setState(StateDisconnected)
		return conn, err
	}

	conn.mu.Lock()
	conn.claims = claims
	conn.principal = principal
	conn.state = StateTracked
	conn.mu.Unlock()

	t.mu.Lock()
	t.conns[connID] = conn
	set, ok := t.byAccount[principal.AccountID]
	if !ok {
		set = make(map[string]*Connection)
		t.byAccount[principal.AccountID] = set
	}
	set[connID] = conn
	t.mu.Unlock()

	opened := t.open(ctx, principal.AccountID)
	unlock()

	t.mirrorConnected(ctx, principal.AccountID)
	if opened {
		t.publishPresence(ctx, principal.AccountID, true)
	}
	t.logger.Debug("connection tracked", zap.String("conn_id", connID), zap.String("account_id", principal.AccountID))
	return conn, nil
}

// Release stops tracking conn. The account goes offline and its ledger session
// closes when this was its last live connection. Safe to call more than once.
func (t *Tracker) Release(ctx context.Context, conn *Connection) {
	conn.mu.Lock()
	wasTracked := conn.state == StateTracked
	conn.state = StateDisconnected
	principal := conn.principal
	conn.mu.Unlock()
	if !wasTracked || principal == nil {
		return
	}
	accountID := principal.AccountID

	unlock := t.locks.Lock(accountID)
	t.mu.Lock()
	delete(t.conns, conn.ID)
	remaining := 0
	if set, ok := t.byAccount[accountID]; ok {
		delete(set, conn.ID)
		remaining = len(set)
		if remaining == 0 {
			delete(t.byAccount, accountID)
		}
	}
	t.mu.Unlock()

	closed := false
	if remaining == 0 {
		closed = t.close(ctx, accountID)
	}
	unlock()

	t.mirrorDisconnected(ctx, accountID)
	if closed {
		t.publishPresence(ctx, accountID, false)
	}
	t.logger.Debug("connection released",
		zap.String("conn_id", conn.ID),
		zap.String("account_id", accountID),
		zap.Int("remaining", remaining))
}

// Refresh re-runs the account gate for a tracked connection so a disable or
// delete takes effect on the next inbound event.
func (t *Tracker) Refresh(ctx context.Context, conn *Connection) (*auth.Principal, error) {
	conn.mu.Lock()
	claims := conn.claims
	state := conn.state
	conn.mu.Unlock()
	if state != StateTracked || claims == nil {
		return nil, ErrNotTracked
	}

	principal, err := t.gate.Resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	conn.setPrincipal(principal)
	return principal, nil
}

// DeclareOnline handles a client's explicit "I am online". It converges on the
// same ledger session as the handshake, so it never opens a second entry.
func (t *Tracker) DeclareOnline(ctx context.Context, conn *Connection) (*auth.Principal, error) {
	claims := conn.claimsSnapshot()
	if claims == nil {
		return nil, ErrNotTracked
	}

	unlock := t.locks.Lock(claims.AccountID)
	if conn.State() != StateTracked {
		unlock()
		return nil, ErrNotTracked
	}
	principal, err := t.gate.Resolve(ctx, claims)
	if err != nil {
		unlock()
		return nil, err
	}
	conn.setPrincipal(principal)
	opened := t.open(ctx, principal.AccountID)
	unlock()

	if opened {
		t.publishPresence(ctx, principal.AccountID, true)
	}
	return principal, nil
}

// Evict asks every live connection of the account to close with reason.
// It returns how many connections were asked.
func (t *Tracker) Evict(accountID, reason string) int {
	conns := t.Connections(accountID)
	for _, conn := range conns {
		if conn.evict != nil {
			conn.evict(reason)
		}
	}
	if len(conns) > 0 {
		t.logger.Info("connections evicted",
			zap.String("account_id", accountID),
			zap.Int("count", len(conns)),
			zap.String("reason", reason))
	}
	return len(conns)
}

// Connections returns the account's live connections.
func (t *Tracker) Connections(accountID string) []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.byAccount[accountID]
	out := make([]*Connection, 0, len(set))
	for _, conn := range set {
		out = append(out, conn)
	}
	return out
}

// Online reports derived presence for the account.
func (t *Tracker) Online(accountID string) bool {
	return t.ConnectionCount(accountID) > 0
}

// ConnectionCount returns how many live connections the account has.
func (t *Tracker) ConnectionCount(accountID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byAccount[accountID])
}

// Len returns the total number of tracked connections.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// OnlineAccounts lists accounts with at least one live connection, sorted.
func (t *Tracker) OnlineAccounts() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.byAccount))
	for id := range t.byAccount {
		out = append(out, id)
	}
	t.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Pending returns accounts whose ledger state still needs to be reapplied.
func (t *Tracker) Pending() []string {
	t.mu.RLock()
	out := make([]string, 0, len(t.pending))
	for id := range t.pending {
		out = append(out, id)
	}
	t.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Reconcile reapplies the ledger transition for every pending account: open
// when it still has live connections that pass the gate, close otherwise. An
// account disabled or removed since it was queued is closed and its remaining
// connections are evicted. It returns how many accounts were settled.
func (t *Tracker) Reconcile(ctx context.Context) int {
	settled := 0
	for _, accountID := range t.Pending() {
		if ctx.Err() != nil {
			break
		}
		unlock := t.locks.Lock(accountID)
		live, denied, err := t.eligible(ctx, accountID)
		var ok bool
		switch {
		case err != nil:
			ok = t.settle(accountID, err)
		case live:
			_, _, err = t.ledger.OpenSession(ctx, accountID)
			ok = t.settle(accountID, err)
		default:
			_, err = t.ledger.CloseSession(ctx, accountID)
			ok = t.settle(accountID, err)
		}
		unlock()
		if denied != nil {
			t.Evict(accountID, apperrors.ToDomainError(denied).Message)
		}
		if ok {
			settled++
		}
	}
	return settled
}

// eligible runs with the account lock held. live is true when the account has
// tracked connections and still passes the gate; denied carries the gate's
// rejection when it was disabled or removed.
func (t *Tracker) eligible(ctx context.Context, accountID string) (live bool, denied error, err error) {
	conns := t.Connections(accountID)
	if len(conns) == 0 {
		return false, nil, nil
	}
	claims := conns[0].claimsSnapshot()
	if claims == nil {
		return false, nil, nil
	}
	if _, err := t.gate.Resolve(ctx, claims); err != nil {
		if errors.Is(err, apperrors.ErrAccountDisabled) || errors.Is(err, apperrors.ErrAccountNotFound) {
			return false, err, nil
		}
		return false, nil, err
	}
	return true, nil, nil
}

func (t *Tracker) settle(accountID string, err error) bool {
	if err != nil {
		t.logger.Warn("presence reconcile failed", zap.String("account_id", accountID), zap.Error(err))
		return false
	}
	t.mu.Lock()
	delete(t.pending, accountID)
	t.mu.Unlock()
	return true
}

// open runs with the account lock held.
func (t *Tracker) open(ctx context.Context, accountID string) bool {
	_, opened, err := t.ledger.OpenSession(ctx, accountID)
	if err != nil {
		t.markPending(accountID, "open", err)
		return false
	}
	t.clearPending(accountID)
	return opened
}

// close runs with the account lock held.
func (t *Tracker) close(ctx context.Context, accountID string) bool {
	entry, err := t.ledger.CloseSession(ctx, accountID)
	if err != nil {
		t.markPending(accountID, "close", err)
		return false
	}
	t.clearPending(accountID)
	return entry != nil
}

func (t *Tracker) markPending(accountID, op string, err error) {
	t.logger.Warn("ledger update failed, queued for retry",
		zap.String("account_id", accountID),
		zap.String("op", op),
		zap.Error(err))
	t.mu.Lock()
	t.pending[accountID] = struct{}{}
	t.mu.Unlock()
}

func (t *Tracker) clearPending(accountID string) {
	t.mu.Lock()
	delete(t.pending, accountID)
	t.mu.Unlock()
}

func (t *Tracker) mirrorConnected(ctx context.Context, accountID string) {
	if err := t.mirror.Connected(ctx, accountID); err != nil {
		t.logger.Debug("presence mirror update failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (t *Tracker) mirrorDisconnected(ctx context.Context, accountID string) {
	if err := t.mirror.Disconnected(ctx, accountID); err != nil {
		t.logger.Debug("presence mirror update failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (t *Tracker) publishPresence(ctx context.Context, accountID string, online bool) {
	if t.dispatcher == nil {
		return
	}
	_ = t.dispatcher.Publish(ctx, events.New(events.EventPresenceChanged, accountID, accountID, events.PresenceChangedPayload{Online: online}))
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) setPrincipal(p *auth.Principal) {
	c.mu.Lock()
	c.principal = p
	c.mu.Unlock()
}

func (c *Connection) claimsSnapshot() *auth.SessionClaims {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claims
}
