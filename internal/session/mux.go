package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lanternchat/streamhub/internal/model"
	"github.com/lanternchat/streamhub/internal/transport"
	"github.com/lanternchat/streamhub/internal/wire"
)

// Config tunes the multiplexer and every manager it creates.
type Config struct {
	Manager ManagerConfig
}

// Mux owns the sessionID -> Manager registry and routes traffic by
// session id. It is the only type the application layer talks to:
// register the dispatch callback, then call Ensure/Send/Interrupt/
// Close. Sessions are fully independent — one session's lifecycle
// never touches another's manager.
type Mux struct {
	cfg     Config
	factory transport.Factory
	sched   Scheduler
	logger  *slog.Logger
	ctx     context.Context

	mu       sync.Mutex
	sessions map[string]*Manager

	dispatchFn DispatchFunc
	noticeFn   NoticeHandler
	faultFn    wire.FaultHandler
}

// NewMux creates a multiplexer. Handlers must be registered before the
// first Ensure/Send.
func NewMux(ctx context.Context, cfg Config, factory transport.Factory, sched Scheduler, logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.Default()
	}
	if sched == nil {
		sched = NewScheduler()
	}
	return &Mux{
		cfg:      cfg,
		factory:  factory,
		sched:    sched,
		logger:   logger,
		ctx:      ctx,
		sessions: make(map[string]*Manager),
	}
}

// OnMessage registers the single application callback that receives
// every decoded, session-tagged envelope.
func (x *Mux) OnMessage(fn DispatchFunc) {
	x.mu.Lock()
	x.dispatchFn = fn
	x.mu.Unlock()
}

// OnNotice registers the callback for connection-level notifications
// (reconnecting, closed, exhausted, overflow).
func (x *Mux) OnNotice(fn NoticeHandler) {
	x.mu.Lock()
	x.noticeFn = fn
	x.mu.Unlock()
}

// OnDecodeFault registers a callback for recoverable decode faults,
// typically a metrics hook. Faults are log-only otherwise.
func (x *Mux) OnDecodeFault(fn wire.FaultHandler) {
	x.mu.Lock()
	x.faultFn = fn
	x.mu.Unlock()
}

// Ensure returns the live manager for a session id, creating or
// replacing one as needed. A stale entry (terminally closed manager)
// is swapped for a fresh connected one; a live entry is returned
// as-is, so two Ensure calls while Connecting yield the same instance.
func (x *Mux) Ensure(sessionID string) *Manager {
	x.mu.Lock()
	if m, ok := x.sessions[sessionID]; ok && m.Usable() {
		x.mu.Unlock()
		return m
	}
	m := x.newManager(sessionID)
	x.sessions[sessionID] = m
	x.mu.Unlock()

	m.Connect()
	return m
}

// Get returns the session's manager only if it is usable, without
// creating one. Absence is a legitimate no-op for best-effort callers.
func (x *Mux) Get(sessionID string) *Manager {
	x.mu.Lock()
	defer x.mu.Unlock()
	if m, ok := x.sessions[sessionID]; ok && m.Usable() {
		return m
	}
	return nil
}

// Send routes an outbound envelope to the session, creating its
// manager if necessary.
func (x *Mux) Send(sessionID string, env model.Envelope) error {
	return x.Ensure(sessionID).Send(env)
}

// Interrupt signals the session's current activity, best effort. No
// session, no-op.
func (x *Mux) Interrupt(sessionID string) {
	if m := x.Get(sessionID); m != nil {
		m.Interrupt()
	}
}

// Close tears down one session.
func (x *Mux) Close(sessionID string) {
	x.mu.Lock()
	m := x.sessions[sessionID]
	x.mu.Unlock()
	if m != nil {
		m.Close()
	}
}

// CloseAll tears down every session. The registry is snapshotted
// first: each Close re-enters the registry through the manager's
// closed hook.
func (x *Mux) CloseAll() {
	x.mu.Lock()
	managers := make([]*Manager, 0, len(x.sessions))
	for _, m := range x.sessions {
		managers = append(managers, m)
	}
	x.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
}

// Len returns the number of registered sessions.
func (x *Mux) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.sessions)
}

func (x *Mux) newManager(sessionID string) *Manager {
	hooks := managerHooks{
		dispatch:    x.dispatch,
		notice:      x.notify,
		fault:       x.fault,
		closed:      x.handleClosed,
		stillWanted: x.stillWanted,
	}
	return newManager(x.ctx, sessionID, x.cfg.Manager, x.factory, x.sched, hooks, x.logger)
}

// dispatch normalizes and delivers one inbound envelope. An envelope
// without a session id is stamped with the id of the channel it
// arrived on — the single normalization point for the two message
// shapes the transport produces.
func (x *Mux) dispatch(sessionID string, env model.Envelope) {
	if env.SessionID == "" {
		env.SessionID = sessionID
	}

	x.mu.Lock()
	fn := x.dispatchFn
	x.mu.Unlock()

	if fn != nil {
		fn(env)
	}
}

func (x *Mux) notify(n Notice) {
	x.mu.Lock()
	fn := x.noticeFn
	x.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

func (x *Mux) fault(f *wire.DecodeFault) {
	x.mu.Lock()
	fn := x.faultFn
	x.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

// handleClosed drops a terminally closed manager's registry entry —
// but only if the registry still maps its session id to this exact
// instance. A replacement manager installed between the close event
// firing and this handler running stays untouched.
func (x *Mux) handleClosed(m *Manager) {
	x.mu.Lock()
	if cur, ok := x.sessions[m.SessionID()]; ok && cur == m {
		delete(x.sessions, m.SessionID())
	}
	x.mu.Unlock()
}

// stillWanted reports whether the registry still maps the manager's
// session id to this exact instance. Probed at reconnect-fire time.
func (x *Mux) stillWanted(m *Manager) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.sessions[m.SessionID()] == m
}
