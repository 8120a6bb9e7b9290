package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lanternchat/streamhub/internal/model"
	"github.com/lanternchat/streamhub/internal/transport"
	"github.com/lanternchat/streamhub/internal/wire"
)

// managerHooks are the callbacks a Manager's owner wires in. All are
// optional except dispatch.
type managerHooks struct {
	// dispatch receives every decoded envelope from this session.
	dispatch func(sessionID string, env model.Envelope)

	// notice receives connection-level notifications.
	notice NoticeHandler

	// fault receives recoverable decode faults (for metrics; the
	// decoders already log them).
	fault wire.FaultHandler

	// closed fires once when the manager reaches its terminal state,
	// so the owner can drop its registry entry.
	closed func(m *Manager)

	// stillWanted is probed when a reconnect timer fires, never when
	// it is scheduled. Returning false abandons the session instead
	// of reconnecting it.
	stillWanted func(m *Manager) bool
}

// Manager owns one logical session's connection lifecycle: a single
// transport at a time, the session's decoders, the pre-open outbound
// queue, and the reconnect state machine.
type Manager struct {
	sessionID string
	cfg       ManagerConfig
	factory   transport.Factory
	sched     Scheduler
	logger    *slog.Logger
	hooks     managerHooks
	ctx       context.Context

	frames *wire.FrameDecoder
	text   *wire.TextDecoder

	mu         sync.Mutex
	phase      Phase
	attempt    int
	pendingOut []model.Envelope
	tr         transport.Transport
	reconnect  Timer
	closed     bool
}

func newManager(ctx context.Context, sessionID string, cfg ManagerConfig, factory transport.Factory, sched Scheduler, hooks managerHooks, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	m := &Manager{
		sessionID: sessionID,
		cfg:       cfg,
		factory:   factory,
		sched:     sched,
		logger:    logger.With("session_id", sessionID),
		hooks:     hooks,
		ctx:       ctx,
	}

	emit := func(env model.Envelope) {
		m.hooks.dispatch(m.sessionID, env)
	}
	m.frames = wire.NewFrameDecoder(cfg.frameDecoderConfig(), emit, m.hooks.fault, m.logger)
	m.text = wire.NewTextDecoder(cfg.textDecoderConfig(), emit, m.handleOverflow, m.logger)
	return m
}

// SessionID returns the session this manager owns.
func (m *Manager) SessionID() string { return m.sessionID }

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Usable reports whether the manager can still carry traffic for its
// session (not in its terminal state).
func (m *Manager) Usable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// Connect starts connecting if the manager is Disconnected. A no-op
// while Connecting or Connected, and after the terminal close. The
// dial happens off the caller's goroutine; Connect returns once the
// phase is Connecting.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.closed || m.phase != PhaseDisconnected {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseConnecting

	var tr transport.Transport
	tr = m.factory(m.sessionID, transport.Handlers{
		OnOpen:   func() { m.handleOpen(tr) },
		OnBinary: func(data []byte) { m.frames.Feed(data) },
		OnText:   m.handleText,
		OnClose:  func(code int, reason string) { m.handleClose(tr, code, reason) },
		OnError: func(err error) {
			m.logger.Warn("transport error", "error", err)
		},
	})
	m.tr = tr
	m.mu.Unlock()

	go func() {
		if err := tr.Connect(m.ctx); err != nil {
			m.logger.Warn("connect failed", "error", err)
			m.handleClose(tr, transport.CodeAbnormal, err.Error())
		}
	}()
}

// Send transmits an envelope over the session's transport. While
// Connecting the envelope is queued and flushed in FIFO order on open.
// While Disconnected the manager auto-connects and queues — a send is
// never silently dropped. Only a terminally closed manager rejects.
func (m *Manager) Send(env model.Envelope) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	switch m.phase {
	case PhaseConnected:
		tr := m.tr
		m.mu.Unlock()
		return m.transmit(tr, env)
	case PhaseConnecting:
		m.pendingOut = append(m.pendingOut, env)
		m.mu.Unlock()
		return nil
	default:
		m.pendingOut = append(m.pendingOut, env)
		m.mu.Unlock()
		m.Connect()
		return nil
	}
}

// Interrupt sends the interrupt control signal, best effort: nothing
// happens unless the session is currently Connected, and no
// acknowledgment is awaited.
func (m *Manager) Interrupt() {
	m.mu.Lock()
	tr := m.tr
	connected := m.phase == PhaseConnected && !m.closed
	m.mu.Unlock()
	if !connected {
		return
	}
	if err := m.transmit(tr, model.NewInterrupt(m.sessionID)); err != nil {
		m.logger.Debug("interrupt send failed", "error", err)
	}
}

// Close tears the session down for good: cancels any pending
// reconnect, closes the transport, and reports the terminal state.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.phase = PhaseDisconnected
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	tr := m.tr
	m.tr = nil
	m.pendingOut = nil
	m.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
	m.reportClosed()
}

// transmit encodes the envelope as one binary frame and writes it.
func (m *Manager) transmit(tr transport.Transport, env model.Envelope) error {
	frame, err := wire.EncodeFrame(env, m.cfg.CompressThreshold)
	if err != nil {
		return err
	}
	return tr.SendBinary(frame)
}

// handleOpen flushes the pre-open queue in FIFO order and resets the
// backoff counter. Events from a superseded transport are ignored.
func (m *Manager) handleOpen(tr transport.Transport) {
	m.mu.Lock()
	if m.closed || m.tr != tr {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseConnected
	m.attempt = 0
	queued := m.pendingOut
	m.pendingOut = nil
	m.mu.Unlock()

	m.logger.Info("session connected", "queued_sends", len(queued))

	for _, env := range queued {
		if err := m.transmit(tr, env); err != nil {
			m.logger.Warn("queued send failed", "error", err)
		}
	}
}

// handleText feeds the text decoder and logs the advisory
// backpressure signal.
func (m *Manager) handleText(chunk string) {
	if err := m.text.Append(chunk); err != nil {
		// Overflow; already reported through handleOverflow.
		return
	}
	if m.cfg.BackpressureInterval > 0 && m.text.ShouldApplyBackpressure(m.cfg.BackpressureInterval) {
		m.logger.Warn("text stream outrunning parser",
			"buffered_bytes", m.cfg.BackpressureInterval,
			"received_bytes", m.text.BytesReceived(),
		)
	}
}

func (m *Manager) handleOverflow(total int) {
	m.notify(Notice{
		Kind: NoticeOverflow,
		Err:  &wire.OverflowError{Received: total, Max: m.cfg.TextBufferSize},
	})
}

// handleClose classifies the close code and either finishes the
// session or schedules a reconnect. Close events from superseded
// transports are ignored.
func (m *Manager) handleClose(tr transport.Transport, code int, reason string) {
	m.mu.Lock()
	if m.closed || m.tr != tr {
		m.mu.Unlock()
		return
	}
	m.tr = nil
	m.phase = PhaseDisconnected

	switch code {
	case transport.CodeNormal, transport.CodeIdleTimeout:
		// Intentional or idle close: the session is done.
		m.closed = true
		m.mu.Unlock()
		m.logger.Info("session closed by server", "code", code, "reason", reason)
		m.notify(Notice{Kind: NoticeClosed, CloseCode: code})
		m.reportClosed()
		return
	}

	if m.attempt >= m.cfg.MaxAttempts {
		m.closed = true
		attempt := m.attempt
		m.mu.Unlock()
		m.logger.Error("reconnect attempts exhausted", "attempts", attempt, "code", code)
		m.notify(Notice{Kind: NoticeReconnectExhausted, CloseCode: code, Attempt: attempt})
		m.reportClosed()
		return
	}

	delay := m.cfg.BaseDelay << m.attempt
	if delay > m.cfg.MaxDelay {
		delay = m.cfg.MaxDelay
	}
	if code == transport.CodeCapacityExceeded {
		// Server concurrency limit: back off twice as hard.
		delay *= 2
	}
	attempt := m.attempt
	m.attempt++
	m.reconnect = m.sched.AfterFunc(delay, m.fireReconnect)
	m.mu.Unlock()

	m.logger.Warn("session disconnected, reconnect scheduled",
		"code", code,
		"reason", reason,
		"attempt", attempt,
		"delay", delay,
	)
	m.notify(Notice{Kind: NoticeReconnecting, CloseCode: code, Attempt: attempt, Delay: delay})
}

// fireReconnect runs when the backoff timer fires. Whether the session
// is still wanted is checked now, not when the timer was scheduled, so
// sessions abandoned in the meantime stay down.
func (m *Manager) fireReconnect() {
	m.mu.Lock()
	m.reconnect = nil
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if m.hooks.stillWanted != nil && !m.hooks.stillWanted(m) {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		m.logger.Info("reconnect abandoned, session no longer wanted")
		m.reportClosed()
		return
	}

	m.Connect()
}

func (m *Manager) notify(n Notice) {
	if m.hooks.notice == nil {
		return
	}
	n.SessionID = m.sessionID
	m.hooks.notice(n)
}

func (m *Manager) reportClosed() {
	if m.hooks.closed != nil {
		m.hooks.closed(m)
	}
}
