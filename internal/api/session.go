package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gazereplay/gazereplay/internal/ledger"
	"github.com/gazereplay/gazereplay/internal/logging"
	"github.com/gazereplay/gazereplay/internal/metrics"
	"github.com/gazereplay/gazereplay/internal/protocol"
	"github.com/gazereplay/gazereplay/internal/replay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// ReplaySession is one client's walk through the dataset.
type ReplaySession interface {
	Open(ctx context.Context, s replay.Sender) error
	HandleMessage(ctx context.Context, s replay.Sender, data []byte) error
	Close(ctx context.Context, reason string)
	Snapshot() replay.Status
}

// SessionFactory builds a session for a new connection. rec is nil when no
// ledger is configured.
type SessionFactory func(rec replay.Recorder) ReplaySession

// SessionManager admits at most one WebSocket session at a time.
type SessionManager struct {
	factory        SessionFactory
	repo           ledger.Repository
	allowedOrigins []string
	logger         *slog.Logger

	mu      sync.Mutex
	busy    bool
	active  ReplaySession
	last    *replay.Status
	done    chan struct{}
	doneOne sync.Once
}

// NewSessionManager wires the WebSocket endpoint. repo may be nil. An empty
// allowedOrigins accepts any origin.
func NewSessionManager(factory SessionFactory, repo ledger.Repository, allowedOrigins []string, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		factory:        factory,
		repo:           repo,
		allowedOrigins: allowedOrigins,
		logger:         logging.WithComponent(logger, "websocket"),
		done:           make(chan struct{}),
	}
}

// Done is closed once a session has visited every participant.
func (m *SessionManager) Done() <-chan struct{} {
	return m.done
}

// Snapshot reports the active session, or the last one to end.
func (m *SessionManager) Snapshot() (replay.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return m.active.Snapshot(), true
	}
	if m.last != nil {
		return *m.last, false
	}
	return replay.Status{}, false
}

func (m *SessionManager) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return false
	}
	m.busy = true
	return true
}

func (m *SessionManager) setActive(s ReplaySession) {
	m.mu.Lock()
	m.active = s
	m.mu.Unlock()
}

func (m *SessionManager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		st := m.active.Snapshot()
		m.last = &st
	}
	m.active = nil
	m.busy = false
}

func (m *SessionManager) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || originAllowed(origin, m.allowedOrigins) {
		return true
	}
	m.logger.Warn("websocket connection rejected from unauthorized origin", "origin", origin)
	return false
}

// ServeHTTP upgrades the connection and runs the session until the client
// leaves or the dataset is exhausted.
func (m *SessionManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !m.acquire() {
		m.logger.Warn("refusing second websocket session", "remote_addr", r.RemoteAddr)
		WriteError(w, http.StatusConflict, "a replay session is already active", "SESSION_ACTIVE")
		return
	}
	defer m.release()

	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  64 * 1024,
		CheckOrigin:      m.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	rec, recorder := m.startRun(r)
	session := m.factory(recorder)
	m.setActive(session)

	logger := m.logger.With("remote_addr", r.RemoteAddr)
	if rec != nil {
		logger = logging.WithRunID(logger, rec.RunID())
	}
	logger.Info("client connected")

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	status, reason := m.run(r.Context(), conn, session, logger)
	if rec != nil {
		m.finishRun(rec, status, reason)
	}
	logger.Info("session ended", "status", status, "reason", reason)
}

// run pumps inbound messages into the session. Writes happen on this
// goroutine only, apart from pings.
func (m *SessionManager) run(ctx context.Context, conn *websocket.Conn, session ReplaySession, logger *slog.Logger) (string, string) {
	sender := &wsSender{conn: conn}

	stopPing := make(chan struct{})
	defer close(stopPing)
	go pingLoop(conn, stopPing)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := session.Open(ctx, sender); err != nil {
		return m.ended(conn, err, logger)
	}

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("unexpected websocket close", "error", err)
			}
			session.Close(ctx, "client disconnected")
			return ledger.RunStatusDisconnected, ""
		}
		if kind != websocket.TextMessage {
			logger.Warn("ignoring non-text message")
			continue
		}
		if err := session.HandleMessage(ctx, sender, data); err != nil {
			session.Close(ctx, err.Error())
			return m.ended(conn, err, logger)
		}
	}
}

func (m *SessionManager) ended(conn *websocket.Conn, err error, logger *slog.Logger) (string, string) {
	if errors.Is(err, replay.ErrRunComplete) {
		closeConn(conn, websocket.CloseNormalClosure, "all participants completed")
		m.doneOne.Do(func() { close(m.done) })
		return ledger.RunStatusCompleted, ""
	}
	logger.Error("session failed", "error", err)
	closeConn(conn, websocket.CloseInternalServerErr, "replay failed")
	return ledger.RunStatusFailed, err.Error()
}

func (m *SessionManager) startRun(r *http.Request) (*ledger.RunRecorder, replay.Recorder) {
	if m.repo == nil {
		return nil, nil
	}
	rec, err := ledger.StartRun(r.Context(), m.repo, r.RemoteAddr)
	if err != nil {
		m.logger.Warn("ledger: start run", "error", err)
		return nil, nil
	}
	return rec, rec
}

func (m *SessionManager) finishRun(rec *ledger.RunRecorder, status, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rec.Finish(ctx, status, reason); err != nil {
		m.logger.Warn("ledger: finish run", "error", err)
	}
}

func pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// wsSender writes protocol messages as text frames and pixels as binary
// frames.
type wsSender struct {
	conn *websocket.Conn
}

func (s *wsSender) SendJSON(v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, data)
}

func (s *wsSender) SendBinary(b []byte) error {
	return s.write(websocket.BinaryMessage, b)
}

func (s *wsSender) write(kind int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(kind, data)
}
