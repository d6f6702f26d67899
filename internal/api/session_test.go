package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/gazereplay/gazereplay/internal/ledger"
	"github.com/gazereplay/gazereplay/internal/protocol"
	"github.com/gazereplay/gazereplay/internal/replay"
)

// fakeSession announces one participant and ends the run on the first
// next-video request.
type fakeSession struct {
	closed chan string
	rec    replay.Recorder
}

func (s *fakeSession) Open(ctx context.Context, snd replay.Sender) error {
	return snd.SendJSON(protocol.NewParticipantInfo(protocol.ParticipantInfo{ScreenWidthPixels: 1920}))
}

func (s *fakeSession) HandleMessage(ctx context.Context, snd replay.Sender, data []byte) error {
	id, err := protocol.Peek(data)
	if err != nil {
		return nil
	}
	if id == protocol.MsgNextVideo {
		return replay.ErrRunComplete
	}
	if err := snd.SendJSON(protocol.NewVideoEnd()); err != nil {
		return err
	}
	return snd.SendBinary([]byte{1, 2, 3, 4})
}

func (s *fakeSession) Close(ctx context.Context, reason string) {
	select {
	case s.closed <- reason:
	default:
	}
}

func (s *fakeSession) Snapshot() replay.Status {
	return replay.Status{Participant: "P_01", Participants: 1}
}

type sessionHarness struct {
	server   *httptest.Server
	manager  *SessionManager
	repo     *ledger.SQLiteRepository
	sessions chan *fakeSession
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	h := &sessionHarness{repo: testRepo(t), sessions: make(chan *fakeSession, 4)}
	h.manager = NewSessionManager(func(rec replay.Recorder) ReplaySession {
		s := &fakeSession{closed: make(chan string, 1), rec: rec}
		h.sessions <- s
		return s
	}, h.repo, nil, discardLogger())

	cfg := testConfig()
	cfg.Sessions = h.manager
	cfg.Ledger = h.repo
	h.server = httptest.NewServer(NewRouter(cfg))
	t.Cleanup(h.server.Close)
	return h
}

func (h *sessionHarness) dial(t *testing.T) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/websocket"
	return websocket.DefaultDialer.Dial(url, nil)
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("message kind = %d, want text", kind)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

// waitRun polls the ledger until the only run reaches a final status.
func waitRun(t *testing.T, repo ledger.Repository) *ledger.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runs, err := repo.ListRuns(context.Background(), 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) == 1 && runs[0].Status != ledger.RunStatusRunning {
			return runs[0]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run never finished")
	return nil
}

func TestWebSocket_RunToCompletion(t *testing.T) {
	h := newSessionHarness(t)

	conn, _, err := h.dial(t)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	info := readJSON(t, conn)
	if info["msgID"] != "0" || info["screenWidthPixels"] != "1920" {
		t.Fatalf("participant info = %v", info)
	}

	sess := <-h.sessions
	if sess.rec == nil {
		t.Error("session was not given a ledger recorder")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"msgID":"3"}`)); err != nil {
		t.Fatal(err)
	}
	if end := readJSON(t, conn); end["msgID"] != "4" {
		t.Errorf("expected video end, got %v", end)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if kind, data, err := conn.ReadMessage(); err != nil || kind != websocket.BinaryMessage || len(data) != 4 {
		t.Fatalf("binary frame: kind=%d len=%d err=%v", kind, len(data), err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"msgID":"1"}`)); err != nil {
		t.Fatal(err)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure, got %v", err)
	}

	select {
	case <-h.manager.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done() not closed after run completed")
	}

	if run := waitRun(t, h.repo); run.Status != ledger.RunStatusCompleted {
		t.Errorf("run status = %s, want completed", run.Status)
	}
}

func TestWebSocket_SecondSessionRefused(t *testing.T) {
	h := newSessionHarness(t)

	first, _, err := h.dial(t)
	if err != nil {
		t.Fatalf("first Dial() error = %v", err)
	}
	defer first.Close()
	readJSON(t, first)

	_, resp, err := h.dial(t)
	if err == nil {
		t.Fatal("second Dial() should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("second Dial() response = %v, want 409", resp)
	}

	st, active := h.manager.Snapshot()
	if !active || st.Participant != "P_01" {
		t.Errorf("Snapshot() = %+v, %v", st, active)
	}
}

func TestWebSocket_DisconnectInterruptsSession(t *testing.T) {
	h := newSessionHarness(t)

	conn, _, err := h.dial(t)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	readJSON(t, conn)
	sess := <-h.sessions
	conn.Close()

	select {
	case reason := <-sess.closed:
		if reason != "client disconnected" {
			t.Errorf("close reason = %q", reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session was not closed after disconnect")
	}

	if run := waitRun(t, h.repo); run.Status != ledger.RunStatusDisconnected {
		t.Errorf("run status = %s, want disconnected", run.Status)
	}

	// the slot is free again
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, active := h.manager.Snapshot(); !active {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session slot never released")
		}
		time.Sleep(10 * time.Millisecond)
	}
	again, _, err := h.dial(t)
	if err != nil {
		t.Fatalf("reconnect Dial() error = %v", err)
	}
	again.Close()
}
