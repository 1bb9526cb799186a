package workspace_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/mathta/backend/internal/handler/workspace"
	"github.com/zhouzirui/mathta/backend/internal/model/tutor"
	"github.com/zhouzirui/mathta/backend/internal/service/pipeline"
	"github.com/zhouzirui/mathta/backend/internal/service/session"
	workspaceservice "github.com/zhouzirui/mathta/backend/internal/service/workspace"
	"github.com/zhouzirui/mathta/backend/internal/whiteboard"
)

type silentMic struct {
	mu      sync.Mutex
	enabled bool
}

func (m *silentMic) SetEnabled(enabled bool) { m.mu.Lock(); m.enabled = enabled; m.mu.Unlock() }
func (m *silentMic) Enabled() bool          { m.mu.Lock(); defer m.mu.Unlock(); return m.enabled }
func (m *silentMic) Stop() error            { return nil }

type silentMedia struct{}

func (silentMedia) Acquire(context.Context, session.AudioConstraints) (session.Microphone, error) {
	return &silentMic{enabled: true}, nil
}

type loopPeer struct {
	mu       sync.Mutex
	handlers session.PeerHandlers
	sent     []string
}

func (p *loopPeer) CreateOffer(context.Context) (string, error) { return "v=0\r\noffer\r\n", nil }

func (p *loopPeer) SetAnswer(string) error {
	go p.handlers.OnOpen()
	return nil
}

func (p *loopPeer) Send(data []byte) error {
	var env struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &env)
	p.mu.Lock()
	p.sent = append(p.sent, env.Type)
	p.mu.Unlock()
	return nil
}

func (p *loopPeer) Close() error { return nil }

func (p *loopPeer) sentTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

type answerNegotiator struct{}

func (answerNegotiator) Negotiate(context.Context, string) (string, error) {
	return "v=0\r\nanswer\r\n", nil
}

type message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

type harness struct {
	svc   *workspaceservice.Service
	conn  *websocket.Conn
	peers chan *loopPeer

	mu    sync.Mutex
	turns []session.TurnSubmission
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{peers: make(chan *loopPeer, 1)}
	opts := session.DefaultOptions()
	opts.InputMode = session.InputText

	h.svc = workspaceservice.NewService(opts, workspaceservice.Deps{
		Media: silentMedia{},
		NewPeer: func(_ session.Microphone, handlers session.PeerHandlers) (session.Peer, error) {
			p := &loopPeer{handlers: handlers}
			h.peers <- p
			return p, nil
		},
		Negotiator: answerNegotiator{},
		Sink: session.TurnSinkFunc(func(_ context.Context, turn session.TurnSubmission) {
			h.mu.Lock()
			h.turns = append(h.turns, turn)
			h.mu.Unlock()
		}),
	})

	r := chi.NewRouter()
	workspace.New(h.svc, tutor.NewMemoryStore(tutor.Seed())).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/workspace/ws?tutor=mathta"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	h.conn = conn
	return h
}

func (h *harness) send(t *testing.T, typ string, data any) {
	t.Helper()
	payload := map[string]any{"type": typ}
	if data != nil {
		payload["data"] = data
	}
	if err := h.conn.WriteJSON(payload); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func (h *harness) readUntil(t *testing.T, match func(message) bool) message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = h.conn.SetReadDeadline(deadline)
		var msg message
		if err := h.conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func stateMatches(fn func(state string, channelOpen bool) bool) func(message) bool {
	return func(m message) bool {
		if m.Type != "state" {
			return false
		}
		var view struct {
			State       string `json:"state"`
			ChannelOpen bool   `json:"channelOpen"`
		}
		_ = json.Unmarshal(m.Data, &view)
		return fn(view.State, view.ChannelOpen)
	}
}

func TestWorkspaceTextTurnRoundTrip(t *testing.T) {
	h := newHarness(t)

	connected := h.readUntil(t, func(m message) bool { return m.Type == "connected" })
	if connected.SessionID == "" || !strings.Contains(string(connected.Data), `"id":"mathta"`) {
		t.Fatalf("unexpected connected message: %s", connected.Data)
	}

	h.send(t, "start", nil)
	h.readUntil(t, stateMatches(func(state string, open bool) bool {
		return state == string(session.StateConnected) && open
	}))

	h.send(t, "text", map[string]string{"text": "What is the derivative of x^2?"})
	h.readUntil(t, stateMatches(func(state string, _ bool) bool {
		return state == string(session.StateAwaitingResponse)
	}))

	peer := <-h.peers
	got := strings.Join(peer.sentTypes(), ",")
	if got != "session.update,conversation.item.create,response.create" {
		t.Fatalf("unexpected outbound sequence: %s", got)
	}

	h.mu.Lock()
	turns := append([]session.TurnSubmission(nil), h.turns...)
	h.mu.Unlock()
	if len(turns) != 1 || turns[0].Transcript != "What is the derivative of x^2?" || turns[0].SessionID != connected.SessionID {
		t.Fatalf("unexpected submitted turns: %+v", turns)
	}
	if !strings.HasPrefix(turns[0].Snapshot, "data:image/jpeg;base64,") {
		t.Fatalf("turn should carry a whiteboard snapshot")
	}

	h.svc.Deliver(pipeline.Review{SessionID: connected.SessionID, Note: "Power rule."})
	review := h.readUntil(t, func(m message) bool { return m.Type == "review" })
	if !strings.Contains(string(review.Data), "Power rule.") {
		t.Fatalf("unexpected review payload: %s", review.Data)
	}
}

func TestWorkspaceStrokeAndClear(t *testing.T) {
	h := newHarness(t)
	connected := h.readUntil(t, func(m message) bool { return m.Type == "connected" })

	h.send(t, "stroke", whiteboard.Stroke{
		Tool:   whiteboard.ToolBrush,
		Color:  "red",
		Points: []whiteboard.Point{{X: 10, Y: 10}, {X: 50, Y: 10}},
	})
	h.send(t, "stroke", map[string]any{"tool": "brush", "color": "chartreuse", "points": []map[string]float64{{"x": 1, "y": 1}}})
	errMsg := h.readUntil(t, func(m message) bool { return m.Type == "error" })
	if !strings.Contains(string(errMsg.Data), "color") {
		t.Fatalf("expected unknown color error, got %s", errMsg.Data)
	}

	entry, err := h.svc.Get(connected.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	red, _ := whiteboard.LookupColor("red")
	if got := entry.Board.At(30, 10); got != red {
		t.Fatalf("expected red ink at (30,10), got %v", got)
	}

	h.send(t, "clear", nil)
	h.send(t, "bogus", nil)
	h.readUntil(t, func(m message) bool { return m.Type == "error" })
	if got := entry.Board.At(30, 10); got.R != 255 || got.G != 255 || got.B != 255 {
		t.Fatalf("board should be white after clear, got %v", got)
	}
}

func TestWorkspaceDisconnectClosesSession(t *testing.T) {
	h := newHarness(t)
	h.readUntil(t, func(m message) bool { return m.Type == "connected" })
	if h.svc.Len() != 1 {
		t.Fatalf("expected one session, got %d", h.svc.Len())
	}

	_ = h.conn.Close()
	deadline := time.Now().Add(5 * time.Second)
	for h.svc.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkspaceOffCanvasStrokeKeepsConnectionResponsive(t *testing.T) {
	h := newHarness(t)
	connected := h.readUntil(t, func(m message) bool { return m.Type == "connected" })

	h.send(t, "stroke", whiteboard.Stroke{
		Tool:   whiteboard.ToolBrush,
		Points: []whiteboard.Point{{X: 0, Y: 20}, {X: 1e12, Y: 20}},
	})
	h.send(t, "bogus", nil)
	h.readUntil(t, func(m message) bool { return m.Type == "error" })

	entry, err := h.svc.Get(connected.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := entry.Board.At(whiteboard.Width-1, 20); got != whiteboard.Palette[0].Color {
		t.Fatalf("expected ink at the canvas edge, got %v", got)
	}
}
