package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/mathta/backend/internal/model/tutor"
	"github.com/zhouzirui/mathta/backend/internal/service/pipeline"
	"github.com/zhouzirui/mathta/backend/internal/service/session"
	workspaceservice "github.com/zhouzirui/mathta/backend/internal/service/workspace"
	"github.com/zhouzirui/mathta/backend/internal/whiteboard"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second

	// 单条消息上限，足够容纳一笔 whiteboard.MaxStrokePoints 个点的笔画
	maxMessageSize = 512 << 10
)

// Handler WebSocket 工作区：每个连接托管一个服务端会话和一块白板。
type Handler struct {
	svc      *workspaceservice.Service
	tutors   tutor.Store
	upgrader websocket.Upgrader
}

// New 创建工作区处理器
func New(svc *workspaceservice.Service, tutors tutor.Store) *Handler {
	return &Handler{
		svc:    svc,
		tutors: tutors,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册工作区路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/workspace/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type textMessage struct {
	Text string `json:"text"`
}

type modeMessage struct {
	Mode session.InputMode `json:"mode"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type viewPayload struct {
	State          session.State     `json:"state"`
	Status         string            `json:"status"`
	Subtitles      string            `json:"subtitles"`
	UserTranscript string            `json:"userTranscript"`
	Muted          bool              `json:"muted"`
	Talking        bool              `json:"talking"`
	ChannelOpen    bool              `json:"channelOpen"`
	InputMode      session.InputMode `json:"inputMode"`
	Log            []string          `json:"log"`
}

type connectedPayload struct {
	Tutor tutor.Tutor `json:"tutor"`
}

type reviewPayload struct {
	Note string    `json:"note"`
	At   time.Time `json:"at"`
}

// client 串行化对同一连接的写入；会话回调可能来自任意 goroutine。
type client struct {
	conn *websocket.Conn

	mu        sync.Mutex
	sessionID string
}

func (c *client) write(msg outgoingMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.SessionID == "" {
		msg.SessionID = c.sessionID
	}
	msg.Timestamp = time.Now().Unix()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[workspace] write %s failed: %v", msg.Type, err)
	}
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (c *client) bind(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

func (c *client) OnView(v session.View) {
	c.write(outgoingMessage{Type: "state", Data: toViewPayload(v)})
}

func (c *client) OnReview(r pipeline.Review) {
	c.write(outgoingMessage{Type: "review", Data: reviewPayload{Note: r.Note, At: r.At}})
}

func (c *client) sendError(message string) {
	c.write(outgoingMessage{Type: "error", Data: map[string]string{"message": message}})
}

func toViewPayload(v session.View) viewPayload {
	logLines := v.Log
	if logLines == nil {
		logLines = []string{}
	}
	return viewPayload{
		State:          v.State,
		Status:         v.Status,
		Subtitles:      v.Subtitles,
		UserTranscript: v.UserTranscript,
		Muted:          v.Muted,
		Talking:        v.Talking,
		ChannelOpen:    v.ChannelOpen,
		InputMode:      v.InputMode,
		Log:            logLines,
	}
}

// handleWebSocket 处理工作区连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		http.Error(w, "workspace unavailable", http.StatusServiceUnavailable)
		return
	}

	t, ok := tutor.Resolve(h.tutors, r.URL.Query().Get("tutor"))
	if !ok {
		http.Error(w, "tutor not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[workspace] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	entry := h.svc.Open(t, c)
	sessionID := entry.Session.ID()
	c.bind(sessionID)
	defer func() {
		_ = h.svc.Close(sessionID)
	}()

	log.Printf("[workspace] new connection session=%s tutor=%s", sessionID, t.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, c)

	c.write(outgoingMessage{Type: "connected", Data: connectedPayload{Tutor: t}})
	c.OnView(entry.Session.View())

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[workspace] read error session=%s: %v", sessionID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		h.handleMessage(ctx, c, entry, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *client, entry *workspaceservice.Entry, msg *inboundMessage) {
	sess := entry.Session

	switch msg.Type {
	case "start":
		go func() {
			if err := sess.Start(ctx); err != nil && !errors.Is(err, session.ErrBusy) {
				log.Printf("[workspace] start failed session=%s: %v", sess.ID(), err)
			}
		}()
	case "stop":
		sess.Stop()
	case "mute":
		sess.ToggleMute()
	case "talk":
		sess.ToggleTalking()
	case "text":
		var payload textMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid text payload")
			return
		}
		sess.SendText(payload.Text)
	case "mode":
		var payload modeMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("invalid mode payload")
			return
		}
		switch payload.Mode {
		case session.InputAudio, session.InputText:
			sess.SetInputMode(payload.Mode)
		default:
			c.sendError("unknown input mode")
		}
	case "stroke":
		var stroke whiteboard.Stroke
		if err := json.Unmarshal(msg.Data, &stroke); err != nil {
			c.sendError("invalid stroke payload")
			return
		}
		if err := entry.Board.Draw(stroke); err != nil {
			c.sendError(err.Error())
		}
	case "clear":
		entry.Board.Clear()
	default:
		c.sendError("unsupported message type")
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
