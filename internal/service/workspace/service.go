package workspace

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/mathta/backend/internal/model/tutor"
	"github.com/zhouzirui/mathta/backend/internal/service/pipeline"
	"github.com/zhouzirui/mathta/backend/internal/service/session"
	"github.com/zhouzirui/mathta/backend/internal/whiteboard"
)

var ErrSessionNotFound = errors.New("workspace session not found")

// Listener 接收会话状态与点评推送
type Listener interface {
	OnView(view session.View)
	OnReview(review pipeline.Review)
}

// Deps 新建会话所需的协作者
type Deps struct {
	Media      session.MediaSource
	NewPeer    session.PeerFactory
	Negotiator session.Negotiator
	Sink       session.TurnSink
	// OnClose 会话移除后回调，用于清理下游状态（如点评历史）。
	OnClose func(sessionID string)
}

// Entry 工作区中的一次答疑：会话、白板与助教。
type Entry struct {
	Session   *session.Session
	Board     *whiteboard.Board
	Tutor     tutor.Tutor
	CreatedAt time.Time

	listener Listener
}

// Service 管理服务端托管的答疑会话，按会话 ID 索引。
type Service struct {
	opts session.Options
	deps Deps

	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewService bootstraps the in-memory session registry.
func NewService(opts session.Options, deps Deps) *Service {
	return &Service{
		opts:    opts,
		deps:    deps,
		entries: make(map[string]*Entry),
	}
}

// Open 为助教创建新会话，会话尚未开始连接。
func (s *Service) Open(t tutor.Tutor, listener Listener) *Entry {
	opts := s.opts
	if t.Voice != "" {
		opts.Voice = t.Voice
	}
	opts.Instructions = t.Instructions()

	board := whiteboard.New()
	entry := &Entry{Board: board, Tutor: t, CreatedAt: time.Now().UTC(), listener: listener}

	var observer session.Observer
	if listener != nil {
		observer = listener.OnView
	}
	entry.Session = session.New(opts, session.Deps{
		Media:      s.deps.Media,
		NewPeer:    s.deps.NewPeer,
		Negotiator: s.deps.Negotiator,
		Board:      board,
		Sink:       s.deps.Sink,
		Observer:   observer,
	})

	s.mu.Lock()
	s.entries[entry.Session.ID()] = entry
	s.mu.Unlock()

	log.Printf("[workspace] opened session=%s tutor=%s", entry.Session.ID(), t.ID)
	return entry
}

// Get retrieves an entry by session identifier.
func (s *Service) Get(sessionID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

// Deliver 把点评推送给所属会话的监听者；会话已关闭时丢弃。
func (s *Service) Deliver(review pipeline.Review) {
	entry, err := s.Get(review.SessionID)
	if err != nil {
		log.Printf("[workspace] drop review for closed session=%s", review.SessionID)
		return
	}
	if entry.listener != nil {
		entry.listener.OnReview(review)
	}
}

// Close 停止并移除会话
func (s *Service) Close(sessionID string) error {
	s.mu.Lock()
	entry, ok := s.entries[sessionID]
	delete(s.entries, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	entry.Session.Stop()
	if s.deps.OnClose != nil {
		s.deps.OnClose(sessionID)
	}
	log.Printf("[workspace] closed session=%s", sessionID)
	return nil
}

// CloseAll 关闭全部会话，服务退出时调用。
func (s *Service) CloseAll() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		_ = s.Close(id)
	}
}

// Len 当前会话数量
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
