package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/mathta/backend/internal/model/realtime"
)

// Deps 会话依赖的外部协作者
type Deps struct {
	Media      MediaSource
	NewPeer    PeerFactory
	Negotiator Negotiator
	Board      Snapshotter
	Sink       TurnSink
	Observer   Observer
	AfterFunc  AfterFunc
}

// Session 一次虚拟答疑会话：持有唯一的连接、数据通道与麦克风。
//
// 所有状态变化都经过 Reduce；副作用在持锁时按顺序执行，保证同一轮的定稿事件对不会与下一轮交错。
type Session struct {
	id   string
	deps Deps

	mu     sync.Mutex
	model  Model
	mic    Microphone
	peer   Peer
	timers map[Timer]struct{}
	log    []string

	// peerGen 标记当前连接；旧连接迟到的回调据此丢弃。
	peerGen int
}

// New 创建会话
func New(opts Options, deps Deps) *Session {
	if deps.AfterFunc == nil {
		deps.AfterFunc = realAfterFunc
	}
	return &Session{
		id:     uuid.NewString(),
		deps:   deps,
		model:  NewModel(opts),
		timers: make(map[Timer]struct{}),
	}
}

// ID 会话标识
func (s *Session) ID() string { return s.id }

// View 返回当前可见状态
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Start 申请麦克风、建立连接并通过信令中继完成协商。
//
// 失败时进入 Error 状态并返回错误；可以在同一个会话上再次调用 Start 重试。
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.model.State {
	case StateEnded:
		s.mu.Unlock()
		return ErrEnded
	case StateIdle, StateError:
	default:
		s.mu.Unlock()
		return ErrBusy
	}
	after := s.dispatchLocked(StartRequested{})
	s.mu.Unlock()
	after()

	if s.deps.Media == nil || s.deps.NewPeer == nil || s.deps.Negotiator == nil {
		return s.fail(StateAcquiringMedia, errors.New("session is missing media, peer or negotiator"))
	}

	mic, err := s.deps.Media.Acquire(ctx, DefaultAudioConstraints())
	if err != nil {
		return s.fail(StateAcquiringMedia, &MediaAccessError{Err: err})
	}

	if !s.advance(StateAcquiringMedia, MediaAcquired{}, func() { s.mic = mic }) {
		_ = mic.Stop()
		return ErrEnded
	}

	s.mu.Lock()
	s.peerGen++
	gen := s.peerGen
	s.mu.Unlock()

	peer, err := s.deps.NewPeer(mic, PeerHandlers{
		OnOpen:    func() { s.dispatchFrom(gen, ChannelOpened{}) },
		OnMessage: func(data []byte) { s.handleMessage(gen, data) },
		OnClose:   func() { s.dispatchFrom(gen, ChannelClosed{}) },
	})
	if err != nil {
		return s.fail(StateNegotiating, fmt.Errorf("create peer connection: %w", err))
	}
	if !s.attachPeer(gen, peer) {
		_ = peer.Close()
		return ErrEnded
	}

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		return s.fail(StateNegotiating, fmt.Errorf("create offer: %w", err))
	}

	answer, err := s.deps.Negotiator.Negotiate(ctx, offer)
	if err != nil {
		return s.fail(StateNegotiating, err)
	}

	if !s.stillIn(StateNegotiating) {
		return ErrEnded
	}
	if err := peer.SetAnswer(answer); err != nil {
		return s.fail(StateNegotiating, fmt.Errorf("apply remote description: %w", err))
	}

	if !s.advance(StateNegotiating, Negotiated{}, nil) {
		return ErrEnded
	}
	log.Printf("[session] connected id=%s", s.id)
	return nil
}

// Stop 结束会话；可重复调用。
func (s *Session) Stop() {
	s.dispatch(StopRequested{})
}

// ToggleMute 切换麦克风发送开关，不重新协商。
func (s *Session) ToggleMute() {
	s.dispatch(MuteToggled{})
}

// ToggleTalking 手动模式下开始或结束一轮录音；结束时截取白板。
func (s *Session) ToggleTalking() {
	s.mu.Lock()
	recording := s.model.Turn.Recording
	s.mu.Unlock()

	if !recording {
		s.dispatch(TurnStarted{Source: SourceManual})
		return
	}
	s.dispatch(TurnEnded{Source: SourceManual, Snapshot: s.snapshot()})
}

// SendText 文本输入模式下发送一条消息；空白文本不做任何事。
func (s *Session) SendText(text string) {
	s.mu.Lock()
	connected := s.model.State.connected()
	s.mu.Unlock()
	if !connected || strings.TrimSpace(text) == "" {
		return
	}
	s.dispatch(TextSubmitted{Text: text, Snapshot: s.snapshot()})
}

// SetInputMode 切换音频或文本输入
func (s *Session) SetInputMode(mode InputMode) {
	s.dispatch(ModeChanged{Mode: mode})
}

func (s *Session) handleMessage(gen int, data []byte) {
	evt, err := realtime.Decode(data)
	if err != nil {
		return
	}
	if _, ok := evt.(realtime.SpeechStopped); ok {
		s.dispatchFrom(gen, TurnEnded{Source: SourceServer, Snapshot: s.snapshot()})
		return
	}
	s.dispatchFrom(gen, Received{Event: evt})
}

func (s *Session) snapshot() string {
	if s.deps.Board == nil {
		return ""
	}
	url, err := s.deps.Board.Snapshot()
	if err != nil {
		log.Printf("[session] whiteboard snapshot failed id=%s: %v", s.id, err)
		return ""
	}
	return url
}

func (s *Session) dispatch(in Input) {
	s.mu.Lock()
	after := s.dispatchLocked(in)
	s.mu.Unlock()
	after()
}

// dispatchFrom 只接受当前连接的回调
func (s *Session) dispatchFrom(gen int, in Input) {
	s.mu.Lock()
	if gen != s.peerGen || s.peer == nil {
		s.mu.Unlock()
		return
	}
	after := s.dispatchLocked(in)
	s.mu.Unlock()
	after()
}

// advance 仅当仍处于 expect 状态时投递输入；返回是否成功。
func (s *Session) advance(expect State, in Input, attach func()) bool {
	s.mu.Lock()
	if s.model.State != expect {
		s.mu.Unlock()
		return false
	}
	if attach != nil {
		attach()
	}
	after := s.dispatchLocked(in)
	s.mu.Unlock()
	after()
	return true
}

func (s *Session) attachPeer(gen int, p Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model.State != StateNegotiating || gen != s.peerGen {
		return false
	}
	s.peer = p
	return true
}

func (s *Session) stillIn(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.State == state
}

// fail 在仍处于 expect 状态时转入 Error；若会话已被停止则返回 ErrEnded。
func (s *Session) fail(expect State, err error) error {
	log.Printf("[session] start failed id=%s: %v", s.id, err)
	if !s.advance(expect, Failed{Err: err}, nil) {
		return ErrEnded
	}
	return err
}

// dispatchLocked 运行 reducer 并执行副作用；返回需要在释放锁后执行的回调。
func (s *Session) dispatchLocked(in Input) func() {
	next, effects := Reduce(s.model, in)
	// Stop 在同一步里关闭通道并发送取消事件，以转换前后任一状态为准。
	channelOpen := s.model.ChannelOpen || next.ChannelOpen
	s.model = next

	var deferred []func()
	for _, fx := range effects {
		switch fx := fx.(type) {
		case Send:
			if channelOpen {
				s.sendLocked(fx.Event)
			}
		case AppendLog:
			s.appendLogLocked(fx.Line)
		case Schedule:
			s.scheduleLocked(fx.After, fx.Input)
		case SetMicEnabled:
			if s.mic != nil {
				s.mic.SetEnabled(fx.Enabled)
			}
		case SubmitTurn:
			if s.deps.Sink != nil {
				sub := TurnSubmission{
					SessionID:  s.id,
					Transcript: fx.Transcript,
					Snapshot:   fx.Snapshot,
					Source:     fx.Source,
					At:         time.Now(),
				}
				sink := s.deps.Sink
				deferred = append(deferred, func() { sink.SubmitTurn(context.Background(), sub) })
			}
		case Teardown:
			deferred = append(deferred, s.teardownLocked())
		}
	}

	if obs := s.deps.Observer; obs != nil {
		view := s.viewLocked()
		deferred = append(deferred, func() { obs(view) })
	}

	return func() {
		for _, fn := range deferred {
			fn()
		}
	}
}

func (s *Session) sendLocked(evt realtime.Outbound) {
	if s.peer == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[session] marshal %s failed: %v", evt.EventType(), err)
		return
	}
	if err := s.peer.Send(data); err != nil {
		log.Printf("[session] send %s failed id=%s: %v", evt.EventType(), s.id, err)
	}
}

func (s *Session) appendLogLocked(line string) {
	log.Printf("[session] id=%s %s", s.id, line)
	s.log = append(s.log, line)
	if limit := s.model.Options.LogLimit; len(s.log) > limit {
		s.log = append([]string(nil), s.log[len(s.log)-limit:]...)
	}
}

func (s *Session) scheduleLocked(d time.Duration, in Input) {
	var timer Timer
	timer = s.deps.AfterFunc(d, func() {
		s.mu.Lock()
		if _, ok := s.timers[timer]; !ok {
			s.mu.Unlock()
			return
		}
		delete(s.timers, timer)
		after := s.dispatchLocked(in)
		s.mu.Unlock()
		after()
	})
	s.timers[timer] = struct{}{}
}

// teardownLocked 摘下连接与麦克风，返回在锁外执行的关闭动作。
func (s *Session) teardownLocked() func() {
	peer, mic := s.peer, s.mic
	s.peer, s.mic = nil, nil
	for t := range s.timers {
		t.Stop()
		delete(s.timers, t)
	}

	return func() {
		if peer != nil {
			if err := peer.Close(); err != nil {
				log.Printf("[session] close peer id=%s: %v", s.id, err)
			}
		}
		if mic != nil {
			if err := mic.Stop(); err != nil {
				log.Printf("[session] stop microphone id=%s: %v", s.id, err)
			}
		}
	}
}

func (s *Session) viewLocked() View {
	return View{
		ID:             s.id,
		State:          s.model.State,
		Status:         s.model.Status,
		Subtitles:      s.model.Subtitles,
		UserTranscript: s.model.UserTranscript,
		Muted:          s.model.Muted,
		Talking:        s.model.Turn.Recording,
		ChannelOpen:    s.model.ChannelOpen,
		InputMode:      s.model.InputMode,
		Log:            append([]string(nil), s.log...),
	}
}
