package session

import (
	"strings"
	"time"

	"github.com/zhouzirui/mathta/backend/internal/model/realtime"
)

// State 会话状态
type State string

const (
	StateIdle             State = "idle"
	StateAcquiringMedia   State = "acquiring_media"
	StateNegotiating      State = "negotiating"
	StateConnected        State = "connected"
	StateListening        State = "listening"
	StateAwaitingResponse State = "awaiting_response"
	StateError            State = "error"
	StateEnded            State = "ended"
)

// 界面状态文案
const (
	StatusReady           = "Ready to start"
	StatusRequestingMic   = "Requesting microphone…"
	StatusConnecting      = "Connecting…"
	StatusConnected       = "Connected — press Talk"
	StatusListening       = "Listening…"
	StatusProcessing      = "Processing…"
	StatusMuted           = "Muted"
	StatusUnmuted         = "Ready — press Talk"
	StatusEnded           = "Session ended"
	statusErrorPrefix     = "Error: "
	statusUnknownErrorMsg = "Unknown"
)

// connected 表示已建立连接（含轮次内的子状态）
func (s State) connected() bool {
	return s == StateConnected || s == StateListening || s == StateAwaitingResponse
}

// Turn 当前轮次的累积状态。新轮次开始或定稿后整体重置。
type Turn struct {
	Seq       int
	Source    Source
	Recording bool
	Ended     bool
	Partial   string
	Snapshot  string
	Finalized bool
}

// Model 会话状态机的完整状态
type Model struct {
	Options Options

	State          State
	Status         string
	Err            string
	InputMode      InputMode
	Muted          bool
	ChannelOpen    bool
	Turn           Turn
	TurnSeq        int
	Subtitles      string
	SubtitleGen    int
	UserTranscript string
	TranscriptGen  int
}

// NewModel 创建初始状态
func NewModel(opts Options) Model {
	opts = opts.normalized()
	return Model{
		Options:   opts,
		State:     StateIdle,
		Status:    StatusReady,
		InputMode: opts.InputMode,
	}
}

// Input 状态机输入
type Input interface{ input() }

type (
	StartRequested struct{}
	MediaAcquired  struct{}
	Negotiated     struct{}
	Failed         struct{ Err error }
	ChannelOpened  struct{}
	ChannelClosed  struct{}
	TurnStarted    struct{ Source Source }
	TurnEnded      struct {
		Source   Source
		Snapshot string
	}
	TextSubmitted struct {
		Text     string
		Snapshot string
	}
	Received            struct{ Event realtime.Inbound }
	FinalizeTimeout     struct{ Seq int }
	ClearSubtitles      struct{ Gen int }
	ClearUserTranscript struct{ Gen int }
	MuteToggled         struct{}
	ModeChanged         struct{ Mode InputMode }
	StopRequested       struct{}
)

func (StartRequested) input()      {}
func (MediaAcquired) input()       {}
func (Negotiated) input()          {}
func (Failed) input()              {}
func (ChannelOpened) input()       {}
func (ChannelClosed) input()       {}
func (TurnStarted) input()         {}
func (TurnEnded) input()           {}
func (TextSubmitted) input()       {}
func (Received) input()            {}
func (FinalizeTimeout) input()     {}
func (ClearSubtitles) input()      {}
func (ClearUserTranscript) input() {}
func (MuteToggled) input()         {}
func (ModeChanged) input()         {}
func (StopRequested) input()       {}

// Effect 状态机要求执行的副作用
type Effect interface{ effect() }

type (
	// Send 通过数据通道发送一条事件
	Send struct{ Event realtime.Outbound }
	// SubmitTurn 将完成的轮次交给下游
	SubmitTurn struct {
		Transcript string
		Snapshot   string
		Source     Source
	}
	// AppendLog 追加一行会话日志
	AppendLog struct{ Line string }
	// Schedule 延迟投递一个输入
	Schedule struct {
		After time.Duration
		Input Input
	}
	// SetMicEnabled 切换麦克风发送开关
	SetMicEnabled struct{ Enabled bool }
	// Teardown 关闭数据通道、连接与麦克风
	Teardown struct{}
)

func (Send) effect()          {}
func (SubmitTurn) effect()    {}
func (AppendLog) effect()     {}
func (Schedule) effect()      {}
func (SetMicEnabled) effect() {}
func (Teardown) effect()      {}

// Reduce 纯函数：根据当前状态与输入计算新状态和副作用，不做任何 I/O。
func Reduce(m Model, in Input) (Model, []Effect) {
	var fx []Effect

	switch in := in.(type) {
	case StartRequested:
		if m.State != StateIdle && m.State != StateError {
			return m, nil
		}
		m.State = StateAcquiringMedia
		m.Status = StatusRequestingMic
		m.Err = ""
		m.Muted = false

	case MediaAcquired:
		if m.State != StateAcquiringMedia {
			return m, nil
		}
		m.State = StateNegotiating
		m.Status = StatusConnecting

	case Negotiated:
		if m.State != StateNegotiating {
			return m, nil
		}
		m.State = StateConnected
		m.Status = StatusConnected

	case Failed:
		if m.State == StateEnded {
			return m, nil
		}
		msg := statusUnknownErrorMsg
		if in.Err != nil && in.Err.Error() != "" {
			msg = in.Err.Error()
		}
		m.State = StateError
		m.Err = msg
		m.Status = statusErrorPrefix + msg
		m.ChannelOpen = false
		m.Turn = Turn{}
		fx = append(fx, AppendLog{Line: "ERROR: " + msg}, Teardown{})

	case ChannelOpened:
		if m.State == StateEnded || m.State == StateError {
			return m, nil
		}
		m.ChannelOpen = true
		if m.State.connected() || m.State == StateNegotiating {
			m.Status = StatusConnected
		}
		fx = append(fx, Send{Event: m.Options.SessionUpdate()})

	case ChannelClosed:
		if !m.ChannelOpen {
			return m, nil
		}
		m.ChannelOpen = false
		if m.State.connected() {
			fx = append(fx, AppendLog{Line: "data channel closed"})
		}

	case TurnStarted:
		m, fx = startTurn(m, in.Source)

	case TurnEnded:
		m, fx = endTurn(m, in.Source, in.Snapshot)

	case TextSubmitted:
		text := strings.TrimSpace(in.Text)
		if text == "" || !m.State.connected() || m.Turn.Recording {
			return m, nil
		}
		if m.Turn.Ended && !m.Turn.Finalized {
			m, fx = finalize(m, strings.TrimSpace(m.Turn.Partial))
		}
		m, fx = showUserTranscript(m, fx, text)
		m.TurnSeq++
		m.Turn = Turn{Seq: m.TurnSeq, Source: SourceText, Ended: true, Snapshot: in.Snapshot}
		var more []Effect
		m, more = finalize(m, text)
		fx = append(fx, more...)

	case Received:
		m, fx = receive(m, in.Event)

	case FinalizeTimeout:
		if m.Turn.Seq != in.Seq || !m.Turn.Ended || m.Turn.Finalized {
			return m, nil
		}
		m, fx = finalize(m, strings.TrimSpace(m.Turn.Partial))

	case ClearSubtitles:
		if in.Gen == m.SubtitleGen {
			m.Subtitles = ""
		}

	case ClearUserTranscript:
		if in.Gen == m.TranscriptGen {
			m.UserTranscript = ""
		}

	case MuteToggled:
		if m.State != StateNegotiating && !m.State.connected() {
			return m, nil
		}
		m.Muted = !m.Muted
		if m.Muted {
			m.Status = StatusMuted
		} else {
			m.Status = StatusUnmuted
		}
		fx = append(fx, SetMicEnabled{Enabled: !m.Muted})

	case ModeChanged:
		if in.Mode != InputAudio && in.Mode != InputText {
			return m, nil
		}
		m.InputMode = in.Mode

	case StopRequested:
		if m.State == StateEnded {
			return m, nil
		}
		if m.ChannelOpen {
			fx = append(fx,
				Send{Event: realtime.CancelResponse()},
				Send{Event: realtime.ClearOutputAudio()},
			)
		}
		fx = append(fx, Teardown{})
		m.State = StateEnded
		m.Status = StatusEnded
		m.ChannelOpen = false
		m.Muted = false
		m.Subtitles = ""
		m.UserTranscript = ""
		m.Turn = Turn{}
	}

	return m, fx
}

func startTurn(m Model, source Source) (Model, []Effect) {
	if !m.State.connected() || m.Turn.Recording {
		return m, nil
	}
	if !sourceAllowed(m, source) {
		return m, nil
	}
	if source == SourceManual && (m.Muted || m.InputMode != InputAudio) {
		return m, nil
	}

	var fx []Effect
	if m.Turn.Ended && !m.Turn.Finalized {
		m, fx = finalize(m, strings.TrimSpace(m.Turn.Partial))
	}

	m.TurnSeq++
	m.Turn = Turn{Seq: m.TurnSeq, Source: source, Recording: true}
	m.State = StateListening
	m.Status = StatusListening
	if source == SourceManual {
		fx = append(fx, Send{Event: realtime.ClearInputAudio()})
	}
	return m, fx
}

func endTurn(m Model, source Source, snapshot string) (Model, []Effect) {
	if !m.Turn.Recording || m.Turn.Source != source {
		return m, nil
	}

	m.Turn.Recording = false
	m.Turn.Ended = true
	m.Turn.Snapshot = snapshot
	m.State = StateAwaitingResponse
	m.Status = StatusProcessing

	var fx []Effect
	if source == SourceManual {
		fx = append(fx, Send{Event: realtime.CommitInputAudio()})
	}
	fx = append(fx, Schedule{After: m.Options.FinalizeTimeout, Input: FinalizeTimeout{Seq: m.Turn.Seq}})
	return m, fx
}

func sourceAllowed(m Model, source Source) bool {
	switch source {
	case SourceManual:
		return !m.Options.ServerVAD()
	case SourceServer:
		return m.Options.ServerVAD()
	default:
		return false
	}
}

func receive(m Model, evt realtime.Inbound) (Model, []Effect) {
	var fx []Effect

	switch evt := evt.(type) {
	case realtime.TranscriptionDelta:
		m.Turn.Partial += evt.Delta

	case realtime.TranscriptionCompleted:
		text := strings.TrimSpace(evt.Transcript)
		// 转写只会在提交之后到达；录音中收到的属于上一轮，只展示不归入当前轮。
		if !m.Turn.Ended || m.Turn.Finalized {
			m, fx = showUserTranscript(m, fx, text)
			break
		}
		if text == "" {
			text = strings.TrimSpace(m.Turn.Partial)
		}
		m, fx = showUserTranscript(m, fx, text)
		m.Turn.Partial = ""
		var more []Effect
		m, more = finalize(m, text)
		fx = append(fx, more...)

	case realtime.TranscriptionFailed:
		detail := string(evt.Raw)
		if detail == "" {
			detail = evt.Error.String()
		}
		fx = append(fx, AppendLog{Line: "TRANSCRIPTION FAILED: " + detail})
		if m.Turn.Ended && !m.Turn.Finalized {
			var more []Effect
			m, more = finalize(m, strings.TrimSpace(m.Turn.Partial))
			fx = append(fx, more...)
		}

	case realtime.ReplyDelta:
		if evt.Delta != "" {
			m.Subtitles += evt.Delta
			m.SubtitleGen++
		}

	case realtime.ReplyDone:
		reply := strings.TrimSpace(evt.Text)
		if reply == "" {
			reply = strings.TrimSpace(m.Subtitles)
		}
		if reply != "" {
			fx = append(fx, AppendLog{Line: "TA: " + reply})
		}
		if m.State == StateAwaitingResponse {
			m.State = StateConnected
		}
		if m.State.connected() && !m.Turn.Recording {
			m.Status = StatusConnected
		}
		m.SubtitleGen++
		fx = append(fx, Schedule{After: m.Options.SubtitleLinger, Input: ClearSubtitles{Gen: m.SubtitleGen}})

	case realtime.SpeechStarted:
		return startTurn(m, SourceServer)

	case realtime.SpeechStopped:
		return endTurn(m, SourceServer, "")

	case realtime.ErrorEvent:
		fx = append(fx, AppendLog{Line: "ERROR: " + evt.Error.String()})
	}

	return m, fx
}

// finalize 发送一轮的定稿事件对；文本与截图都为空时不发送任何事件。
func finalize(m Model, text string) (Model, []Effect) {
	if m.Turn.Finalized {
		return m, nil
	}
	snapshot := m.Turn.Snapshot
	source := m.Turn.Source
	m.Turn = Turn{Seq: m.Turn.Seq, Finalized: true}

	item, ok := realtime.NewUserMessage(text, snapshot)
	if !ok {
		if m.State == StateAwaitingResponse {
			m.State = StateConnected
			m.Status = StatusConnected
		}
		return m, nil
	}

	m.State = StateAwaitingResponse
	m.Status = StatusProcessing
	return m, []Effect{
		Send{Event: item},
		Send{Event: realtime.CreateResponse()},
		SubmitTurn{Transcript: text, Snapshot: snapshot, Source: source},
	}
}

func showUserTranscript(m Model, fx []Effect, text string) (Model, []Effect) {
	if text == "" {
		return m, fx
	}
	m.UserTranscript = text
	m.TranscriptGen++
	return m, append(fx,
		AppendLog{Line: "YOU: " + text},
		Schedule{After: m.Options.TranscriptLinger, Input: ClearUserTranscript{Gen: m.TranscriptGen}},
	)
}
