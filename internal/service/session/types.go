package session

import (
	"context"
	"time"
)

// AudioConstraints 申请麦克风时的采集约束
type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultAudioConstraints 开启回声消除、降噪与自动增益
func DefaultAudioConstraints() AudioConstraints {
	return AudioConstraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
}

// Microphone 本地音频轨道。SetEnabled 只切换发送开关，不会重新协商。
type Microphone interface {
	SetEnabled(enabled bool)
	Enabled() bool
	Stop() error
}

// MediaSource 提供麦克风
type MediaSource interface {
	Acquire(ctx context.Context, constraints AudioConstraints) (Microphone, error)
}

// Peer 一条 WebRTC 连接及其控制数据通道
type Peer interface {
	// CreateOffer 创建并设置本地 offer，返回完整的 SDP 文本。
	CreateOffer(ctx context.Context) (string, error)
	SetAnswer(sdp string) error
	Send(data []byte) error
	Close() error
}

// PeerHandlers 数据通道回调
type PeerHandlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func()
}

// PeerFactory 为本地麦克风创建一条连接，连接需附加音频轨道和控制数据通道。
type PeerFactory func(mic Microphone, handlers PeerHandlers) (Peer, error)

// Negotiator 用 SDP offer 换取 answer（信令中继或其客户端）
type Negotiator interface {
	Negotiate(ctx context.Context, offer string) (string, error)
}

// Snapshotter 截取白板图像，返回 data URL；空字符串表示没有截图。
type Snapshotter interface {
	Snapshot() (string, error)
}

// TurnSubmission 完成的一轮用户输入
type TurnSubmission struct {
	SessionID  string
	Transcript string
	Snapshot   string
	Source     Source
	At         time.Time
}

// TurnSink 接收每轮完成的用户输入
type TurnSink interface {
	SubmitTurn(ctx context.Context, turn TurnSubmission)
}

// TurnSinkFunc 函数形式的 TurnSink
type TurnSinkFunc func(ctx context.Context, turn TurnSubmission)

func (f TurnSinkFunc) SubmitTurn(ctx context.Context, turn TurnSubmission) { f(ctx, turn) }

// Observer 每次状态变化后收到最新视图
type Observer func(View)

// Timer 可取消的定时器
type Timer interface {
	Stop() bool
}

// AfterFunc 定时调度函数，测试中可替换
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// InputMode 用户输入方式
type InputMode string

const (
	InputAudio InputMode = "audio"
	InputText  InputMode = "text"
)

// Source 一轮输入的来源
type Source string

const (
	SourceManual Source = "manual"
	SourceServer Source = "server"
	SourceText   Source = "text"
)

// View 会话对外可见的状态
type View struct {
	ID             string
	State          State
	Status         string
	Subtitles      string
	UserTranscript string
	Muted          bool
	Talking        bool
	ChannelOpen    bool
	InputMode      InputMode
	Log            []string
}
