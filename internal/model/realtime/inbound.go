package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEvent 入站数据无法解析为控制事件
var ErrMalformedEvent = errors.New("malformed realtime event")

// 上游发往客户端的控制事件类型
const (
	TypeTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"
	TypeSpeechStarted          = "input_audio_buffer.speech_started"
	TypeSpeechStopped          = "input_audio_buffer.speech_stopped"
	TypeError                  = "error"
)

// 回复文本增量与完成事件，兼容 beta 与 GA 两套命名。
var (
	replyDeltaTypes = map[string]bool{
		"response.audio_transcript.delta":        true,
		"response.output_audio_transcript.delta": true,
		"response.output_text.delta":             true,
		"response.text.delta":                    true,
	}
	replyDoneTypes = map[string]bool{
		"response.audio_transcript.done":        true,
		"response.output_audio_transcript.done": true,
		"response.output_text.done":             true,
		"response.text.done":                    true,
	}
)

// Inbound 解码后的入站事件
type Inbound interface {
	EventType() string
}

// TranscriptionDelta 用户语音转写的增量文本
type TranscriptionDelta struct {
	ItemID string
	Delta  string
}

func (TranscriptionDelta) EventType() string { return TypeTranscriptionDelta }

// TranscriptionCompleted 用户语音的最终转写
type TranscriptionCompleted struct {
	ItemID     string
	Transcript string
}

func (TranscriptionCompleted) EventType() string { return TypeTranscriptionCompleted }

// TranscriptionFailed 上游报告的转写失败
type TranscriptionFailed struct {
	ItemID string
	Error  ErrorDetail
	Raw    json.RawMessage
}

func (TranscriptionFailed) EventType() string { return TypeTranscriptionFailed }

// ReplyDelta 助手回复文本的增量
type ReplyDelta struct {
	Type       string
	ResponseID string
	Delta      string
}

func (e ReplyDelta) EventType() string { return e.Type }

// ReplyDone 助手回复结束
type ReplyDone struct {
	Type       string
	ResponseID string
	Text       string
}

func (e ReplyDone) EventType() string { return e.Type }

// SpeechStarted 服务端 VAD 检测到用户开始说话
type SpeechStarted struct {
	AudioStartMS int
	ItemID       string
}

func (SpeechStarted) EventType() string { return TypeSpeechStarted }

// SpeechStopped 服务端 VAD 检测到用户停止说话
type SpeechStopped struct {
	AudioEndMS int
	ItemID     string
}

func (SpeechStopped) EventType() string { return TypeSpeechStopped }

// ErrorEvent 上游返回的通用错误
type ErrorEvent struct {
	Error ErrorDetail
}

func (ErrorEvent) EventType() string { return TypeError }

// Unknown 未处理的事件类型，原样保留类型名
type Unknown struct {
	Type string
}

func (e Unknown) EventType() string { return e.Type }

// ErrorDetail 错误详情
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Param   string `json:"param,omitempty"`
}

// String 返回便于日志展示的错误描述
func (d ErrorDetail) String() string {
	switch {
	case d.Message != "" && d.Code != "":
		return fmt.Sprintf("%s (%s)", d.Message, d.Code)
	case d.Message != "":
		return d.Message
	case d.Code != "":
		return d.Code
	default:
		return d.Type
	}
}

type envelope struct {
	Type         string       `json:"type"`
	ItemID       string       `json:"item_id"`
	ResponseID   string       `json:"response_id"`
	Delta        string       `json:"delta"`
	Transcript   string       `json:"transcript"`
	Text         string       `json:"text"`
	AudioStartMS int          `json:"audio_start_ms"`
	AudioEndMS   int          `json:"audio_end_ms"`
	Error        *ErrorDetail `json:"error"`
}

// Decode 将一条数据通道消息解码为对应的事件类型。
//
// 非 JSON 或缺少 type 字段时返回 ErrMalformedEvent；未知类型返回 Unknown，不视为错误。
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	var detail ErrorDetail
	if env.Error != nil {
		detail = *env.Error
	}

	switch {
	case env.Type == TypeTranscriptionDelta:
		return TranscriptionDelta{ItemID: env.ItemID, Delta: env.Delta}, nil
	case env.Type == TypeTranscriptionCompleted:
		return TranscriptionCompleted{ItemID: env.ItemID, Transcript: env.Transcript}, nil
	case env.Type == TypeTranscriptionFailed:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return TranscriptionFailed{ItemID: env.ItemID, Error: detail, Raw: raw}, nil
	case replyDeltaTypes[env.Type]:
		return ReplyDelta{Type: env.Type, ResponseID: env.ResponseID, Delta: env.Delta}, nil
	case replyDoneTypes[env.Type]:
		text := env.Transcript
		if text == "" {
			text = env.Text
		}
		return ReplyDone{Type: env.Type, ResponseID: env.ResponseID, Text: text}, nil
	case env.Type == TypeSpeechStarted:
		return SpeechStarted{AudioStartMS: env.AudioStartMS, ItemID: env.ItemID}, nil
	case env.Type == TypeSpeechStopped:
		return SpeechStopped{AudioEndMS: env.AudioEndMS, ItemID: env.ItemID}, nil
	case env.Type == TypeError:
		return ErrorEvent{Error: detail}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}
