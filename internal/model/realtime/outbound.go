package realtime

// 客户端发往上游的控制事件类型
const (
	TypeSessionUpdate          = "session.update"
	TypeInputAudioBufferClear  = "input_audio_buffer.clear"
	TypeInputAudioBufferCommit = "input_audio_buffer.commit"
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
	TypeResponseCancel         = "response.cancel"
	TypeOutputAudioBufferClear = "output_audio_buffer.clear"
)

// Outbound 所有出站事件的公共接口
type Outbound interface {
	EventType() string
}

// BasicEvent 只有 type 字段的出站事件
type BasicEvent struct {
	Type string `json:"type"`
}

func (e BasicEvent) EventType() string { return e.Type }

// ClearInputAudio 丢弃上游尚未提交的输入音频
func ClearInputAudio() BasicEvent { return BasicEvent{Type: TypeInputAudioBufferClear} }

// CommitInputAudio 提交当前输入音频缓冲区
func CommitInputAudio() BasicEvent { return BasicEvent{Type: TypeInputAudioBufferCommit} }

// CreateResponse 请求上游生成回复
func CreateResponse() BasicEvent { return BasicEvent{Type: TypeResponseCreate} }

// CancelResponse 取消正在生成的回复
func CancelResponse() BasicEvent { return BasicEvent{Type: TypeResponseCancel} }

// ClearOutputAudio 清空尚未播放的输出音频
func ClearOutputAudio() BasicEvent { return BasicEvent{Type: TypeOutputAudioBufferClear} }

// SessionUpdateEvent 数据通道打开后发送的会话配置
type SessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

func (e SessionUpdateEvent) EventType() string { return e.Type }

// SessionConfig 会话配置；TurnDetection 为 nil 时序列化为 null，表示手动控制轮次。
type SessionConfig struct {
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	Modalities              []string                 `json:"modalities,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection"`
	Voice                   string                   `json:"voice,omitempty"`
	Instructions            string                   `json:"instructions,omitempty"`
}

// InputAudioTranscription 输入音频转写配置
type InputAudioTranscription struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

// TurnDetection 服务端语音活动检测配置
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
	InterruptResponse bool    `json:"interrupt_response"`
}

// NewSessionUpdate 构造 session.update 事件
func NewSessionUpdate(cfg SessionConfig) SessionUpdateEvent {
	return SessionUpdateEvent{Type: TypeSessionUpdate, Session: cfg}
}

// Content part types for conversation items.
const (
	ContentInputText  = "input_text"
	ContentInputImage = "input_image"
)

// ConversationItemCreateEvent 向会话追加一条用户消息
type ConversationItemCreateEvent struct {
	Type string           `json:"type"`
	Item ConversationItem `json:"item"`
}

func (e ConversationItemCreateEvent) EventType() string { return e.Type }

// ConversationItem 会话条目
type ConversationItem struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart 文本或图片内容
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// NewUserMessage 构造携带文本和/或白板截图的用户消息；两者皆空时返回 false。
func NewUserMessage(text, imageURL string) (ConversationItemCreateEvent, bool) {
	var parts []ContentPart
	if text != "" {
		parts = append(parts, ContentPart{Type: ContentInputText, Text: text})
	}
	if imageURL != "" {
		parts = append(parts, ContentPart{Type: ContentInputImage, ImageURL: imageURL})
	}
	if len(parts) == 0 {
		return ConversationItemCreateEvent{}, false
	}

	return ConversationItemCreateEvent{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			Type:    "message",
			Role:    "user",
			Content: parts,
		},
	}, true
}
