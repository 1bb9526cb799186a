package session

import (
	"time"

	"github.com/zhouzirui/mathta/backend/internal/config"
	"github.com/zhouzirui/mathta/backend/internal/model/realtime"
)

// Options 会话参数
type Options struct {
	Voice              string
	TranscriptionModel string
	Language           string
	Instructions       string
	Modalities         []string
	TurnDetection      string
	VADThreshold       float64
	VADPrefixPaddingMS int
	VADSilenceMS       int
	InputMode          InputMode

	// FinalizeTimeout 轮次结束后等待最终转写的时间，超时使用已累积的部分文本。
	FinalizeTimeout  time.Duration
	SubtitleLinger   time.Duration
	TranscriptLinger time.Duration
	LogLimit         int
}

// DefaultOptions 返回默认会话参数
func DefaultOptions() Options {
	return Options{
		Voice:              "ash",
		TranscriptionModel: "gpt-4o-transcribe",
		Language:           "en",
		Modalities:         []string{"text", "audio"},
		TurnDetection:      config.TurnDetectionManual,
		VADThreshold:       0.5,
		VADPrefixPaddingMS: 300,
		VADSilenceMS:       500,
		InputMode:          InputAudio,
		FinalizeTimeout:    3 * time.Second,
		SubtitleLinger:     1200 * time.Millisecond,
		TranscriptLinger:   4 * time.Second,
		LogLimit:           200,
	}
}

// OptionsFromConfig 由环境配置生成会话参数
func OptionsFromConfig(cfg config.RealtimeConfig) Options {
	opts := DefaultOptions()
	if cfg.Voice != "" {
		opts.Voice = cfg.Voice
	}
	if cfg.TranscriptionModel != "" {
		opts.TranscriptionModel = cfg.TranscriptionModel
	}
	if cfg.Language != "" {
		opts.Language = cfg.Language
	}
	if cfg.TurnDetection != "" {
		opts.TurnDetection = cfg.TurnDetection
	}
	opts.VADThreshold = cfg.VADThreshold
	opts.VADPrefixPaddingMS = cfg.VADPrefixPaddingMS
	opts.VADSilenceMS = cfg.VADSilenceMS
	if cfg.FinalizeTimeout > 0 {
		opts.FinalizeTimeout = cfg.FinalizeTimeout
	}
	return opts
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if len(o.Modalities) == 0 {
		o.Modalities = def.Modalities
	}
	if o.TurnDetection == "" {
		o.TurnDetection = def.TurnDetection
	}
	if o.InputMode == "" {
		o.InputMode = def.InputMode
	}
	if o.FinalizeTimeout <= 0 {
		o.FinalizeTimeout = def.FinalizeTimeout
	}
	if o.SubtitleLinger <= 0 {
		o.SubtitleLinger = def.SubtitleLinger
	}
	if o.TranscriptLinger <= 0 {
		o.TranscriptLinger = def.TranscriptLinger
	}
	if o.LogLimit <= 0 {
		o.LogLimit = def.LogLimit
	}
	return o
}

// ServerVAD 是否由服务端检测轮次边界
func (o Options) ServerVAD() bool {
	return o.TurnDetection == config.TurnDetectionServerVAD
}

// SessionUpdate 构造数据通道打开后发送的 session.update
func (o Options) SessionUpdate() realtime.SessionUpdateEvent {
	cfg := realtime.SessionConfig{
		Modalities:   append([]string(nil), o.Modalities...),
		Voice:        o.Voice,
		Instructions: o.Instructions,
	}
	if o.TranscriptionModel != "" {
		cfg.InputAudioTranscription = &realtime.InputAudioTranscription{
			Model:    o.TranscriptionModel,
			Language: o.Language,
		}
	}
	if o.ServerVAD() {
		cfg.TurnDetection = &realtime.TurnDetection{
			Type:              config.TurnDetectionServerVAD,
			Threshold:         o.VADThreshold,
			PrefixPaddingMS:   o.VADPrefixPaddingMS,
			SilenceDurationMS: o.VADSilenceMS,
			CreateResponse:    false,
			InterruptResponse: true,
		}
	}
	return realtime.NewSessionUpdate(cfg)
}
