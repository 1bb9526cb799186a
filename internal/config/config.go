package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Realtime RealtimeConfig
	WebRTC   WebRTCConfig
	AI       AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	realtime, err := loadRealtimeConfig()
	if err != nil {
		return nil, err
	}

	webrtc, err := loadWebRTCConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Realtime: realtime, WebRTC: webrtc, AI: ai}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Turn detection policies understood by the realtime session.
const (
	TurnDetectionManual    = "manual"
	TurnDetectionServerVAD = "server_vad"
)

// RealtimeConfig 描述实时语音会话与信令中继的配置。
//
// APIKey 允许为空：缺失时服务仍然启动，每次协商请求返回 500。
type RealtimeConfig struct {
	APIKey             string        `env:"OPENAI_API_KEY"`
	BaseURL            string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com"`
	Model              string        `env:"REALTIME_MODEL" envDefault:"gpt-4o-realtime-preview-2024-12-17"`
	Voice              string        `env:"REALTIME_VOICE" envDefault:"ash"`
	TranscriptionModel string        `env:"REALTIME_TRANSCRIBE_MODEL" envDefault:"gpt-4o-transcribe"`
	Language           string        `env:"REALTIME_LANGUAGE" envDefault:"en"`
	TurnDetection      string        `env:"REALTIME_TURN_DETECTION" envDefault:"manual"`
	VADThreshold       float64       `env:"REALTIME_VAD_THRESHOLD" envDefault:"0.5"`
	VADPrefixPaddingMS int           `env:"REALTIME_VAD_PREFIX_PADDING_MS" envDefault:"300"`
	VADSilenceMS       int           `env:"REALTIME_VAD_SILENCE_MS" envDefault:"500"`
	FinalizeTimeout    time.Duration `env:"REALTIME_FINALIZE_TIMEOUT" envDefault:"3s"`
	UpstreamTimeout    time.Duration `env:"REALTIME_UPSTREAM_TIMEOUT" envDefault:"15s"`
	ClientKey          string        `env:"RELAY_CLIENT_KEY"`
}

// Configured 表示是否提供了上游长期凭证。
func (c RealtimeConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

func loadRealtimeConfig() (RealtimeConfig, error) {
	var cfg RealtimeConfig
	if err := env.Parse(&cfg); err != nil {
		return RealtimeConfig{}, fmt.Errorf("parse realtime env: %w", err)
	}

	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.ClientKey = strings.TrimSpace(cfg.ClientKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.TurnDetection = strings.ToLower(strings.TrimSpace(cfg.TurnDetection))

	switch cfg.TurnDetection {
	case TurnDetectionManual, TurnDetectionServerVAD:
	default:
		return RealtimeConfig{}, fmt.Errorf("invalid REALTIME_TURN_DETECTION value %q", cfg.TurnDetection)
	}
	if cfg.VADThreshold < 0 || cfg.VADThreshold > 1 {
		return RealtimeConfig{}, fmt.Errorf("invalid REALTIME_VAD_THRESHOLD value %v: must be within [0, 1]", cfg.VADThreshold)
	}
	if cfg.VADPrefixPaddingMS < 0 || cfg.VADSilenceMS < 0 {
		return RealtimeConfig{}, fmt.Errorf("VAD padding and silence durations must not be negative")
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 15 * time.Second
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 3 * time.Second
	}

	return cfg, nil
}

// WebRTCConfig 描述本地 PeerConnection 的网络配置。
type WebRTCConfig struct {
	ICEServers    []string      `env:"WEBRTC_ICE_SERVERS" envSeparator:","`
	LogLevel      string        `env:"WEBRTC_LOG_LEVEL" envDefault:"warn"`
	GatherTimeout time.Duration `env:"WEBRTC_ICE_GATHER_TIMEOUT" envDefault:"5s"`
}

func loadWebRTCConfig() (WebRTCConfig, error) {
	var cfg WebRTCConfig
	if err := env.Parse(&cfg); err != nil {
		return WebRTCConfig{}, fmt.Errorf("parse webrtc env: %w", err)
	}

	servers := make([]string, 0, len(cfg.ICEServers))
	for _, raw := range cfg.ICEServers {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			servers = append(servers, trimmed)
		}
	}
	cfg.ICEServers = servers
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = 5 * time.Second
	}

	return cfg, nil
}

// AIConfig 描述大模型相关配置，用于课后点评流水线。
type AIConfig struct {
	APIKey        string
	AccessKey     string
	SecretKey     string
	Model         string
	BaseURL       string
	Region        string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	ReviewEnabled bool
	ReviewTimeout time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	reviewEnabled, err := parseBoolEnv("AI_REVIEW_ENABLED", true)
	if err != nil {
		return AIConfig{}, err
	}

	reviewTimeout := 30 * time.Second
	if override, err := parseOptionalIntEnv("AI_REVIEW_TIMEOUT_SECONDS"); err != nil {
		return AIConfig{}, err
	} else if override != nil && *override > 0 {
		reviewTimeout = time.Duration(*override) * time.Second
	}

	return AIConfig{
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("Model")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		ReviewEnabled: reviewEnabled,
		ReviewTimeout: reviewTimeout,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
