package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/mathta/backend/internal/config"
)

const maxUpstreamBody = 1 << 20

var errBodyTooLarge = fmt.Errorf("upstream body exceeds %d bytes", maxUpstreamBody)

// Config 信令中继的上游配置
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Timeout time.Duration
}

// ConfigFromRealtime 从实时会话配置中提取中继所需的字段
func ConfigFromRealtime(cfg config.RealtimeConfig) Config {
	return Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Voice:   cfg.Voice,
		Timeout: cfg.UpstreamTimeout,
	}
}

// Credential 上游为单次 WebRTC 会话签发的临时凭证，只在中继进程内使用。
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// Service 无状态的 SDP 中继：每次调用独立签发临时凭证并转发 offer。
type Service struct {
	cfg    Config
	client *http.Client
}

// NewService 创建中继服务；client 为 nil 时使用默认超时的客户端。
func NewService(cfg Config, client *http.Client) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Service{cfg: cfg, client: client}
}

// Configured 表示是否提供了上游长期凭证
func (s *Service) Configured() bool {
	return strings.TrimSpace(s.cfg.APIKey) != ""
}

// Negotiate 用一份 SDP offer 换取上游的 SDP answer。
//
// 长期凭证只用于签发临时凭证；offer 始终使用临时凭证转发。签发失败时不会调用协商端点。
func (s *Service) Negotiate(ctx context.Context, offer string) (string, error) {
	if !s.Configured() {
		return "", ErrConfiguration
	}

	credential, err := s.MintCredential(ctx)
	if err != nil {
		return "", err
	}

	return s.exchange(ctx, credential, offer)
}

type sessionRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice,omitempty"`
}

type sessionResponse struct {
	ID           string `json:"id"`
	ClientSecret *struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// MintCredential 向上游申请新的实时会话并返回其临时凭证
func (s *Service) MintCredential(ctx context.Context) (Credential, error) {
	if !s.Configured() {
		return Credential{}, ErrConfiguration
	}

	payload, err := json.Marshal(sessionRequest{Model: s.cfg.Model, Voice: s.cfg.Voice})
	if err != nil {
		return Credential{}, fmt.Errorf("marshal session request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v1/realtime/sessions", bytes.NewReader(payload))
	if err != nil {
		return Credential{}, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(s.cfg.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Credential{}, &UpstreamSessionError{Reason: ReasonSessionRejected, Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return Credential{}, &UpstreamSessionError{Reason: ReasonSessionRejected, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[relay] OpenAI session error: status=%d body=%s", resp.StatusCode, truncate(body))
		return Credential{}, &UpstreamSessionError{Reason: ReasonSessionRejected, Status: resp.StatusCode, Body: string(body)}
	}

	var decoded sessionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Credential{}, &UpstreamSessionError{Reason: ReasonNoCredential, Status: resp.StatusCode, Err: err}
	}
	if decoded.ClientSecret == nil || strings.TrimSpace(decoded.ClientSecret.Value) == "" {
		return Credential{}, &UpstreamSessionError{Reason: ReasonNoCredential, Status: resp.StatusCode}
	}

	credential := Credential{Value: decoded.ClientSecret.Value}
	if decoded.ClientSecret.ExpiresAt > 0 {
		credential.ExpiresAt = time.Unix(decoded.ClientSecret.ExpiresAt, 0).UTC()
	}
	return credential, nil
}

func (s *Service) exchange(ctx context.Context, credential Credential, offer string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	endpoint := s.cfg.BaseURL + "/v1/realtime?model=" + url.QueryEscape(s.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("build negotiation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential.Value)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &UpstreamNegotiationError{Err: err}
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body)
	if err != nil {
		return "", &UpstreamNegotiationError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[relay] OpenAI RTC error: status=%d body=%s", resp.StatusCode, truncate(body))
		return "", &UpstreamNegotiationError{Status: resp.StatusCode, Body: string(body)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", &UpstreamNegotiationError{Status: resp.StatusCode, Err: fmt.Errorf("empty answer")}
	}

	return string(body), nil
}

// readBody 读取上限内的响应体；超出上限视为失败，不返回截断内容。
func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxUpstreamBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxUpstreamBody {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "…"
}
