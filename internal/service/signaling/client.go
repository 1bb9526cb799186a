package signaling

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/mathta/backend/internal/service/session"
)

const maxAnswerBytes = 2 << 20

// Client 通过 HTTP 调用信令中继，实现 session.Negotiator。
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient 创建信令客户端；endpoint 为中继的完整 URL。
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		http:     httpClient,
	}
}

// Negotiate 以原始 SDP 文本 POST offer，返回中继给出的 answer。
func (c *Client) Negotiate(ctx context.Context, offer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &session.NegotiationTransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return "", &session.NegotiationTransportError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &session.NegotiationTransportError{Status: resp.StatusCode, Body: string(body)}
	}
	return string(body), nil
}
