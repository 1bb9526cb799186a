package relay

import (
	"errors"
	"fmt"
)

// ErrConfiguration 进程环境中没有配置上游长期凭证
var ErrConfiguration = errors.New("OpenAI API key not configured")

// UpstreamSessionError 上游拒绝创建实时会话，或没有返回可用的临时凭证
type UpstreamSessionError struct {
	Reason string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamSessionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: upstream status %d", e.Reason, e.Status)
	default:
		return e.Reason
	}
}

func (e *UpstreamSessionError) Unwrap() error { return e.Err }

// UpstreamNegotiationError 上游拒绝 SDP 交换
type UpstreamNegotiationError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamNegotiationError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("WebRTC negotiation failed: %v", e.Err)
	case e.Status != 0:
		return fmt.Sprintf("WebRTC negotiation failed: upstream status %d", e.Status)
	default:
		return "WebRTC negotiation failed"
	}
}

func (e *UpstreamNegotiationError) Unwrap() error { return e.Err }

// Reasons reported to callers for session minting failures.
const (
	ReasonSessionRejected = "Failed to create OpenAI session"
	ReasonNoCredential    = "No ephemeral key returned"
)
