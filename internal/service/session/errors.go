package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEnded 会话已结束，需要新建 Session 才能重新开始
	ErrEnded = errors.New("session ended")
	// ErrBusy 会话正在连接或已连接
	ErrBusy = errors.New("session already started")
)

// MediaAccessError 麦克风被拒绝或不可用
type MediaAccessError struct {
	Err error
}

func (e *MediaAccessError) Error() string {
	if e.Err == nil {
		return "microphone unavailable"
	}
	return fmt.Sprintf("microphone unavailable: %v", e.Err)
}

func (e *MediaAccessError) Unwrap() error { return e.Err }

// NegotiationTransportError 信令中继不可达或返回非 2xx
type NegotiationTransportError struct {
	Status int
	Body   string
	Err    error
}

// Error 优先使用中继返回的正文，与界面展示的错误一致。
func (e *NegotiationTransportError) Error() string {
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	if e.Err != nil {
		return fmt.Sprintf("relay unreachable: %v", e.Err)
	}
	return fmt.Sprintf("relay returned status %d", e.Status)
}

func (e *NegotiationTransportError) Unwrap() error { return e.Err }
