package realtime

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	relayService "github.com/zhouzirui/mathta/backend/internal/service/relay"
	"github.com/zhouzirui/mathta/backend/pkg/utils"
)

// maxOfferBytes SDP offer 的最大字节数
const maxOfferBytes = 2 << 20

// Negotiator 用 SDP offer 换取 answer
type Negotiator interface {
	Negotiate(ctx context.Context, offer string) (string, error)
	Configured() bool
}

// Handler 信令中继的 HTTP 处理器
type Handler struct {
	negotiator Negotiator
	clientKey  string
}

// New 创建信令处理器；clientKey 为空时不校验 apikey 头。
func New(negotiator Negotiator, clientKey string) *Handler {
	return &Handler{
		negotiator: negotiator,
		clientKey:  strings.TrimSpace(clientKey),
	}
}

// RegisterRoutes 注册实时会话路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/realtime/session", h.HandleNegotiate)
}

// HandleNegotiate 读取原始 SDP offer，返回上游的 SDP answer。
func (h *Handler) HandleNegotiate(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		utils.RespondError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	if h.negotiator == nil || !h.negotiator.Configured() {
		utils.RespondError(w, http.StatusInternalServerError, relayService.ErrConfiguration.Error())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOfferBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "offer too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "failed to read offer")
		return
	}
	offer := string(body)
	if strings.TrimSpace(offer) == "" {
		utils.RespondError(w, http.StatusBadRequest, "offer body is required")
		return
	}

	answer, err := h.negotiator.Negotiate(r.Context(), offer)
	if err != nil {
		status, message := classify(err)
		log.Printf("[realtime] negotiation failed: status=%d err=%v", status, err)
		utils.RespondError(w, status, message)
		return
	}

	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, answer); err != nil {
		log.Printf("[realtime] failed to write answer: %v", err)
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.clientKey == "" {
		return true
	}
	provided := strings.TrimSpace(r.Header.Get("apikey"))
	if provided == "" {
		provided = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.clientKey)) == 1
}

// classify 将中继错误映射为 HTTP 状态：本地配置问题 500，上游故障 502。
func classify(err error) (int, string) {
	var sessionErr *relayService.UpstreamSessionError
	var negotiationErr *relayService.UpstreamNegotiationError

	switch {
	case errors.Is(err, relayService.ErrConfiguration):
		return http.StatusInternalServerError, relayService.ErrConfiguration.Error()
	case errors.As(err, &sessionErr):
		return http.StatusBadGateway, sessionErr.Reason
	case errors.As(err, &negotiationErr):
		return http.StatusBadGateway, "WebRTC negotiation failed"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
