package site

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mathta/backend/internal/model/tutor"
	"github.com/zhouzirui/mathta/backend/pkg/utils"
)

// Status 服务能力开关，由 /health 报告
type Status struct {
	RealtimeConfigured bool `json:"realtimeConfigured"`
	ReviewEnabled      bool `json:"reviewEnabled"`
}

// Handler 站点信息与健康检查的HTTP处理器
type Handler struct {
	site   tutor.Site
	tutors tutor.Store
	status Status
}

// New 创建站点处理器
func New(site tutor.Site, tutors tutor.Store, status Status) *Handler {
	return &Handler{
		site:   site,
		tutors: tutors,
		status: status,
	}
}

// RegisterRoutes 注册站点相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/site", h.handleSite)
	r.Get("/tutors", h.handleListTutors)
	r.Get("/health", h.handleHealth)
}

type siteResponse struct {
	Site   tutor.Site    `json:"site"`
	Tutors []tutor.Tutor `json:"tutors"`
}

// handleSite 返回站点名称、标语与助教列表
func (h *Handler) handleSite(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, siteResponse{Site: h.site, Tutors: h.list()})
}

func (h *Handler) handleListTutors(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.list())
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"realtimeConfigured": h.status.RealtimeConfigured,
		"reviewEnabled":      h.status.ReviewEnabled,
	})
}

func (h *Handler) list() []tutor.Tutor {
	if h.tutors == nil {
		return []tutor.Tutor{}
	}
	return h.tutors.List()
}
