package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/mathta/backend/internal/handler/realtime"
	"github.com/zhouzirui/mathta/backend/internal/handler/site"
	"github.com/zhouzirui/mathta/backend/internal/handler/workspace"
	middlewarePkg "github.com/zhouzirui/mathta/backend/internal/middleware"
	"github.com/zhouzirui/mathta/backend/internal/model/tutor"
	workspaceService "github.com/zhouzirui/mathta/backend/internal/service/workspace"
	"github.com/zhouzirui/mathta/backend/pkg/utils"
)

// Deps 路由依赖的服务
type Deps struct {
	Site       tutor.Site
	Tutors     tutor.Store
	Negotiator realtime.Negotiator
	ClientKey  string
	Workspace  *workspaceService.Service
	Status     site.Status
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middlewarePkg.Recoverer)
	r.Use(middlewarePkg.CORS)

	realtimeHandler := realtime.New(deps.Negotiator, deps.ClientKey)
	siteHandler := site.New(deps.Site, deps.Tutors, deps.Status)

	r.Route("/api", func(api chi.Router) {
		siteHandler.RegisterRoutes(api)
		realtimeHandler.RegisterRoutes(api)

		if deps.Workspace != nil {
			workspace.New(deps.Workspace, deps.Tutors).RegisterRoutes(api)
		} else {
			api.Get("/workspace/ws", func(w http.ResponseWriter, r *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "workspace unavailable")
			})
		}
	})

	// 与浏览器端既有的函数路径保持兼容
	r.Post("/functions/v1/session", realtimeHandler.HandleNegotiate)

	return r
}
