package middleware

import (
	"log"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/mathta/backend/pkg/utils"
)

// Recoverer 捕获处理器 panic，记录堆栈并返回通用的 JSON 错误，不暴露内部细节。
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Printf("[recover] panic request_id=%s %s %s: %v", chimw.GetReqID(r.Context()), r.Method, r.URL.Path, rec)
			chimw.PrintPrettyStack(rec)

			if r.Header.Get("Connection") != "Upgrade" {
				utils.RespondError(w, http.StatusInternalServerError, "internal error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
