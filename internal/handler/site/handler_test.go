package site_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/mathta/backend/internal/handler/site"
	"github.com/zhouzirui/mathta/backend/internal/model/tutor"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	site.New(tutor.DefaultSite(), tutor.NewMemoryStore(tutor.Seed()), site.Status{RealtimeConfigured: true}).RegisterRoutes(r)
	return r
}

func TestHandleSite(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/site", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Site   tutor.Site    `json:"site"`
		Tutors []tutor.Tutor `json:"tutors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Site.Name != "MathTA" || body.Site.Tagline != "Your AI-powered math teaching assistant" {
		t.Fatalf("unexpected site: %+v", body.Site)
	}
	if len(body.Tutors) != len(tutor.Seed()) {
		t.Fatalf("expected %d tutors, got %d", len(tutor.Seed()), len(body.Tutors))
	}
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["realtimeConfigured"] != true || body["reviewEnabled"] != false {
		t.Fatalf("unexpected health body: %v", body)
	}
}
