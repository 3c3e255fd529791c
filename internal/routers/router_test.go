package routers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"pairpad/internal/api"
	"pairpad/internal/models"
	"pairpad/internal/repository"
	"pairpad/internal/routers"
	"pairpad/internal/session"
	"pairpad/internal/store"
)

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, models.HistoryEvent) error { return nil }

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	db, err := repository.Open("file:router_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	sessionRepo := &repository.SessionRepository{DB: db}
	historyRepo := &repository.HistoryRepository{DB: db}
	st := store.New(sessionRepo, false)
	registry := session.NewRegistry(time.Second, st.Evict)
	hub := session.NewHub(st, registry, nopRecorder{}, sessionRepo, zap.NewNop(), 0, 0)
	h := api.NewHandlers(zap.NewNop(), hub, st, sessionRepo, historyRepo, "http://localhost:3000")
	return routers.New(h)
}

func TestRouterRoutes(t *testing.T) {
	r := newRouter(t)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/healthz", http.StatusOK},
		{http.MethodGet, "/api/v1/languages", http.StatusOK},
		{http.MethodGet, "/api/v1/sessions/missing", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rec.Code)
		}
	}
}

func TestRouterListsLanguages(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/languages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out []models.Language
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("expected 4 languages, got %#v", out)
	}
}
