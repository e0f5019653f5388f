package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blues/ilr/internal/chain/mock"
	"github.com/blues/ilr/internal/database"
	"github.com/blues/ilr/internal/engine"
	"github.com/blues/ilr/internal/handler"
	"github.com/blues/ilr/internal/model"
	"github.com/blues/ilr/internal/repository"
	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := repository.NewProjectRepository(db).UpsertProject(context.Background(), &model.ProjectModel{Id: 1, Title: "orchard", WalletAddress: "0x00000000000000000000000000000000000000aa"}); err != nil {
		t.Fatalf("seed project: %v", err)
	}

	store := repository.NewLedgerStore(db)
	c := mock.New()
	return Setup(Deps{Intents: engine.New(store, c), Ledger: store, Chain: c})
}

func TestRoutes(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"create intent", http.MethodPost, "/api/v1/intents", `{"projectId":1,"amount":"10"}`, http.StatusCreated},
		{"unknown intent", http.MethodGet, "/api/v1/intents/missing", "", http.StatusNotFound},
		{"raised", http.MethodGet, "/api/v1/projects/1/raised", "", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/contributions", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(handler.UserIdHeader, "alice")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("%s %s = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestCorsPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/intents", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), handler.UserIdHeader) {
		t.Fatalf("allow headers = %q", w.Header().Get("Access-Control-Allow-Headers"))
	}
}
