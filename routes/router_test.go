package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cppla/blogposts/config"
	"github.com/cppla/blogposts/events"
	"github.com/cppla/blogposts/middleware"
	"github.com/cppla/blogposts/models"
	"github.com/cppla/blogposts/repository"
)

func testConfig() config.AppConfig {
	return config.AppConfig{
		GinMode:            "test",
		RoutePrefix:        "/posts",
		PublicBaseURL:      "localhost:5500",
		RateLimitPerMinute: 4,
		AllowedOrigins:     []string{"*"},
		MetricsEnabled:     true,
	}
}

func TestSetupRouterServesPostRoutes(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	post := models.Post{Title: "Routing in Go", Category: "go"}
	if err := repo.Create(context.Background(), &post); err != nil {
		t.Fatal(err)
	}
	r := SetupRouter(testConfig(), Deps{Posts: repo, Events: events.NopPublisher{}})

	tests := []struct {
		path   string
		status int
	}{
		{path: "/posts", status: http.StatusOK},
		{path: "/posts/search?keyword=go", status: http.StatusOK},
		{path: "/posts/top-rating", status: http.StatusOK},
		{path: "/posts/recent-post", status: http.StatusOK},
		{path: "/posts/top-view", status: http.StatusOK},
		{path: "/posts/" + post.ID, status: http.StatusOK},
		{path: "/posts/" + post.ID + "/related-post", status: http.StatusOK},
		{path: "/health", status: http.StatusOK},
		{path: "/metrics", status: http.StatusOK},
		{path: "/nowhere/at/all", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.status {
				t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.status)
			}
		})
	}
}

func TestSetupRouterSetsRequestID(t *testing.T) {
	r := SetupRouter(testConfig(), Deps{Posts: repository.NewMemoryPostRepository()})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/posts", nil))
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestSetupRouterRateLimitsWrites(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	post := models.Post{Title: "T"}
	_ = repo.Create(context.Background(), &post)
	r := SetupRouter(testConfig(), Deps{Posts: repo})

	body, _ := json.Marshal(map[string]interface{}{"postID": post.ID, "rating": 5})
	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/posts/rate", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.10:5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	// Reads are never limited.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/posts", nil)
		req.RemoteAddr = "192.0.2.10:5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("read %d = %d", i, w.Code)
		}
	}
}

func TestSetupRouterCreateURLUsesPrefix(t *testing.T) {
	cfg := testConfig()
	cfg.RoutePrefix = "/api/posts"
	cfg.PublicBaseURL = "https://blog.example.com"
	r := SetupRouter(cfg, Deps{Posts: repository.NewMemoryPostRepository()})

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"title":"T"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"url":"https://blog.example.com/api/posts/`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
