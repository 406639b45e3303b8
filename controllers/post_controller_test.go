package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/blogposts/events"
	"github.com/cppla/blogposts/models"
	"github.com/cppla/blogposts/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

// failingRepository errors on every call the handlers make.
type failingRepository struct {
	repository.PostRepository
	err error
}

func (f failingRepository) Count(context.Context) (int64, error) { return 0, f.err }
func (f failingRepository) List(context.Context, string, int, int) ([]models.Post, error) {
	return nil, f.err
}
func (f failingRepository) ListByRating(context.Context, int, int) ([]models.Post, error) {
	return nil, f.err
}
func (f failingRepository) TopRated(context.Context, int) ([]models.RatedPost, error) {
	return nil, f.err
}
func (f failingRepository) IncrementViews(context.Context, string) (*models.Post, error) {
	return nil, f.err
}
func (f failingRepository) Create(context.Context, *models.Post) error { return f.err }

// emptySearchRepository answers a search with no result set and no error.
type emptySearchRepository struct {
	repository.PostRepository
}

func (emptySearchRepository) CountByTitle(context.Context, string) (int64, error) { return 0, nil }
func (emptySearchRepository) SearchByTitle(context.Context, string, int, int) ([]models.Post, error) {
	return nil, nil
}

// panickingRepository fails the count inside the concurrent list query.
type panickingRepository struct {
	repository.PostRepository
}

func (panickingRepository) Count(context.Context) (int64, error) { panic("count exploded") }
func (panickingRepository) List(context.Context, string, int, int) ([]models.Post, error) {
	return []models.Post{}, nil
}

func newTestEngine(posts repository.PostRepository, pub events.Publisher) *gin.Engine {
	c := NewPostController(posts, pub, "localhost:5500", "/posts")
	r := gin.New()
	g := r.Group("/posts")
	g.GET("", c.ListPosts)
	g.GET("/search", c.SearchPosts)
	g.GET("/top-rating", c.TopRating)
	g.GET("/recent-post", c.RecentPosts)
	g.GET("/top-view", c.TopViewed)
	g.GET("/:postID", c.GetPost)
	g.GET("/:postID/related-post", c.RelatedPosts)
	g.POST("", c.CreatePost)
	g.POST("/rate", c.RatePost)
	return r
}

func perform(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func seedPosts(t *testing.T, repo *repository.MemoryPostRepository, posts ...models.Post) []string {
	t.Helper()
	ids := make([]string, 0, len(posts))
	for i := range posts {
		p := posts[i]
		if err := repo.Create(context.Background(), &p); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, p.ID)
	}
	return ids
}

func TestListPostsPagination(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	for i := 0; i < 5; i++ {
		seedPosts(t, repo, models.Post{Title: "p"})
	}
	r := newTestEngine(repo, nil)

	tests := []struct {
		query      string
		count      int
		page       int
		totalPages int
		hasMore    bool
	}{
		{query: "", count: 2, page: 0, totalPages: 2, hasMore: true},
		{query: "?page=1&limit=2", count: 2, page: 1, totalPages: 2, hasMore: true},
		{query: "?page=2&limit=2", count: 1, page: 2, totalPages: 2, hasMore: false},
		{query: "?page=0&limit=5", count: 5, page: 0, totalPages: 0, hasMore: false},
		{query: "?page=abc&limit=-1", count: 2, page: 0, totalPages: 2, hasMore: true},
		{query: "?page=4611686018427387904&limit=2", count: 0, page: math.MaxInt / 2, totalPages: 2, hasMore: false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := perform(r, http.MethodGet, "/posts"+tt.query, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var got listResponse
			decode(t, w, &got)
			if got.Count != tt.count || got.Page != tt.page || got.TotalPages != tt.totalPages || got.HasMore != tt.hasMore {
				t.Errorf("got %+v", got)
			}
			if len(got.Posts) != got.Count {
				t.Errorf("count %d does not match %d posts", got.Count, len(got.Posts))
			}
		})
	}
}

func TestListPostsEmptyStore(t *testing.T) {
	r := newTestEngine(repository.NewMemoryPostRepository(), nil)
	w := perform(r, http.MethodGet, "/posts", nil)

	var got listResponse
	decode(t, w, &got)
	if got.Count != 0 || got.TotalPages != -1 || got.HasMore {
		t.Errorf("got %+v", got)
	}
	if !strings.Contains(w.Body.String(), `"posts":[]`) {
		t.Errorf("posts should be an empty array: %s", w.Body.String())
	}
}

func TestListPostsSortByRating(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	ids := seedPosts(t, repo, models.Post{Title: "mid"}, models.Post{Title: "none"}, models.Post{Title: "top"})
	ctx := context.Background()
	_ = repo.AddRating(ctx, ids[0], 3)
	_ = repo.AddRating(ctx, ids[2], 5)
	r := newTestEngine(repo, nil)

	w := perform(r, http.MethodGet, "/posts?sort=rating&limit=3", nil)
	var got listResponse
	decode(t, w, &got)
	order := []string{}
	for _, p := range got.Posts {
		order = append(order, p.Title)
	}
	if strings.Join(order, ",") != "top,mid,none" {
		t.Errorf("order = %v", order)
	}
}

func TestListPostsSortByViews(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo, models.Post{Title: "a", Views: 1}, models.Post{Title: "b", Views: 7}, models.Post{Title: "c", Views: 3})
	r := newTestEngine(repo, nil)

	w := perform(r, http.MethodGet, "/posts?sort=views&limit=3", nil)
	var got listResponse
	decode(t, w, &got)
	if len(got.Posts) != 3 || got.Posts[0].Title != "b" || got.Posts[2].Title != "a" {
		t.Errorf("posts = %+v", got.Posts)
	}
}

func TestSearchPosts(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo,
		models.Post{Title: "Learning Go"},
		models.Post{Title: "golang tips"},
		models.Post{Title: "Rust"},
		models.Post{Title: "a b c"},
		models.Post{Title: "ab"},
	)
	r := newTestEngine(repo, nil)

	tests := []struct {
		name    string
		path    string
		keyword string
		count   int
	}{
		{name: "case insensitive", path: "/posts/search?keyword=Go&limit=10", keyword: "Go", count: 2},
		{name: "space is literal", path: "/posts/search?keyword=a%20b&limit=10", keyword: "a b", count: 1},
		{name: "no match", path: "/posts/search?keyword=python", keyword: "python", count: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(r, http.MethodGet, tt.path, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			var got searchResponse
			decode(t, w, &got)
			if got.Keyword != tt.keyword || got.Count != tt.count {
				t.Errorf("got keyword=%q count=%d", got.Keyword, got.Count)
			}
		})
	}
}

func TestSearchPostsHugePage(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo, models.Post{Title: "Learning Go"})
	r := newTestEngine(repo, nil)

	w := perform(r, http.MethodGet, "/posts/search?keyword=go&page=9223372036854775807&limit=3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var got searchResponse
	decode(t, w, &got)
	if got.Count != 0 || got.HasMore {
		t.Errorf("got %+v", got)
	}
}

func TestSearchPostsWithoutResultSetWritesNoBody(t *testing.T) {
	r := newTestEngine(emptySearchRepository{}, nil)
	w := perform(r, http.MethodGet, "/posts/search?keyword=go", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestListPostsRecoversPanicInQuery(t *testing.T) {
	r := newTestEngine(panickingRepository{}, nil)
	w := perform(r, http.MethodGet, "/posts", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]string
	decode(t, w, &got)
	if !strings.Contains(got["message"], "count exploded") {
		t.Errorf("message = %q", got["message"])
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		page, limit         string
		wantPage, wantLimit int
	}{
		{page: "", limit: "", wantPage: 0, wantLimit: 2},
		{page: "3", limit: "10", wantPage: 3, wantLimit: 10},
		{page: "-4", limit: "0", wantPage: 0, wantLimit: 2},
		{page: "9223372036854775807", limit: "2", wantPage: math.MaxInt / 2, wantLimit: 2},
		{page: "99999999999999999999", limit: "5", wantPage: 0, wantLimit: 5},
	}
	for _, tt := range tests {
		page, limit := parsePagination(tt.page, tt.limit)
		if page != tt.wantPage || limit != tt.wantLimit {
			t.Errorf("parsePagination(%q, %q) = %d, %d", tt.page, tt.limit, page, limit)
		}
		if page*limit < 0 {
			t.Errorf("parsePagination(%q, %q) overflows skip", tt.page, tt.limit)
		}
	}
}

func TestSearchPostsInvalidPattern(t *testing.T) {
	r := newTestEngine(repository.NewMemoryPostRepository(), nil)
	w := perform(r, http.MethodGet, "/posts/search?keyword=(", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestTopRatingRoundsAndLimits(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	ctx := context.Background()
	ids := seedPosts(t, repo,
		models.Post{Title: "p1"}, models.Post{Title: "p2"}, models.Post{Title: "p3"},
		models.Post{Title: "p4"}, models.Post{Title: "p5"}, models.Post{Title: "p6"},
	)
	for i, id := range ids {
		_ = repo.AddRating(ctx, id, float64(i%5)+1)
	}
	_ = repo.AddRating(ctx, ids[0], 1)
	_ = repo.AddRating(ctx, ids[0], 2)
	r := newTestEngine(repo, nil)

	w := perform(r, http.MethodGet, "/posts/top-rating", nil)
	var got []models.RatedPost
	decode(t, w, &got)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Rating > got[i-1].Rating {
			t.Errorf("not descending at %d: %+v", i, got)
		}
	}
	for _, p := range got {
		if p.Title == "p1" && p.Rating != 1.33 {
			t.Errorf("p1 rating = %v, want 1.33", p.Rating)
		}
	}
}

func TestRecentAndTopViewed(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		seedPosts(t, repo, models.Post{Title: string(rune('a' + i)), Date: base.Add(time.Duration(i) * time.Hour), Views: int64(10 - i)})
	}
	r := newTestEngine(repo, nil)

	var recent []models.RecentPost
	decode(t, perform(r, http.MethodGet, "/posts/recent-post", nil), &recent)
	if len(recent) != 5 || recent[0].Title != "g" || recent[4].Title != "c" {
		t.Errorf("recent = %+v", recent)
	}

	var viewed []models.ViewedPost
	decode(t, perform(r, http.MethodGet, "/posts/top-view", nil), &viewed)
	if len(viewed) != 5 || viewed[0].Views != 10 || viewed[4].Views != 6 {
		t.Errorf("viewed = %+v", viewed)
	}
}

func TestGetPostIncrementsViews(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	ids := seedPosts(t, repo, models.Post{Title: "T"})
	r := newTestEngine(repo, nil)

	var first, second models.Post
	decode(t, perform(r, http.MethodGet, "/posts/"+ids[0], nil), &first)
	decode(t, perform(r, http.MethodGet, "/posts/"+ids[0], nil), &second)
	if first.Views != 1 || second.Views != 2 {
		t.Errorf("views = %d then %d, want 1 then 2", first.Views, second.Views)
	}
}

func TestGetPostMissingIsServerError(t *testing.T) {
	r := newTestEngine(repository.NewMemoryPostRepository(), nil)
	w := perform(r, http.MethodGet, "/posts/does-not-exist", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var got map[string]string
	decode(t, w, &got)
	if got["message"] != repository.ErrPostNotFound.Error() {
		t.Errorf("message = %q", got["message"])
	}
}

func TestRelatedPosts(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	ids := seedPosts(t, repo,
		models.Post{Title: "self", Category: "go"},
		models.Post{Title: "r1", Category: "go"},
		models.Post{Title: "other", Category: "rust"},
		models.Post{Title: "r2", Category: "go"},
		models.Post{Title: "r3", Category: "go"},
		models.Post{Title: "r4", Category: "go"},
	)
	r := newTestEngine(repo, nil)

	w := perform(r, http.MethodGet, "/posts/"+ids[0]+"/related-post", nil)
	var got []models.RelatedPost
	decode(t, w, &got)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for _, p := range got {
		if p.ID == ids[0] || p.Title == "other" {
			t.Errorf("unexpected related post %+v", p)
		}
	}
}

func TestRelatedPostsUnknownIDHasNoBody(t *testing.T) {
	r := newTestEngine(repository.NewMemoryPostRepository(), nil)
	w := perform(r, http.MethodGet, "/posts/unknown/related-post", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestCreatePost(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	pub := &recordingPublisher{}
	r := newTestEngine(repo, pub)

	w := perform(r, http.MethodPost, "/posts", map[string]interface{}{
		"title":    "Hello",
		"author":   "ann",
		"category": "go",
		"content":  "<p>hi</p><script>alert(1)</script>",
		"tags":     []string{"x"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var got struct {
		Message string `json:"message"`
		Request struct {
			Type string `json:"type"`
			URL  string `json:"url"`
		} `json:"request"`
	}
	decode(t, w, &got)
	if got.Message != "Created successfully" || got.Request.Type != "GET" {
		t.Errorf("got %+v", got)
	}
	prefix := "localhost:5500/posts/"
	if !strings.HasPrefix(got.Request.URL, prefix) {
		t.Fatalf("url = %q", got.Request.URL)
	}
	id := strings.TrimPrefix(got.Request.URL, prefix)

	stored, err := repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Views != 0 || len(stored.Rating) != 0 || stored.Date.IsZero() {
		t.Errorf("stored = %+v", stored)
	}
	if strings.Contains(stored.Content, "<script>") {
		t.Errorf("content not sanitized: %q", stored.Content)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypePostCreated || pub.events[0].PostID != id {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestCreatePostMalformedBody(t *testing.T) {
	r := newTestEngine(repository.NewMemoryPostRepository(), nil)
	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRatePostAverages(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	pub := &recordingPublisher{}
	ids := seedPosts(t, repo, models.Post{Title: "T"})
	r := newTestEngine(repo, pub)

	for _, v := range []float64{4, 2} {
		w := perform(r, http.MethodPost, "/posts/rate", map[string]interface{}{"postID": ids[0], "rating": v})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
		}
		var msg map[string]string
		decode(t, w, &msg)
		if msg["message"] != "Rate Successfully" {
			t.Errorf("message = %q", msg["message"])
		}
	}

	var top []models.RatedPost
	decode(t, perform(r, http.MethodGet, "/posts/top-rating", nil), &top)
	if len(top) != 1 || top[0].Rating != 3 {
		t.Errorf("top = %+v", top)
	}
	if len(pub.events) != 2 || pub.events[1].Type != events.TypePostRated || *pub.events[1].Rating != 2 {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestRatePostUnknownID(t *testing.T) {
	pub := &recordingPublisher{}
	r := newTestEngine(repository.NewMemoryPostRepository(), pub)
	w := perform(r, http.MethodPost, "/posts/rate", map[string]interface{}{"postID": "nope", "rating": 5})
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if len(pub.events) != 0 {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestStoreFailuresAreServerErrors(t *testing.T) {
	boom := errors.New("connection refused")
	r := newTestEngine(failingRepository{err: boom}, nil)

	tests := []struct {
		method string
		path   string
		body   interface{}
	}{
		{method: http.MethodGet, path: "/posts"},
		{method: http.MethodGet, path: "/posts?sort=rating"},
		{method: http.MethodGet, path: "/posts/top-rating"},
		{method: http.MethodGet, path: "/posts/abc"},
		{method: http.MethodPost, path: "/posts", body: map[string]string{"title": "T"}},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := perform(r, tt.method, tt.path, tt.body)
			if w.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d", w.Code)
			}
			var got map[string]string
			decode(t, w, &got)
			if got["message"] != boom.Error() {
				t.Errorf("message = %q", got["message"])
			}
		})
	}
}

func TestPageInfo(t *testing.T) {
	tests := []struct {
		total      int64
		page       int
		limit      int
		totalPages int
		hasMore    bool
	}{
		{total: 0, page: 0, limit: 2, totalPages: -1, hasMore: false},
		{total: 5, page: 0, limit: 2, totalPages: 2, hasMore: true},
		{total: 4, page: 1, limit: 2, totalPages: 1, hasMore: false},
		{total: 1, page: 0, limit: 10, totalPages: 0, hasMore: false},
	}
	for _, tt := range tests {
		totalPages, hasMore := pageInfo(tt.total, tt.page, tt.limit)
		if totalPages != tt.totalPages || hasMore != tt.hasMore {
			t.Errorf("pageInfo(%d, %d, %d) = %d, %v", tt.total, tt.page, tt.limit, totalPages, hasMore)
		}
	}
}
