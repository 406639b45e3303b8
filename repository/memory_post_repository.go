package repository

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cppla/blogposts/models"
	"github.com/cppla/blogposts/utils"
)

// MemoryPostRepository keeps posts in process, in insertion order.
type MemoryPostRepository struct {
	mu    sync.RWMutex
	posts []*models.Post
}

// NewMemoryPostRepository creates an empty in-memory store.
func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{}
}

func (m *MemoryPostRepository) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.posts)), nil
}

// List orders by the known numeric and time fields; any other key keeps insertion order.
func (m *MemoryPostRepository) List(ctx context.Context, sortField string, skip, limit int) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.snapshot(nil)
	if less := descendingBy(sortField); less != nil {
		sort.SliceStable(all, func(i, j int) bool { return less(all[i], all[j]) })
	}
	return page(all, skip, limit), nil
}

func (m *MemoryPostRepository) ListByRating(ctx context.Context, skip, limit int) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.snapshot(nil)
	sortByAverage(all)
	return page(all, skip, limit), nil
}

func (m *MemoryPostRepository) CountByTitle(ctx context.Context, pattern string) (int64, error) {
	re, err := compileTitlePattern(pattern)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.snapshot(titleMatcher(re)))), nil
}

func (m *MemoryPostRepository) SearchByTitle(ctx context.Context, pattern string, skip, limit int) ([]models.Post, error) {
	re, err := compileTitlePattern(pattern)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return page(m.snapshot(titleMatcher(re)), skip, limit), nil
}

func (m *MemoryPostRepository) TopRated(ctx context.Context, limit int) ([]models.RatedPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.snapshot(nil)
	sortByAverage(all)
	out := []models.RatedPost{}
	for _, p := range page(all, 0, limit) {
		out = append(out, models.RatedPost{ID: p.ID, Title: p.Title, Cover: p.Cover, Rating: utils.Average(p.Rating)})
	}
	return out, nil
}

func (m *MemoryPostRepository) Recent(ctx context.Context, limit int) ([]models.Post, error) {
	return m.List(ctx, "date", 0, limit)
}

func (m *MemoryPostRepository) TopViewed(ctx context.Context, limit int) ([]models.Post, error) {
	return m.List(ctx, "views", 0, limit)
}

func (m *MemoryPostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := m.find(id)
	if p == nil {
		return nil, ErrPostNotFound
	}
	cp := clonePost(p)
	return &cp, nil
}

func (m *MemoryPostRepository) IncrementViews(ctx context.Context, id string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.find(id)
	if p == nil {
		return nil, ErrPostNotFound
	}
	p.Views++
	cp := clonePost(p)
	return &cp, nil
}

func (m *MemoryPostRepository) FindRelated(ctx context.Context, category, excludeID string, limit int) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	related := m.snapshot(func(p *models.Post) bool {
		return p.Category == category && p.ID != excludeID
	})
	return page(related, 0, limit), nil
}

func (m *MemoryPostRepository) Create(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	post.ID = uuid.NewString()
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if post.Rating == nil {
		post.Rating = []float64{}
	}
	stored := clonePost(post)
	m.posts = append(m.posts, &stored)
	return nil
}

func (m *MemoryPostRepository) AddRating(ctx context.Context, id string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.find(id)
	if p == nil {
		return ErrPostNotFound
	}
	p.Rating = append(p.Rating, value)
	return nil
}

func (m *MemoryPostRepository) Ping(ctx context.Context) error  { return nil }
func (m *MemoryPostRepository) Close(ctx context.Context) error { return nil }

// callers hold m.mu
func (m *MemoryPostRepository) find(id string) *models.Post {
	for _, p := range m.posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// callers hold m.mu
func (m *MemoryPostRepository) snapshot(keep func(*models.Post) bool) []models.Post {
	out := make([]models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		if keep == nil || keep(p) {
			out = append(out, clonePost(p))
		}
	}
	return out
}

func clonePost(p *models.Post) models.Post {
	cp := *p
	cp.Tags = append([]string{}, p.Tags...)
	cp.Rating = append([]float64{}, p.Rating...)
	return cp
}

func compileTitlePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid title pattern: %w", err)
	}
	return re, nil
}

func titleMatcher(re *regexp.Regexp) func(*models.Post) bool {
	return func(p *models.Post) bool { return re.MatchString(p.Title) }
}

func descendingBy(field string) func(a, b models.Post) bool {
	switch field {
	case "date":
		return func(a, b models.Post) bool { return a.Date.After(b.Date) }
	case "views":
		return func(a, b models.Post) bool { return a.Views > b.Views }
	case "title":
		return func(a, b models.Post) bool { return a.Title > b.Title }
	case "category":
		return func(a, b models.Post) bool { return a.Category > b.Category }
	case "author":
		return func(a, b models.Post) bool { return a.Author > b.Author }
	case "_id":
		return func(a, b models.Post) bool { return a.ID > b.ID }
	case "description":
		return func(a, b models.Post) bool { return a.Description > b.Description }
	case "content":
		return func(a, b models.Post) bool { return a.Content > b.Content }
	case "cover":
		return func(a, b models.Post) bool { return a.Cover > b.Cover }
	default:
		return nil
	}
}

// Unrated posts sort after every rated one, as a missing average does in the document store.
func sortByAverage(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		ri, rj := len(posts[i].Rating) > 0, len(posts[j].Rating) > 0
		if ri != rj {
			return ri
		}
		return utils.Average(posts[i].Rating) > utils.Average(posts[j].Rating)
	})
}

func page(posts []models.Post, skip, limit int) []models.Post {
	if skip < 0 || skip >= len(posts) {
		return []models.Post{}
	}
	posts = posts[skip:]
	if limit > 0 && limit < len(posts) {
		posts = posts[:limit]
	}
	return posts
}
