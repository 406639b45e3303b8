// Package repository is the data-access layer for posts. Each backend
// implements PostRepository over a different store.
package repository

import (
	"context"
	"errors"

	"github.com/cppla/blogposts/models"
)

// ErrPostNotFound is returned when no post has the requested id.
var ErrPostNotFound = errors.New("post not found")

// RatingSortKey selects the computed-average ordering in List.
const RatingSortKey = "rating"

// PostRepository is the store contract the handlers rely on. Patterns passed
// to the title search are regular expressions matched case-insensitively.
type PostRepository interface {
	Count(ctx context.Context) (int64, error)
	// List returns posts sorted descending by sortField, skipping skip and returning at most limit.
	List(ctx context.Context, sortField string, skip, limit int) ([]models.Post, error)
	// ListByRating orders by the average rating computed at query time.
	ListByRating(ctx context.Context, skip, limit int) ([]models.Post, error)

	CountByTitle(ctx context.Context, pattern string) (int64, error)
	SearchByTitle(ctx context.Context, pattern string, skip, limit int) ([]models.Post, error)

	TopRated(ctx context.Context, limit int) ([]models.RatedPost, error)
	Recent(ctx context.Context, limit int) ([]models.Post, error)
	TopViewed(ctx context.Context, limit int) ([]models.Post, error)

	FindByID(ctx context.Context, id string) (*models.Post, error)
	// IncrementViews atomically adds one view and returns the updated post.
	IncrementViews(ctx context.Context, id string) (*models.Post, error)
	FindRelated(ctx context.Context, category, excludeID string, limit int) ([]models.Post, error)

	// Create stores post and assigns its ID.
	Create(ctx context.Context, post *models.Post) error
	AddRating(ctx context.Context, id string, value float64) error

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
