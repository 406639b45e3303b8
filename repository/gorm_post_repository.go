package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/blogposts/models"
)

// averageRatingExpr is evaluated per row and is NULL for an unrated post.
const averageRatingExpr = "(SELECT AVG(r.value) FROM post_ratings r WHERE r.post_id = posts.id)"

// averageRatingOrder sorts unrated posts after every rated one, whatever the rating values.
// NULLS LAST is spelled out as a leading IS NULL key since MySQL has no such clause.
const averageRatingOrder = averageRatingExpr + " IS NULL, avg_rating DESC"

// sortableColumns maps accepted sort keys onto columns. Keys outside this set are
// not interpolated into SQL and leave rows in primary key order.
var sortableColumns = map[string]string{
	"_id":         "id",
	"title":       "title",
	"description": "description",
	"author":      "author",
	"category":    "category",
	"content":     "content",
	"cover":       "cover",
	"date":        "date",
	"views":       "views",
}

type ratedRow struct {
	ID          uint
	Title       string
	Cover       string
	Description string
	Category    string
	Date        time.Time
	Tags        string
	AvgRating   *float64
}

// GormPostRepository stores posts in a relational table with ratings in post_ratings.
type GormPostRepository struct {
	db *gorm.DB
}

// NewGormPostRepository wraps an opened and migrated gorm handle.
func NewGormPostRepository(db *gorm.DB) *GormPostRepository {
	return &GormPostRepository{db: db}
}

func (r *GormPostRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.PostRecord{}).Count(&total).Error
	return total, err
}

func (r *GormPostRepository) List(ctx context.Context, sortField string, skip, limit int) ([]models.Post, error) {
	q := r.db.WithContext(ctx).Model(&models.PostRecord{})
	if col, ok := sortableColumns[sortField]; ok {
		q = q.Order(col + " DESC")
	} else {
		q = q.Order("id")
	}
	return r.findRecords(q.Offset(skip).Limit(limit), false)
}

func (r *GormPostRepository) ListByRating(ctx context.Context, skip, limit int) ([]models.Post, error) {
	rows, err := r.rated(ctx, skip, limit)
	if err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0, len(rows))
	for _, row := range rows {
		p := models.PostRecord{
			ID:          row.ID,
			Title:       row.Title,
			Cover:       row.Cover,
			Description: row.Description,
			Category:    row.Category,
			Date:        row.Date,
			Tags:        row.Tags,
		}.ToPost()
		posts = append(posts, p)
	}
	return posts, nil
}

func (r *GormPostRepository) CountByTitle(ctx context.Context, pattern string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.PostRecord{}).Where(r.titleRegexClause(), pattern).Count(&total).Error
	return total, err
}

func (r *GormPostRepository) SearchByTitle(ctx context.Context, pattern string, skip, limit int) ([]models.Post, error) {
	q := r.db.WithContext(ctx).Model(&models.PostRecord{}).
		Where(r.titleRegexClause(), pattern).
		Order("id").
		Offset(skip).Limit(limit)
	return r.findRecords(q, true)
}

func (r *GormPostRepository) TopRated(ctx context.Context, limit int) ([]models.RatedPost, error) {
	rows, err := r.rated(ctx, 0, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.RatedPost, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.RatedPost{
			ID:     strconv.FormatUint(uint64(row.ID), 10),
			Title:  row.Title,
			Cover:  row.Cover,
			Rating: derefRating(row.AvgRating),
		})
	}
	return out, nil
}

func (r *GormPostRepository) Recent(ctx context.Context, limit int) ([]models.Post, error) {
	return r.List(ctx, "date", 0, limit)
}

func (r *GormPostRepository) TopViewed(ctx context.Context, limit int) ([]models.Post, error) {
	return r.List(ctx, "views", 0, limit)
}

func (r *GormPostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	pk, err := parseRowID(id)
	if err != nil {
		return nil, err
	}
	var rec models.PostRecord
	if err := r.db.WithContext(ctx).Preload("Ratings").First(&rec, pk).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	p := rec.ToPost()
	return &p, nil
}

func (r *GormPostRepository) IncrementViews(ctx context.Context, id string) (*models.Post, error) {
	pk, err := parseRowID(id)
	if err != nil {
		return nil, err
	}
	var rec models.PostRecord
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PostRecord{}).Where("id = ?", pk).
			UpdateColumn("views", gorm.Expr("views + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPostNotFound
		}
		return tx.Preload("Ratings").First(&rec, pk).Error
	})
	if err != nil {
		return nil, err
	}
	p := rec.ToPost()
	return &p, nil
}

func (r *GormPostRepository) FindRelated(ctx context.Context, category, excludeID string, limit int) ([]models.Post, error) {
	pk, err := parseRowID(excludeID)
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).Model(&models.PostRecord{}).
		Where("category = ? AND id <> ?", category, pk).
		Order("id").
		Limit(limit)
	return r.findRecords(q, false)
}

func (r *GormPostRepository) Create(ctx context.Context, post *models.Post) error {
	rec := models.NewPostRecord(*post)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return err
	}
	stored := rec.ToPost()
	*post = stored
	return nil
}

func (r *GormPostRepository) AddRating(ctx context.Context, id string, value float64) error {
	pk, err := parseRowID(id)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.PostRecord{}).Where("id = ?", pk).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return ErrPostNotFound
		}
		return tx.Create(&models.PostRating{PostID: pk, Value: value}).Error
	})
}

func (r *GormPostRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormPostRepository) Close(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *GormPostRepository) rated(ctx context.Context, skip, limit int) ([]ratedRow, error) {
	var rows []ratedRow
	err := r.db.WithContext(ctx).Model(&models.PostRecord{}).
		Select("posts.id, posts.title, posts.cover, posts.description, posts.category, posts.date, posts.tags, " + averageRatingExpr + " AS avg_rating").
		Order(averageRatingOrder).
		Offset(skip).Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *GormPostRepository) findRecords(q *gorm.DB, withRatings bool) ([]models.Post, error) {
	if withRatings {
		q = q.Preload("Ratings")
	}
	var recs []models.PostRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0, len(recs))
	for _, rec := range recs {
		posts = append(posts, rec.ToPost())
	}
	return posts, nil
}

// titleRegexClause is the case-insensitive regex predicate for the connected dialect.
func (r *GormPostRepository) titleRegexClause() string {
	return titleRegexClause(r.db.Dialector.Name())
}

func titleRegexClause(dialect string) string {
	switch dialect {
	case "postgres":
		return "title ~* ?"
	default:
		return "REGEXP_LIKE(title, ?, 'i')"
	}
}

func derefRating(avg *float64) float64 {
	if avg == nil {
		return 0
	}
	return *avg
}

func parseRowID(id string) (uint, error) {
	pk, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid post id %q: %w", id, err)
	}
	return uint(pk), nil
}
