package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// PostRecord is the relational row behind a Post. Tags are kept as a JSON array in a text column.
type PostRecord struct {
	ID          uint         `gorm:"primaryKey"`
	Title       string       `gorm:"size:255;not null"`
	Description string       `gorm:"type:text"`
	Author      string       `gorm:"size:128"`
	Category    string       `gorm:"size:64;index"`
	Content     string       `gorm:"type:text"`
	Cover       string       `gorm:"size:1024"`
	Tags        string       `gorm:"type:text"`
	Date        time.Time    `gorm:"index;not null"`
	Views       int64        `gorm:"not null;default:0;index"`
	Ratings     []PostRating `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"`
}

func (PostRecord) TableName() string { return "posts" }

// PostRating is one submitted rating. Rows are only ever inserted.
type PostRating struct {
	ID        uint      `gorm:"primaryKey"`
	PostID    uint      `gorm:"index;not null"`
	Value     float64   `gorm:"not null"`
	CreatedAt time.Time
}

func (PostRating) TableName() string { return "post_ratings" }

// ToPost converts the row and its preloaded ratings into the API shape.
func (r PostRecord) ToPost() Post {
	tags := []string{}
	if r.Tags != "" {
		_ = json.Unmarshal([]byte(r.Tags), &tags)
	}
	ratings := make([]float64, 0, len(r.Ratings))
	for _, rt := range r.Ratings {
		ratings = append(ratings, rt.Value)
	}
	return Post{
		ID:          strconv.FormatUint(uint64(r.ID), 10),
		Title:       r.Title,
		Description: r.Description,
		Author:      r.Author,
		Category:    r.Category,
		Content:     r.Content,
		Cover:       r.Cover,
		Tags:        tags,
		Date:        r.Date,
		Views:       r.Views,
		Rating:      ratings,
	}
}

// NewPostRecord builds a row for insertion. Ratings are never copied; they live in post_ratings.
func NewPostRecord(p Post) PostRecord {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return PostRecord{
		Title:       p.Title,
		Description: p.Description,
		Author:      p.Author,
		Category:    p.Category,
		Content:     p.Content,
		Cover:       p.Cover,
		Tags:        string(b),
		Date:        p.Date,
		Views:       p.Views,
	}
}
