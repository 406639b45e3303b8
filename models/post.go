package models

import "time"

// Post is a blog post as stored and returned by the single-post endpoints.
// Rating holds every submitted value; the displayed rating is their average.
type Post struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	Category    string    `json:"category"`
	Content     string    `json:"content"`
	Cover       string    `json:"cover"`
	Tags        []string  `json:"tags"`
	Date        time.Time `json:"date"`
	Views       int64     `json:"views"`
	Rating      []float64 `json:"rating"`
}

// PostSummary is the public subset used by the paginated list.
type PostSummary struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Cover       string    `json:"cover"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	Tags        []string  `json:"tags"`
}

// RatedPost carries the average rating computed at query time.
type RatedPost struct {
	ID     string  `json:"_id"`
	Title  string  `json:"title"`
	Cover  string  `json:"cover"`
	Rating float64 `json:"rating"`
}

type RecentPost struct {
	ID    string    `json:"_id"`
	Title string    `json:"title"`
	Cover string    `json:"cover"`
	Date  time.Time `json:"date"`
}

type ViewedPost struct {
	ID    string `json:"_id"`
	Title string `json:"title"`
	Cover string `json:"cover"`
	Views int64  `json:"views"`
}

type RelatedPost struct {
	ID    string `json:"_id"`
	Cover string `json:"cover"`
	Title string `json:"title"`
}

// Summary reduces a post to its list projection.
func (p Post) Summary() PostSummary {
	return PostSummary{
		ID:          p.ID,
		Title:       p.Title,
		Cover:       p.Cover,
		Description: p.Description,
		Category:    p.Category,
		Date:        p.Date,
		Tags:        p.Tags,
	}
}
