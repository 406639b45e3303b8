// Package events publishes post lifecycle notifications for downstream consumers.
package events

import (
	"context"
	"time"
)

const (
	TypePostCreated = "post.created"
	TypePostRated   = "post.rated"
)

// Event is the JSON payload written to the events topic.
type Event struct {
	Type       string    `json:"type"`
	PostID     string    `json:"post_id"`
	Title      string    `json:"title,omitempty"`
	Category   string    `json:"category,omitempty"`
	Rating     *float64  `json:"rating,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// PostCreated builds the event emitted after a post is stored.
func PostCreated(id, title, category string) Event {
	return Event{Type: TypePostCreated, PostID: id, Title: title, Category: category, OccurredAt: time.Now().UTC()}
}

// PostRated builds the event emitted after a rating is appended.
func PostRated(id string, rating float64) Event {
	return Event{Type: TypePostRated, PostID: id, Rating: &rating, OccurredAt: time.Now().UTC()}
}
