package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/cppla/blogposts/repository"
	"github.com/cppla/blogposts/utils"
)

// HealthController reports whether the store and the optional Redis are reachable.
type HealthController struct {
	posts repository.PostRepository
	redis *redis.Client
}

// NewHealthController creates a HealthController. rc may be nil when Redis is disabled.
func NewHealthController(posts repository.PostRepository, rc *redis.Client) *HealthController {
	return &HealthController{posts: posts, redis: rc}
}

// Health answers 200 while the store responds and 503 otherwise. Redis only degrades the report.
func (h *HealthController) Health(ctx *gin.Context) {
	c, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	store := "ok"
	if err := h.posts.Ping(c); err != nil {
		utils.Sugar.Warnw("store ping failed", "error", err)
		store = "unavailable"
		status = http.StatusServiceUnavailable
	}

	cache := "disabled"
	if h.redis != nil {
		cache = "ok"
		if err := h.redis.Ping(c).Err(); err != nil {
			cache = "unavailable"
		}
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	ctx.JSON(status, gin.H{"status": overall, "store": store, "redis": cache})
}
