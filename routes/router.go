package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cppla/blogposts/config"
	"github.com/cppla/blogposts/controllers"
	"github.com/cppla/blogposts/events"
	"github.com/cppla/blogposts/middleware"
	"github.com/cppla/blogposts/repository"
	"github.com/cppla/blogposts/utils"
)

// Deps are the collaborators the handlers are built from.
type Deps struct {
	Posts  repository.PostRepository
	Events events.Publisher
	// Redis is optional; nil keeps rate limiting in process.
	Redis *redis.Client
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, deps Deps) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())

	// Access log goes to its own rolling file; fall back to the app logger when none is configured
	accessLog := utils.Logger
	if cfg.GinPath != "" {
		if gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			accessLog = gl
		} else {
			utils.Sugar.Warnf("gin access log disabled: %v", err)
		}
	}
	r.Use(utils.Ginzap(accessLog, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(accessLog, true))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	if cfg.MetricsEnabled {
		r.Use(middleware.Metrics())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	healthController := controllers.NewHealthController(deps.Posts, deps.Redis)
	postController := controllers.NewPostController(deps.Posts, deps.Events, cfg.PublicBaseURL, cfg.RoutePrefix)

	r.GET("/health", healthController.Health)

	posts := r.Group(cfg.RoutePrefix)
	posts.GET("", postController.ListPosts)
	posts.GET("/search", postController.SearchPosts)
	posts.GET("/top-rating", postController.TopRating)
	posts.GET("/recent-post", postController.RecentPosts)
	posts.GET("/top-view", postController.TopViewed)
	posts.GET("/:postID", postController.GetPost)
	posts.GET("/:postID/related-post", postController.RelatedPosts)

	writes := posts.Group("")
	writes.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, deps.Redis))
	writes.POST("", postController.CreatePost)
	writes.POST("/rate", postController.RatePost)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Message(ctx, http.StatusNotFound, "route not found")
	})

	return r
}
