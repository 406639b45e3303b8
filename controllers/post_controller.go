package controllers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/cppla/blogposts/events"
	"github.com/cppla/blogposts/models"
	"github.com/cppla/blogposts/repository"
	"github.com/cppla/blogposts/utils"
)

const (
	defaultPage  = 0
	defaultLimit = 2
	highlightMax = 5
	relatedMax   = 3
)

// PostController serves the post listing, lookup, creation and rating endpoints.
type PostController struct {
	posts         repository.PostRepository
	events        events.Publisher
	publicBaseURL string
	routePrefix   string
}

// NewPostController creates a new PostController instance.
func NewPostController(posts repository.PostRepository, publisher events.Publisher, publicBaseURL, routePrefix string) *PostController {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &PostController{posts: posts, events: publisher, publicBaseURL: publicBaseURL, routePrefix: routePrefix}
}

type listResponse struct {
	Count      int                  `json:"count"`
	Page       int                  `json:"page"`
	TotalPages int                  `json:"totalPages"`
	HasMore    bool                 `json:"hasMore"`
	Posts      []models.PostSummary `json:"posts"`
}

type searchResponse struct {
	Keyword    string        `json:"keyword"`
	Count      int           `json:"count"`
	Page       int           `json:"page"`
	TotalPages int           `json:"totalPages"`
	HasMore    bool          `json:"hasMore"`
	Posts      []models.Post `json:"posts"`
}

type createPostRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Author      string   `json:"author"`
	Category    string   `json:"category"`
	Content     string   `json:"content"`
	Cover       string   `json:"cover"`
	Tags        []string `json:"tags"`
}

type ratePostRequest struct {
	PostID string  `json:"postID"`
	Rating float64 `json:"rating"`
}

// ListPosts returns one page of post summaries sorted descending by the sort field.
func (p *PostController) ListPosts(ctx *gin.Context) {
	page, limit := parsePagination(ctx.Query("page"), ctx.Query("limit"))
	sort := ctx.Query("sort")

	var total int64
	var posts []models.Post
	err := countAndFetch(ctx.Request.Context(),
		func(c context.Context) (err error) {
			total, err = p.posts.Count(c)
			return err
		},
		func(c context.Context) (err error) {
			if sort == repository.RatingSortKey {
				posts, err = p.posts.ListByRating(c, page*limit, limit)
			} else {
				posts, err = p.posts.List(c, sort, page*limit, limit)
			}
			return err
		},
	)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}

	totalPages, hasMore := pageInfo(total, page, limit)
	summaries := make([]models.PostSummary, 0, len(posts))
	for _, post := range posts {
		summaries = append(summaries, post.Summary())
	}
	ctx.JSON(http.StatusOK, listResponse{
		Count:      len(summaries),
		Page:       page,
		TotalPages: totalPages,
		HasMore:    hasMore,
		Posts:      summaries,
	})
}

// SearchPosts matches the keyword against titles, case-insensitively, and returns full documents.
func (p *PostController) SearchPosts(ctx *gin.Context) {
	keyword := ctx.Query("keyword")
	page, limit := parsePagination(ctx.Query("page"), ctx.Query("limit"))
	pattern := utils.EscapeSpace(keyword)

	var total int64
	var posts []models.Post
	err := countAndFetch(ctx.Request.Context(),
		func(c context.Context) (err error) {
			total, err = p.posts.CountByTitle(c, pattern)
			return err
		},
		func(c context.Context) (err error) {
			posts, err = p.posts.SearchByTitle(c, pattern, page*limit, limit)
			return err
		},
	)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}

	// An absent result without an error gets no body; kept as the existing contract.
	if posts == nil {
		utils.Sugar.Warnw("search returned no result set", "keyword", keyword, "request_id", ctx.GetString(utils.RequestIDKey))
		return
	}

	totalPages, hasMore := pageInfo(total, page, limit)
	ctx.JSON(http.StatusOK, searchResponse{
		Keyword:    keyword,
		Count:      len(posts),
		Page:       page,
		TotalPages: totalPages,
		HasMore:    hasMore,
		Posts:      posts,
	})
}

// TopRating returns the five best average ratings, rounded to two decimals.
func (p *PostController) TopRating(ctx *gin.Context) {
	rated, err := p.posts.TopRated(ctx.Request.Context(), highlightMax)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	out := make([]models.RatedPost, 0, len(rated))
	for _, r := range rated {
		r.Rating = utils.Round2(r.Rating)
		out = append(out, r)
	}
	ctx.JSON(http.StatusOK, out)
}

// RecentPosts returns the five newest posts.
func (p *PostController) RecentPosts(ctx *gin.Context) {
	posts, err := p.posts.Recent(ctx.Request.Context(), highlightMax)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	out := make([]models.RecentPost, 0, len(posts))
	for _, post := range posts {
		out = append(out, models.RecentPost{ID: post.ID, Title: post.Title, Cover: post.Cover, Date: post.Date})
	}
	ctx.JSON(http.StatusOK, out)
}

// TopViewed returns the five most viewed posts.
func (p *PostController) TopViewed(ctx *gin.Context) {
	posts, err := p.posts.TopViewed(ctx.Request.Context(), highlightMax)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	out := make([]models.ViewedPost, 0, len(posts))
	for _, post := range posts {
		out = append(out, models.ViewedPost{ID: post.ID, Title: post.Title, Cover: post.Cover, Views: post.Views})
	}
	ctx.JSON(http.StatusOK, out)
}

// GetPost counts a view and returns the updated post. A missing post is reported as 500.
func (p *PostController) GetPost(ctx *gin.Context) {
	post, err := p.posts.IncrementViews(ctx.Request.Context(), ctx.Param("postID"))
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, post)
}

// RelatedPosts returns up to three other posts in the same category.
func (p *PostController) RelatedPosts(ctx *gin.Context) {
	postID := ctx.Param("postID")

	// The lookup sits outside the handler's error reporting: a failure aborts with a bare 500.
	post, err := p.posts.FindByID(ctx.Request.Context(), postID)
	if err != nil {
		utils.Sugar.Errorw("related posts lookup failed", "post_id", postID, "request_id", ctx.GetString(utils.RequestIDKey), "error", err)
		_ = ctx.Error(err)
		ctx.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	utils.Sugar.Debugw("related posts lookup", "post_id", postID, "category", post.Category)

	related, err := p.posts.FindRelated(ctx.Request.Context(), post.Category, postID, relatedMax)
	if err != nil {
		utils.Fail(ctx, err)
		return
	}
	out := make([]models.RelatedPost, 0, len(related))
	for _, r := range related {
		out = append(out, models.RelatedPost{ID: r.ID, Cover: r.Cover, Title: r.Title})
	}
	ctx.JSON(http.StatusOK, out)
}

// CreatePost stores a new post dated now and answers with its location.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req createPostRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, err)
		return
	}

	post := models.Post{
		Title:       utils.Sanitize(req.Title),
		Description: utils.Sanitize(req.Description),
		Author:      req.Author,
		Category:    req.Category,
		Content:     utils.Sanitize(req.Content),
		Cover:       req.Cover,
		Tags:        req.Tags,
		Date:        time.Now(),
		Rating:      []float64{},
	}
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if err := p.posts.Create(ctx.Request.Context(), &post); err != nil {
		utils.Fail(ctx, err)
		return
	}

	p.publish(ctx, events.PostCreated(post.ID, post.Title, post.Category))

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "Created successfully",
		"request": gin.H{
			"type": http.MethodGet,
			"url":  p.publicBaseURL + p.routePrefix + "/" + post.ID,
		},
	})
}

// RatePost appends one rating value. The value is not range checked.
func (p *PostController) RatePost(ctx *gin.Context) {
	var req ratePostRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Fail(ctx, err)
		return
	}
	if err := p.posts.AddRating(ctx.Request.Context(), req.PostID, req.Rating); err != nil {
		utils.Fail(ctx, err)
		return
	}

	p.publish(ctx, events.PostRated(req.PostID, req.Rating))

	utils.Message(ctx, http.StatusOK, "Rate Successfully")
}

// publish is best-effort: a broker outage is logged and never fails the request.
func (p *PostController) publish(ctx *gin.Context, e events.Event) {
	c, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()
	if err := p.events.Publish(c, e); err != nil {
		utils.Sugar.Warnw("event publish failed", "type", e.Type, "post_id", e.PostID, "error", err)
	}
}

// countAndFetch runs the total count and the page query concurrently; the first failure cancels the other.
// The recovery middleware cannot see these goroutines, so a panic in either is returned as an error.
func countAndFetch(ctx context.Context, count, fetch func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return recovered(gctx, count) })
	g.Go(func() error { return recovered(gctx, fetch) })
	return g.Wait()
}

func recovered(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.Sugar.Errorw("store query panicked", "panic", r)
			err = fmt.Errorf("store query panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// parsePagination applies the defaults page=0, limit=2. Unparseable values fall back to
// the defaults, a negative page to 0 and a non-positive limit to 2. page is capped so
// that page*limit cannot overflow.
func parsePagination(pageStr, limitStr string) (int, int) {
	page := defaultPage
	limit := defaultLimit
	if v, err := strconv.Atoi(pageStr); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(limitStr); err == nil && v > 0 {
		limit = v
	}
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}
	return page, limit
}

// pageInfo returns totalPages = ceil(total/limit) - 1 (so -1 for an empty store) and whether page < totalPages.
func pageInfo(total int64, page, limit int) (int, bool) {
	totalPages := int(math.Ceil(float64(total)/float64(limit))) - 1
	return totalPages, page < totalPages
}
