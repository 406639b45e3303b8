package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/blogposts/config"
	"github.com/cppla/blogposts/events"
	"github.com/cppla/blogposts/models"
	"github.com/cppla/blogposts/repository"
	"github.com/cppla/blogposts/routes"
	"github.com/cppla/blogposts/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	posts, err := openRepository(cfg)
	if err != nil {
		utils.Sugar.Fatalf("open post store: %v", err)
	}
	utils.Sugar.Infof("post store ready driver=%s", cfg.DBDriver)

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaTopic)
	rc := utils.GetRedis()

	r := routes.SetupRouter(cfg, routes.Deps{
		Posts:  posts,
		Events: publisher,
		Redis:  rc,
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, shutdownHooks(posts, publisher, rc)...); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

// shutdownHooks releases the store, the event writer and, when configured, Redis.
func shutdownHooks(posts repository.PostRepository, publisher events.Publisher, rc *redis.Client) []utils.ShutdownHook {
	hooks := []utils.ShutdownHook{
		posts.Close,
		func(context.Context) error { return publisher.Close() },
	}
	if rc != nil {
		hooks = append(hooks, func(context.Context) error { return rc.Close() })
	}
	return hooks
}

// openRepository connects the backend named by DB_DRIVER.
func openRepository(cfg config.AppConfig) (repository.PostRepository, error) {
	switch cfg.DBDriver {
	case "mongo", "mongodb":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, coll, err := config.InitMongo(ctx)
		if err != nil {
			return nil, err
		}
		repo := repository.NewMongoPostRepository(client, coll)
		if err := repo.EnsureIndexes(ctx); err != nil {
			utils.Sugar.Warnf("mongo index creation failed: %v", err)
		}
		return repo, nil
	case "mysql", "postgres", "sqlite":
		// Auto-migrate posts and their ratings
		db, err := config.InitDatabase(&models.PostRecord{}, &models.PostRating{})
		if err != nil {
			return nil, err
		}
		return repository.NewGormPostRepository(db), nil
	case "memory":
		utils.Sugar.Warn("using in-memory post store; data is lost on restart")
		return repository.NewMemoryPostRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}
