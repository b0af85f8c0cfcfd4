package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/consoleblue/consoleblue/internal/app"
	"github.com/consoleblue/consoleblue/internal/handlers"
	"github.com/consoleblue/consoleblue/internal/middleware"
	"github.com/consoleblue/consoleblue/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, cfg *app.Config, github *services.GithubService, sync *services.SyncService) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if github == nil {
		return nil, fmt.Errorf("github service must be provided")
	}
	if sync == nil {
		return nil, fmt.Errorf("sync service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	rateLimit := cfg.Server.RateLimit
	if rateLimit <= 0 {
		rateLimit = 100
	}
	r.Use(middleware.RateLimit(rateLimit, time.Minute))

	healthHandler := handlers.NewHealthHandler(db, github)
	r.GET("/api/health", healthHandler.Health)

	githubHandler := handlers.NewGithubHandler(github, sync)

	api := r.Group("/api")

	// Every GitHub-scoped endpoint sits behind the shared-secret guard;
	// health and audit stay open.
	gh := api.Group("/github")
	gh.Use(middleware.APIKey(cfg.Server.APIKey))
	{
		gh.GET("/repos", githubHandler.Repos)
		gh.GET("/repos/:repo/tree", githubHandler.Tree)
		gh.GET("/repos/:repo/file", githubHandler.File)
		gh.GET("/repos/:repo/commits", githubHandler.Commits)
		gh.GET("/repos/:repo/routes", githubHandler.Routes)
		gh.GET("/repos/:repo/search", githubHandler.Search)
		gh.GET("/cache/stats", githubHandler.CacheStats)
		gh.POST("/sync", githubHandler.Sync)
		gh.POST("/cache/invalidate", githubHandler.Invalidate)
	}

	auditHandler, err := handlers.NewAuditHandler(db)
	if err != nil {
		return nil, err
	}
	api.GET("/audit", auditHandler.List)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
