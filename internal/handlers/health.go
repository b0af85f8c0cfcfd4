package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/consoleblue/consoleblue/internal/services"
	"github.com/consoleblue/consoleblue/pkg/response"
)

// HealthHandler reports process, database, origin, and cache condition in
// one payload for readiness checks and the status page.
type HealthHandler struct {
	db     *gorm.DB
	github *services.GithubService
}

func NewHealthHandler(db *gorm.DB, github *services.GithubService) *HealthHandler {
	return &HealthHandler{db: db, github: github}
}

// GET /api/health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := requestContext(c)

	payload := gin.H{
		"service":   "ConsoleBlue",
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "error"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "error"
	}
	payload["database"] = dbStatus
	if dbStatus != "ok" {
		payload["status"] = "degraded"
	}

	if h.github.Configured() {
		payload["github"] = "configured"
	} else {
		payload["github"] = "missing_token"
	}

	if stats, err := h.github.CacheStats(ctx); err == nil {
		payload["cache"] = stats
	}

	response.Success(c, http.StatusOK, payload)
}
