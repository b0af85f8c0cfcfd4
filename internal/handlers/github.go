package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/consoleblue/consoleblue/internal/services"
	apperrors "github.com/consoleblue/consoleblue/pkg/errors"
	"github.com/consoleblue/consoleblue/pkg/response"
)

// GithubHandler serves the cached GitHub read endpoints and the sync and
// invalidation triggers.
type GithubHandler struct {
	github *services.GithubService
	sync   *services.SyncService
}

func NewGithubHandler(github *services.GithubService, sync *services.SyncService) *GithubHandler {
	return &GithubHandler{github: github, sync: sync}
}

// GET /api/github/repos
func (h *GithubHandler) Repos(c *gin.Context) {
	bypass := c.Query("refresh") == "true"

	result, err := h.github.ReadRepos(requestContext(c), bypass)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/github/repos/:repo/tree
func (h *GithubHandler) Tree(c *gin.Context) {
	result, err := h.github.ReadTree(requestContext(c), c.Param("repo"), c.Query("path"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/github/repos/:repo/file
func (h *GithubHandler) File(c *gin.Context) {
	path := c.Query("path")
	if strings.TrimSpace(path) == "" {
		response.Error(c, apperrors.NewBadRequest("path query parameter is required"))
		return
	}

	result, err := h.github.ReadFile(requestContext(c), c.Param("repo"), path)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/github/repos/:repo/commits
func (h *GithubHandler) Commits(c *gin.Context) {
	count, _ := strconv.Atoi(c.DefaultQuery("count", "10"))

	result, err := h.github.ReadCommits(requestContext(c), c.Param("repo"), count)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/github/repos/:repo/routes
func (h *GithubHandler) Routes(c *gin.Context) {
	result, err := h.github.ReadRoutes(requestContext(c), c.Param("repo"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/github/repos/:repo/search
func (h *GithubHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if strings.TrimSpace(query) == "" {
		response.Error(c, apperrors.NewBadRequest("q query parameter is required"))
		return
	}

	result, err := h.github.ReadSearch(requestContext(c), c.Param("repo"), query, c.Query("path"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

type syncRequest struct {
	Project string `json:"project"`
}

// POST /api/github/sync
//
// With a project identifier the handler refreshes that single project;
// without one it runs a full cycle, answering 409 when one is already
// in flight.
func (h *GithubHandler) Sync(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperrors.NewBadRequest("invalid request body"))
			return
		}
	}

	ctx := requestContext(c)

	if req.Project != "" {
		project, err := h.sync.SyncOne(ctx, req.Project)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, project)
		return
	}

	result, err := h.sync.RunFullCycle(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

type invalidateRequest struct {
	Repo string `json:"repo"`
	Key  string `json:"key"`
}

// POST /api/github/cache/invalidate
func (h *GithubHandler) Invalidate(c *gin.Context) {
	var req invalidateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperrors.NewBadRequest("invalid request body"))
			return
		}
	}

	ctx := requestContext(c)

	switch {
	case req.Key != "":
		removed, err := h.github.InvalidateKey(ctx, req.Key)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"removed": removed})
	case req.Repo != "":
		removed, err := h.sync.InvalidateRepo(ctx, req.Repo)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"invalidated": removed})
	default:
		invalidated, swept, err := h.sync.InvalidateAll(ctx)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"invalidated": invalidated, "swept": swept})
	}
}

// GET /api/github/cache/stats
func (h *GithubHandler) CacheStats(c *gin.Context) {
	stats, err := h.github.CacheStats(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}
