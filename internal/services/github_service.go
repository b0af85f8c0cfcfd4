package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/consoleblue/consoleblue/internal/cache"
	"github.com/consoleblue/consoleblue/internal/github"
	apperrors "github.com/consoleblue/consoleblue/pkg/errors"
	"github.com/consoleblue/consoleblue/pkg/logger"
)

// Origin is the slice of the GitHub client the read path and the
// synchronizer consume. Tests substitute fakes.
type Origin interface {
	Configured() bool
	ListRepos(ctx context.Context) ([]github.Repo, error)
	GetTree(ctx context.Context, repo, path string) ([]github.TreeEntry, error)
	GetFileContent(ctx context.Context, repo, path string) (*github.FileContent, error)
	GetCommits(ctx context.Context, repo string, count int) ([]github.Commit, error)
	SearchFiles(ctx context.Context, repo, query, path string) ([]github.FileMatch, error)
}

// CacheInfo annotates a read result with its cache provenance.
type CacheInfo struct {
	Cached   bool       `json:"cached"`
	CachedAt *time.Time `json:"cachedAt,omitempty"`
}

// ReposResult is the payload of the repos read endpoint.
type ReposResult struct {
	Count int           `json:"count"`
	Repos []github.Repo `json:"repos"`
	CacheInfo
}

// TreeResult is the payload of the tree read endpoint.
type TreeResult struct {
	Repo     string             `json:"repo"`
	Path     string             `json:"path"`
	Contents []github.TreeEntry `json:"contents"`
	CacheInfo
}

// FileResult is the payload of the file read endpoint.
type FileResult struct {
	github.FileContent
	CacheInfo
}

// CommitsResult is the payload of the commits read endpoint.
type CommitsResult struct {
	Repo    string          `json:"repo"`
	Count   int             `json:"count"`
	Commits []github.Commit `json:"commits"`
	CacheInfo
}

// RoutesResult is the payload of the routes read endpoint.
type RoutesResult struct {
	Repo string `json:"repo"`
	github.RouteExtraction
	CacheInfo
}

// SearchResult is the payload of the search read endpoint.
type SearchResult struct {
	Repo  string             `json:"repo"`
	Query string             `json:"query"`
	Path  string             `json:"path"`
	Count int                `json:"count"`
	Files []github.FileMatch `json:"files"`
	CacheInfo
}

// GithubService is the cached read path over the origin client. Every read
// goes through the cache-aside interceptor; origin failures propagate with
// their distinguishing status and are never cached.
type GithubService struct {
	origin     Origin
	store      *cache.Store
	policy     cache.Policy
	owner      string
	routesFile string
	log        *zap.Logger
}

// GithubServiceConfig wires the read path.
type GithubServiceConfig struct {
	Owner      string
	RoutesFile string
	Policy     cache.Policy
}

// NewGithubService constructs the cached GitHub read service.
func NewGithubService(origin Origin, store *cache.Store, cfg GithubServiceConfig) (*GithubService, error) {
	if origin == nil {
		return nil, errors.New("github service: origin client is required")
	}
	if store == nil {
		return nil, errors.New("github service: cache store is required")
	}

	routesFile := cfg.RoutesFile
	if routesFile == "" {
		routesFile = "server/routes.ts"
	}

	return &GithubService{
		origin:     origin,
		store:      store,
		policy:     cfg.Policy,
		owner:      cfg.Owner,
		routesFile: routesFile,
		log:        logger.WithModule("github-service"),
	}, nil
}

// ReadRepos lists the owner's repositories, optionally bypassing the cache.
func (s *GithubService) ReadRepos(ctx context.Context, bypass bool) (*ReposResult, error) {
	res, err := cache.ReadThrough(ctx, s.store, s.policy, cache.ReposKey(s.owner), bypass, s.origin.ListRepos)
	if err != nil {
		return nil, err
	}

	return &ReposResult{
		Count:     len(res.Payload),
		Repos:     res.Payload,
		CacheInfo: CacheInfo{Cached: res.Cached, CachedAt: res.CachedAt},
	}, nil
}

// ReadTree lists a directory of a repository.
func (s *GithubService) ReadTree(ctx context.Context, repo, path string) (*TreeResult, error) {
	normalized := cache.NormalizePath(path)

	res, err := cache.ReadThrough(ctx, s.store, s.policy, cache.TreeKey(s.owner, repo, path), false,
		func(ctx context.Context) ([]github.TreeEntry, error) {
			return s.origin.GetTree(ctx, repo, normalized)
		})
	if err != nil {
		return nil, err
	}

	return &TreeResult{
		Repo:      repo,
		Path:      normalized,
		Contents:  res.Payload,
		CacheInfo: CacheInfo{Cached: res.Cached, CachedAt: res.CachedAt},
	}, nil
}

// ReadFile fetches one file's decoded content.
func (s *GithubService) ReadFile(ctx context.Context, repo, path string) (*FileResult, error) {
	normalized := cache.NormalizePath(path)

	res, err := cache.ReadThrough(ctx, s.store, s.policy, cache.FileKey(s.owner, repo, path), false,
		func(ctx context.Context) (github.FileContent, error) {
			file, err := s.origin.GetFileContent(ctx, repo, normalized)
			if err != nil {
				return github.FileContent{}, err
			}
			return *file, nil
		})
	if err != nil {
		return nil, err
	}

	return &FileResult{
		FileContent: res.Payload,
		CacheInfo:   CacheInfo{Cached: res.Cached, CachedAt: res.CachedAt},
	}, nil
}

// ReadCommits lists the most recent commits of a repository.
func (s *GithubService) ReadCommits(ctx context.Context, repo string, count int) (*CommitsResult, error) {
	if count <= 0 {
		count = 10
	}

	res, err := cache.ReadThrough(ctx, s.store, s.policy, cache.CommitsKey(s.owner, repo, count), false,
		func(ctx context.Context) ([]github.Commit, error) {
			return s.origin.GetCommits(ctx, repo, count)
		})
	if err != nil {
		return nil, err
	}

	return &CommitsResult{
		Repo:      repo,
		Count:     len(res.Payload),
		Commits:   res.Payload,
		CacheInfo: CacheInfo{Cached: res.Cached, CachedAt: res.CachedAt},
	}, nil
}

// ReadRoutes fetches the repository's route source file and extracts its
// declared endpoints. The extraction itself is pure; only the file fetch
// touches the origin.
func (s *GithubService) ReadRoutes(ctx context.Context, repo string) (*RoutesResult, error) {
	res, err := cache.ReadThrough(ctx, s.store, s.policy, cache.RoutesKey(s.owner, repo), false,
		func(ctx context.Context) (github.RouteExtraction, error) {
			file, err := s.origin.GetFileContent(ctx, repo, s.routesFile)
			if err != nil {
				return github.RouteExtraction{}, err
			}
			return github.ExtractRoutes(file.Content, file.Path), nil
		})
	if err != nil {
		return nil, err
	}

	return &RoutesResult{
		Repo:            repo,
		RouteExtraction: res.Payload,
		CacheInfo:       CacheInfo{Cached: res.Cached, CachedAt: res.CachedAt},
	}, nil
}

// ReadSearch runs a repo-scoped code search.
func (s *GithubService) ReadSearch(ctx context.Context, repo, query, path string) (*SearchResult, error) {
	normalized := cache.NormalizePath(path)

	res, err := cache.ReadThrough(ctx, s.store, s.policy, cache.SearchKey(s.owner, repo, query, path), false,
		func(ctx context.Context) ([]github.FileMatch, error) {
			return s.origin.SearchFiles(ctx, repo, query, normalized)
		})
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Repo:      repo,
		Query:     query,
		Path:      normalized,
		Count:     len(res.Payload),
		Files:     res.Payload,
		CacheInfo: CacheInfo{Cached: res.Cached, CachedAt: res.CachedAt},
	}, nil
}

// Configured reports whether the origin client holds credentials.
func (s *GithubService) Configured() bool {
	return s.origin.Configured()
}

// InvalidateKey drops a single cache entry by its exact key and reports
// whether the key was present.
func (s *GithubService) InvalidateKey(ctx context.Context, key string) (bool, error) {
	removed, err := s.store.InvalidateByKey(ctx, key)
	if err != nil {
		return false, apperrors.ErrStoreUnavailable.WithInternal(fmt.Errorf("invalidate %q: %w", key, err))
	}
	return removed, nil
}

// CacheStats reports the cache table summary.
func (s *GithubService) CacheStats(ctx context.Context) (cache.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return cache.Stats{}, apperrors.ErrStoreUnavailable.WithInternal(fmt.Errorf("cache stats: %w", err))
	}
	return stats, nil
}
