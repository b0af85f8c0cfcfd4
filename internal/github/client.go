package github

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	gogithub "github.com/google/go-github/v67/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/consoleblue/consoleblue/pkg/errors"
	"github.com/consoleblue/consoleblue/pkg/logger"
)

const (
	defaultRequestsPerSecond = 5
	maxCommitCount           = 100
)

// Config holds origin client settings.
type Config struct {
	// Token authenticates against the GitHub API. When empty the client is
	// unconfigured and every call fails fast.
	Token string
	// Owner is the user or organization whose repositories the hub mirrors.
	Owner string
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
	// RequestsPerSecond caps outbound API calls; zero applies the default.
	RequestsPerSecond float64
}

// Client is a thin adapter over the GitHub API. It performs no caching and
// no retries; both belong to its callers.
type Client struct {
	gh      *gogithub.Client
	owner   string
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient builds an origin client. A missing token yields a client in the
// unconfigured state rather than an error, so the hub can still serve
// cached data and report the condition on its health endpoint.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		owner: strings.TrimSpace(cfg.Owner),
		log:   logger.WithModule("github"),
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), int(rps)+1)

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return c, nil
	}

	gh := gogithub.NewClient(nil).WithAuthToken(token)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github: parse base url: %w", err)
		}
		gh.BaseURL = parsed
	}
	c.gh = gh

	return c, nil
}

// Configured reports whether a token is present.
func (c *Client) Configured() bool {
	return c != nil && c.gh != nil
}

// ready gates every API call on configuration and the outbound rate limiter.
func (c *Client) ready(ctx context.Context) error {
	if !c.Configured() {
		return apperrors.ErrOriginUnconfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.ErrOriginUnavailable.WithInternal(err)
	}
	return nil
}

// ListRepos returns all repositories of the configured owner.
func (c *Client) ListRepos(ctx context.Context) ([]Repo, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	opts := &gogithub.RepositoryListByUserOptions{
		Sort:        "updated",
		ListOptions: gogithub.ListOptions{PerPage: 100},
	}

	var repos []Repo
	for {
		page, resp, err := c.gh.Repositories.ListByUser(ctx, c.owner, opts)
		if err != nil {
			return nil, classifyError(err)
		}
		for _, r := range page {
			repos = append(repos, convertRepo(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return repos, nil
}

// GetTree lists the contents of a directory within a repository,
// directories first, then lexicographic by name.
func (c *Client) GetTree(ctx context.Context, repo, path string) ([]TreeEntry, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	file, dir, _, err := c.gh.Repositories.GetContents(ctx, c.owner, repo, path, nil)
	if err != nil {
		return nil, classifyError(err)
	}

	var entries []TreeEntry
	switch {
	case dir != nil:
		entries = make([]TreeEntry, 0, len(dir))
		for _, item := range dir {
			entries = append(entries, convertTreeEntry(item))
		}
	case file != nil:
		entries = []TreeEntry{convertTreeEntry(file)}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == "dir"
		}
		return entries[i].Name < entries[j].Name
	})

	return entries, nil
}

// GetFileContent fetches and decodes a single file.
func (c *Client) GetFileContent(ctx context.Context, repo, path string) (*FileContent, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	file, _, _, err := c.gh.Repositories.GetContents(ctx, c.owner, repo, path, nil)
	if err != nil {
		return nil, classifyError(err)
	}
	if file == nil {
		return nil, apperrors.ErrOriginNotFound.WithMessage(fmt.Sprintf("%q is not a file", path))
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, apperrors.ErrOriginUnknown.WithInternal(err)
	}

	return &FileContent{
		Name:    file.GetName(),
		Path:    file.GetPath(),
		Size:    file.GetSize(),
		Content: content,
	}, nil
}

// GetCommits returns the most recent commits of a repository's default
// branch, most recent first.
func (c *Client) GetCommits(ctx context.Context, repo string, count int) ([]Commit, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	if count <= 0 {
		count = 10
	}
	if count > maxCommitCount {
		count = maxCommitCount
	}

	listed, _, err := c.gh.Repositories.ListCommits(ctx, c.owner, repo, &gogithub.CommitsListOptions{
		ListOptions: gogithub.ListOptions{PerPage: count},
	})
	if err != nil {
		return nil, classifyError(err)
	}

	commits := make([]Commit, 0, len(listed))
	for _, rc := range listed {
		commits = append(commits, convertCommit(rc))
	}

	return commits, nil
}

// SearchFiles runs a code search scoped to one repository and optional path
// prefix.
func (c *Client) SearchFiles(ctx context.Context, repo, query, path string) ([]FileMatch, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	q := fmt.Sprintf("%s repo:%s/%s", query, c.owner, repo)
	if strings.TrimSpace(path) != "" {
		q += fmt.Sprintf(" path:%s", strings.TrimSpace(path))
	}

	result, _, err := c.gh.Search.Code(ctx, q, &gogithub.SearchOptions{
		ListOptions: gogithub.ListOptions{PerPage: 50},
	})
	if err != nil {
		return nil, classifyError(err)
	}

	matches := make([]FileMatch, 0, len(result.CodeResults))
	for _, cr := range result.CodeResults {
		matches = append(matches, FileMatch{
			Name: cr.GetName(),
			Path: cr.GetPath(),
			URL:  cr.GetHTMLURL(),
		})
	}

	return matches, nil
}

func convertRepo(r *gogithub.Repository) Repo {
	repo := Repo{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
		Private:       r.GetPrivate(),
		Language:      r.GetLanguage(),
		Stars:         r.GetStargazersCount(),
		URL:           r.GetHTMLURL(),
	}
	if ts := r.GetUpdatedAt(); !ts.IsZero() {
		t := ts.Time
		repo.UpdatedAt = &t
	}
	return repo
}

func convertTreeEntry(rc *gogithub.RepositoryContent) TreeEntry {
	entry := TreeEntry{
		Name: rc.GetName(),
		Path: rc.GetPath(),
		Type: rc.GetType(),
	}
	if entry.Type == "file" {
		entry.Size = rc.GetSize()
	}
	return entry
}

func convertCommit(rc *gogithub.RepositoryCommit) Commit {
	commit := Commit{
		SHA: rc.GetSHA(),
		URL: rc.GetHTMLURL(),
	}
	if inner := rc.GetCommit(); inner != nil {
		commit.Message = inner.GetMessage()
		if author := inner.GetAuthor(); author != nil {
			commit.Author = author.GetName()
			commit.Date = author.GetDate().Time
		}
	}
	return commit
}
