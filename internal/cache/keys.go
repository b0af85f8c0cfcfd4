package cache

import (
	"fmt"
	"strings"
	"time"
)

// Endpoint identifies one class of cached GitHub read.
type Endpoint string

const (
	EndpointRepos   Endpoint = "repos"
	EndpointTree    Endpoint = "tree"
	EndpointFile    Endpoint = "file"
	EndpointCommits Endpoint = "commits"
	EndpointRoutes  Endpoint = "routes"
	EndpointSearch  Endpoint = "search"
)

// defaultTTLs is the static endpoint table. Repo lists and extracted routes
// change rarely; commits and search results churn fastest.
var defaultTTLs = map[Endpoint]time.Duration{
	EndpointRepos:   10 * time.Minute,
	EndpointTree:    5 * time.Minute,
	EndpointFile:    5 * time.Minute,
	EndpointCommits: 2 * time.Minute,
	EndpointRoutes:  15 * time.Minute,
	EndpointSearch:  2 * time.Minute,
}

// Policy resolves the TTL for each endpoint, applying configured overrides
// on top of the defaults.
type Policy struct {
	overrides map[Endpoint]time.Duration
}

// NewPolicy builds a Policy from per-endpoint overrides; zero or negative
// override durations are ignored.
func NewPolicy(overrides map[Endpoint]time.Duration) Policy {
	cleaned := make(map[Endpoint]time.Duration, len(overrides))
	for endpoint, ttl := range overrides {
		if ttl > 0 {
			cleaned[endpoint] = ttl
		}
	}
	return Policy{overrides: cleaned}
}

// TTL returns the effective time-to-live for an endpoint.
func (p Policy) TTL(endpoint Endpoint) time.Duration {
	if ttl, ok := p.overrides[endpoint]; ok {
		return ttl
	}
	if ttl, ok := defaultTTLs[endpoint]; ok {
		return ttl
	}
	return 5 * time.Minute
}

// Key is the deterministic identity of one cacheable request. Two
// semantically identical requests must produce the same Key.
type Key struct {
	Endpoint Endpoint
	Owner    string
	Repo     string
	Path     string
	Query    string
}

// String renders the canonical cache key.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(string(k.Endpoint))
	b.WriteByte(':')
	b.WriteString(k.Owner)
	if k.Repo != "" {
		b.WriteByte('/')
		b.WriteString(k.Repo)
	}
	if k.Path != "" {
		b.WriteByte(':')
		b.WriteString(k.Path)
	}
	if k.Query != "" {
		b.WriteByte(':')
		b.WriteString(k.Query)
	}
	return b.String()
}

// ReposKey identifies the owner-wide repository listing.
func ReposKey(owner string) Key {
	return Key{Endpoint: EndpointRepos, Owner: owner}
}

// TreeKey identifies one directory listing.
func TreeKey(owner, repo, path string) Key {
	return Key{Endpoint: EndpointTree, Owner: owner, Repo: repo, Path: NormalizePath(path)}
}

// FileKey identifies one file fetch.
func FileKey(owner, repo, path string) Key {
	return Key{Endpoint: EndpointFile, Owner: owner, Repo: repo, Path: NormalizePath(path)}
}

// CommitsKey identifies a commit listing; the requested count is part of
// the identity so different page sizes do not collide.
func CommitsKey(owner, repo string, count int) Key {
	return Key{Endpoint: EndpointCommits, Owner: owner, Repo: repo, Query: fmt.Sprintf("count=%d", count)}
}

// RoutesKey identifies the extracted route list of a repository.
func RoutesKey(owner, repo string) Key {
	return Key{Endpoint: EndpointRoutes, Owner: owner, Repo: repo}
}

// SearchKey identifies one code search.
func SearchKey(owner, repo, query, path string) Key {
	return Key{
		Endpoint: EndpointSearch,
		Owner:    owner,
		Repo:     repo,
		Path:     NormalizePath(path),
		Query:    "q=" + strings.TrimSpace(query),
	}
}

// NormalizePath canonicalizes tree/file paths so "/src/app/" and "src/app"
// derive the same key.
func NormalizePath(path string) string {
	return strings.Trim(strings.TrimSpace(path), "/")
}
