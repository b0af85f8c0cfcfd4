package github

import "time"

// Repo is the repository metadata surfaced to the hub. Field names follow
// the JSON shape the web client consumes.
type Repo struct {
	Name          string     `json:"name"`
	FullName      string     `json:"fullName"`
	Description   string     `json:"description"`
	DefaultBranch string     `json:"defaultBranch"`
	Private       bool       `json:"private"`
	Language      string     `json:"language,omitempty"`
	Stars         int        `json:"stars"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
	URL           string     `json:"url"`
}

// TreeEntry is one item of a directory listing.
type TreeEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // file | dir
	Size int    `json:"size,omitempty"`
}

// FileContent is a decoded file fetched from a repository.
type FileContent struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

// Commit is a single commit summary, most recent first in listings.
type Commit struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	URL     string    `json:"url"`
}

// FileMatch is one code-search result.
type FileMatch struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// RouteExtraction is the result of scanning a source file for declared routes.
type RouteExtraction struct {
	RouteCount int      `json:"routeCount"`
	Routes     []string `json:"routes"`
	SourceFile string   `json:"sourceFile"`
}
