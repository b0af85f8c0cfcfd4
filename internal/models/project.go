package models

import "time"

// Project statuses mirror the values accepted by the hub UI.
const (
	ProjectStatusActive      = "active"
	ProjectStatusArchived    = "archived"
	ProjectStatusMaintenance = "maintenance"
	ProjectStatusDevelopment = "development"
	ProjectStatusPlanned     = "planned"
)

// Project is a locally tracked project that may be linked to a GitHub
// repository. The synchronizer only ever touches DefaultBranch, Description
// and LastSyncedAt; everything else is owned by the CRUD layer.
type Project struct {
	BaseModel

	Slug        string `gorm:"uniqueIndex;size:100;not null" json:"slug"`
	DisplayName string `gorm:"size:200;not null" json:"display_name"`
	Description string `json:"description"`

	// GitHub link. An empty GithubRepo means the project is not linked and
	// is skipped by the synchronizer.
	GithubOwner   string `gorm:"size:100" json:"github_owner"`
	GithubRepo    string `gorm:"size:200;index" json:"github_repo"`
	DefaultBranch string `gorm:"size:100;default:main" json:"default_branch"`

	Status  string `gorm:"size:20;default:active" json:"status"`
	Visible bool   `gorm:"default:true" json:"visible"`

	SyncEnabled  bool       `gorm:"default:true;index" json:"sync_enabled"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

// Linked reports whether the project is associated with a GitHub repository.
func (p *Project) Linked() bool {
	return p != nil && p.GithubRepo != ""
}
