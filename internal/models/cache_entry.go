package models

import (
	"time"

	"gorm.io/datatypes"
)

// CacheEntry is one cached GitHub API response. Rows are upserted by cache
// key and removed by repo-scoped invalidation, key invalidation, or the
// expiry sweep.
type CacheEntry struct {
	Key        string         `gorm:"primaryKey;size:500" json:"key"`
	Endpoint   string         `gorm:"size:100;not null;index" json:"endpoint"`
	Owner      string         `gorm:"size:100;not null" json:"owner"`
	Repo       string         `gorm:"size:200;index" json:"repo"`
	Path       string         `json:"path"`
	Payload    datatypes.JSON `gorm:"not null" json:"payload"`
	TTLSeconds int            `gorm:"not null;default:300" json:"ttl_seconds"`
	ExpiresAt  time.Time      `gorm:"not null;index" json:"expires_at"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}
