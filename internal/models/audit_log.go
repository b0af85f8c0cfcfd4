package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit actions recorded by the hub.
const (
	AuditActionSync           = "sync"
	AuditActionSettingsChange = "settings_change"
)

// AuditLog records one hub event. The sync engine only ever appends.
type AuditLog struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	Action     string         `gorm:"not null;index" json:"action"`
	EntityType string         `gorm:"size:100;not null;index" json:"entity_type"`
	EntityID   *string        `gorm:"type:uuid" json:"entity_id"`
	EntitySlug string         `gorm:"size:200" json:"entity_slug"`
	Metadata   datatypes.JSON `json:"metadata"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
