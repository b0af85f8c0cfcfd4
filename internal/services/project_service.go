package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/consoleblue/consoleblue/internal/models"
	apperrors "github.com/consoleblue/consoleblue/pkg/errors"
)

// syncableColumns are the only project fields the sync engine may touch.
// Everything else belongs to the CRUD layer.
var syncableColumns = map[string]struct{}{
	"default_branch": {},
	"description":    {},
	"last_synced_at": {},
}

// ProjectService exposes the project-record capabilities the sync engine
// consumes: the sync-enabled projection, identifier lookup, and scoped
// field updates.
type ProjectService struct {
	db *gorm.DB
}

// NewProjectService constructs a ProjectService.
func NewProjectService(db *gorm.DB) (*ProjectService, error) {
	if db == nil {
		return nil, errors.New("project service: db is required")
	}
	return &ProjectService{db: db}, nil
}

// ListSyncEnabled returns every project opted into the periodic sweep.
// Projects with SyncEnabled false are never returned here; they can still
// be synced on demand through FindByIdentifier.
func (s *ProjectService) ListSyncEnabled(ctx context.Context) ([]models.Project, error) {
	ctx = ensureContext(ctx)

	var projects []models.Project
	err := s.db.WithContext(ctx).
		Where("sync_enabled = ?", true).
		Order("slug ASC").
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("project service: list sync-enabled: %w", err)
	}

	return projects, nil
}

// FindByIdentifier resolves a project by ID or slug.
func (s *ProjectService) FindByIdentifier(ctx context.Context, idOrSlug string) (*models.Project, error) {
	ctx = ensureContext(ctx)

	idOrSlug = strings.TrimSpace(idOrSlug)
	if idOrSlug == "" {
		return nil, apperrors.NewBadRequest("project identifier is required")
	}

	var project models.Project
	err := s.db.WithContext(ctx).
		Where("id = ? OR slug = ?", idOrSlug, idOrSlug).
		Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project service: find %q: %w", idOrSlug, err)
	}

	return &project, nil
}

// UpdateSyncFields applies a restricted set of column updates to one
// project and returns the refreshed record. Columns outside the syncable
// set are rejected.
func (s *ProjectService) UpdateSyncFields(ctx context.Context, id string, fields map[string]any) (*models.Project, error) {
	ctx = ensureContext(ctx)

	if len(fields) == 0 {
		return nil, apperrors.NewBadRequest("no fields to update")
	}
	for column := range fields {
		if _, ok := syncableColumns[column]; !ok {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("field %q is not sync-updatable", column))
		}
	}

	result := s.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return nil, fmt.Errorf("project service: update %q: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.ErrProjectNotFound
	}

	var project models.Project
	if err := s.db.WithContext(ctx).Take(&project, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("project service: reload %q: %w", id, err)
	}

	return &project, nil
}
