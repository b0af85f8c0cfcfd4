package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/consoleblue/consoleblue/internal/models"
	"github.com/consoleblue/consoleblue/pkg/metrics"
)

// Stats summarizes the cache table.
type Stats struct {
	Entries     int64      `json:"entries"`
	OldestEntry *time.Time `json:"oldestEntry,omitempty"`
}

// Store is the durable TTL cache backed by the primary SQL database. All
// operations are individually atomic; concurrent get/put/invalidate/sweep
// from multiple callers is safe.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Option customises the Store.
type Option func(*Store)

// WithNow overrides the clock, primarily for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore constructs a database-backed cache store.
func NewStore(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("cache: db is required")
	}

	store := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Get returns the entry for key if present and unexpired. An expired row is
// treated as absent even before the sweep removes it; the stale row is
// deleted opportunistically.
func (s *Store) Get(ctx context.Context, key string) (*models.CacheEntry, bool, error) {
	ctx = ensureContext(ctx)

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Take(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %q: %w", key, err)
	}

	if entry.Expired(s.now()) {
		_, _ = s.InvalidateByKey(ctx, key)
		return nil, false, nil
	}

	return &entry, true, nil
}

// Put upserts the payload under the derived key. The expiry is always
// recomputed from the current time so refreshed entries never carry a stale
// expiry forward.
func (s *Store) Put(ctx context.Context, key Key, payload any, ttl time.Duration) (*models.CacheEntry, error) {
	ctx = ensureContext(ctx)

	if ttl <= 0 {
		return nil, fmt.Errorf("cache: put %q: ttl must be positive", key.String())
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cache: marshal payload for %q: %w", key.String(), err)
	}

	now := s.now()
	entry := models.CacheEntry{
		Key:        key.String(),
		Endpoint:   string(key.Endpoint),
		Owner:      key.Owner,
		Repo:       key.Repo,
		Path:       key.Path,
		Payload:    encoded,
		TTLSeconds: int(ttl / time.Second),
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"endpoint", "owner", "repo", "path", "payload", "ttl_seconds", "expires_at", "updated_at"}),
		}).Create(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("cache: put %q: %w", key.String(), err)
	}

	return &entry, nil
}

// InvalidateByRepo deletes every entry for the repository across all
// endpoints and returns the number of rows removed.
func (s *Store) InvalidateByRepo(ctx context.Context, repo string) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Where("repo = ?", repo).Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("cache: invalidate repo %q: %w", repo, result.Error)
	}

	metrics.CacheInvalidations.WithLabelValues("repo").Add(float64(result.RowsAffected))
	return result.RowsAffected, nil
}

// InvalidateByKey deletes one entry; it reports false when the key was
// absent.
func (s *Store) InvalidateByKey(ctx context.Context, key string) (bool, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.CacheEntry{})
	if result.Error != nil {
		return false, fmt.Errorf("cache: invalidate key %q: %w", key, result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.CacheInvalidations.WithLabelValues("key").Add(float64(result.RowsAffected))
	}
	return result.RowsAffected > 0, nil
}

// SweepExpired deletes every entry past its expiry. Deletion is idempotent,
// so the sweep is safe to run concurrently with reads and writes.
func (s *Store) SweepExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("cache: sweep expired: %w", result.Error)
	}

	metrics.CacheInvalidations.WithLabelValues("sweep").Add(float64(result.RowsAffected))
	return result.RowsAffected, nil
}

// Stats reports the entry count and the creation time of the oldest row.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)

	var stats Stats
	if err := s.db.WithContext(ctx).Model(&models.CacheEntry{}).Count(&stats.Entries).Error; err != nil {
		return Stats{}, fmt.Errorf("cache: count entries: %w", err)
	}

	if stats.Entries > 0 {
		var oldest models.CacheEntry
		err := s.db.WithContext(ctx).Order("created_at ASC").Take(&oldest).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return Stats{}, fmt.Errorf("cache: oldest entry: %w", err)
		}
		if err == nil {
			stats.OldestEntry = &oldest.CreatedAt
		}
	}

	return stats, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
