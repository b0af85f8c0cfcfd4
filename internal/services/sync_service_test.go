package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/consoleblue/consoleblue/internal/cache"
	"github.com/consoleblue/consoleblue/internal/github"
	"github.com/consoleblue/consoleblue/internal/models"
	apperrors "github.com/consoleblue/consoleblue/pkg/errors"
)

func openServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Project{},
		&models.CacheEntry{},
		&models.AuditLog{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// fakeOrigin is a scriptable Origin for sync and read-path tests.
type fakeOrigin struct {
	mu sync.Mutex

	configured bool
	repos      []github.Repo
	listErr    error
	listCalls  int

	// listBegan is closed when the first ListRepos call starts; listGate,
	// when set, blocks ListRepos until closed. Used by shutdown tests.
	listBegan chan struct{}
	listGate  chan struct{}

	file    *github.FileContent
	fileErr error

	commits    []github.Commit
	commitsErr error
}

func (f *fakeOrigin) Configured() bool { return f.configured }

func (f *fakeOrigin) ListRepos(ctx context.Context) ([]github.Repo, error) {
	f.mu.Lock()
	f.listCalls++
	repos, err := f.repos, f.listErr
	began, gate := f.listBegan, f.listGate
	f.listBegan = nil
	f.mu.Unlock()

	if began != nil {
		close(began)
	}
	if gate != nil {
		<-gate
	}

	if err != nil {
		return nil, err
	}
	return repos, nil
}

func (f *fakeOrigin) GetTree(ctx context.Context, repo, path string) ([]github.TreeEntry, error) {
	return nil, nil
}

func (f *fakeOrigin) GetFileContent(ctx context.Context, repo, path string) (*github.FileContent, error) {
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	return f.file, nil
}

func (f *fakeOrigin) GetCommits(ctx context.Context, repo string, count int) ([]github.Commit, error) {
	if f.commitsErr != nil {
		return nil, f.commitsErr
	}
	return f.commits, nil
}

func (f *fakeOrigin) SearchFiles(ctx context.Context, repo, query, path string) ([]github.FileMatch, error) {
	return nil, nil
}

func newSyncFixture(t *testing.T, origin Origin) (*SyncService, *gorm.DB, *cache.Store) {
	t.Helper()

	db := openServicesTestDB(t)

	projects, err := NewProjectService(db)
	require.NoError(t, err)
	store, err := cache.NewStore(db)
	require.NoError(t, err)
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	svc, err := NewSyncService(projects, origin, store, audit, SyncConfig{})
	require.NoError(t, err)

	return svc, db, store
}

func createProject(t *testing.T, db *gorm.DB, slug, repo string, mutate ...func(*models.Project)) models.Project {
	t.Helper()

	project := models.Project{
		Slug:        slug,
		DisplayName: slug,
		GithubOwner: "octocat",
		GithubRepo:  repo,
		SyncEnabled: true,
	}
	for _, fn := range mutate {
		fn(&project)
	}
	require.NoError(t, db.Create(&project).Error)
	return project
}

func TestFullCycleSyncsLinkedProjects(t *testing.T) {
	origin := &fakeOrigin{
		configured: true,
		repos: []github.Repo{
			{Name: "hub", DefaultBranch: "develop", Description: "origin description"},
			{Name: "tools", DefaultBranch: "main"},
		},
	}
	svc, db, store := newSyncFixture(t, origin)

	createProject(t, db, "hub", "hub")
	createProject(t, db, "tools", "tools", func(p *models.Project) {
		p.Description = "local description"
	})
	createProject(t, db, "notes", "") // unlinked, skipped

	_, err := store.Put(context.Background(), cache.TreeKey("octocat", "hub", ""), "stale", time.Hour)
	require.NoError(t, err)

	result, err := svc.RunFullCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"hub", "tools"}, result.Synced)
	require.Empty(t, result.Errors)
	require.Equal(t, 1, origin.listCalls)

	var hub models.Project
	require.NoError(t, db.Take(&hub, "slug = ?", "hub").Error)
	require.Equal(t, "develop", hub.DefaultBranch)
	require.Equal(t, "origin description", hub.Description)
	require.NotNil(t, hub.LastSyncedAt)

	// A non-empty local description is never overwritten.
	var tools models.Project
	require.NoError(t, db.Take(&tools, "slug = ?", "tools").Error)
	require.Equal(t, "local description", tools.Description)
	require.NotNil(t, tools.LastSyncedAt)

	// The synced project's cache was cleared.
	_, ok, err := store.Get(context.Background(), cache.TreeKey("octocat", "hub", "").String())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFullCycleIsolatesMissingRepo(t *testing.T) {
	origin := &fakeOrigin{
		configured: true,
		repos:      []github.Repo{{Name: "hub", DefaultBranch: "main"}},
	}
	svc, db, _ := newSyncFixture(t, origin)

	createProject(t, db, "hub", "hub")
	createProject(t, db, "ghost", "vanished")

	result, err := svc.RunFullCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"hub"}, result.Synced)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "ghost", result.Errors[0].Project)
	require.Contains(t, result.Errors[0].Message, "repo not found")

	// The failed project keeps its sync timestamp untouched.
	var ghost models.Project
	require.NoError(t, db.Take(&ghost, "slug = ?", "ghost").Error)
	require.Nil(t, ghost.LastSyncedAt)
}

func TestFullCycleIsolatesUpdateFailure(t *testing.T) {
	origin := &fakeOrigin{
		configured: true,
		repos: []github.Repo{
			{Name: "broken", DefaultBranch: "main"},
			{Name: "hub", DefaultBranch: "main"},
		},
	}
	svc, db, store := newSyncFixture(t, origin)

	createProject(t, db, "broken", "broken")
	createProject(t, db, "hub", "hub")

	// Make the first project's row update fail at the database level.
	require.NoError(t, db.Exec(`
		CREATE TRIGGER reject_broken_update BEFORE UPDATE ON projects
		WHEN NEW.slug = 'broken'
		BEGIN SELECT RAISE(ABORT, 'update rejected'); END;
	`).Error)

	ctx := context.Background()
	_, err := store.Put(ctx, cache.TreeKey("octocat", "broken", ""), "a", time.Hour)
	require.NoError(t, err)
	_, err = store.Put(ctx, cache.TreeKey("octocat", "hub", ""), "b", time.Hour)
	require.NoError(t, err)

	result, err := svc.RunFullCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"hub"}, result.Synced)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "broken", result.Errors[0].Project)
	require.NotEmpty(t, result.Errors[0].Message)

	// The failed project keeps its cache; the healthy one was invalidated.
	_, ok, err := store.Get(ctx, cache.TreeKey("octocat", "broken", "").String())
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = store.Get(ctx, cache.TreeKey("octocat", "hub", "").String())
	require.NoError(t, err)
	require.False(t, ok)

	var hub models.Project
	require.NoError(t, db.Take(&hub, "slug = ?", "hub").Error)
	require.NotNil(t, hub.LastSyncedAt)
}

func TestFullCycleAbortsWhenListFails(t *testing.T) {
	origin := &fakeOrigin{
		configured: true,
		listErr:    apperrors.ErrOriginRateLimited,
	}
	svc, db, _ := newSyncFixture(t, origin)

	createProject(t, db, "hub", "hub")

	_, err := svc.RunFullCycle(context.Background())
	require.ErrorIs(t, err, apperrors.ErrOriginRateLimited)

	var hub models.Project
	require.NoError(t, db.Take(&hub, "slug = ?", "hub").Error)
	require.Nil(t, hub.LastSyncedAt)
}

func TestFullCycleSweepsExpiredEntries(t *testing.T) {
	origin := &fakeOrigin{configured: true}
	svc, db, _ := newSyncFixture(t, origin)

	current := time.Now()
	store, err := cache.NewStore(db, cache.WithNow(func() time.Time { return current }))
	require.NoError(t, err)

	_, err = store.Put(context.Background(), cache.ReposKey("octocat"), "old", time.Minute)
	require.NoError(t, err)
	current = current.Add(2 * time.Minute)

	// Rebuild the sync service over the clock-controlled store.
	projects, err := NewProjectService(db)
	require.NoError(t, err)
	svc, err = NewSyncService(projects, origin, store, nil, SyncConfig{})
	require.NoError(t, err)

	result, err := svc.RunFullCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), result.CacheEntriesCleaned)
}

func TestRunFullCycleGuardRejectsConcurrentRun(t *testing.T) {
	origin := &fakeOrigin{configured: true}
	svc, _, _ := newSyncFixture(t, origin)

	require.True(t, svc.tryBegin())
	defer svc.end()

	_, err := svc.RunFullCycle(context.Background())
	require.ErrorIs(t, err, apperrors.ErrAlreadySyncing)
	require.True(t, svc.Running())
}

func TestGuardClearsAfterAbortedCycle(t *testing.T) {
	origin := &fakeOrigin{configured: true, listErr: errors.New("boom")}
	svc, _, _ := newSyncFixture(t, origin)

	_, err := svc.RunFullCycle(context.Background())
	require.Error(t, err)
	require.False(t, svc.Running())

	// The guard released; the next cycle may run.
	origin.listErr = nil
	_, err = svc.RunFullCycle(context.Background())
	require.NoError(t, err)
	require.False(t, svc.Running())
}

func TestFullCycleWritesAuditEvent(t *testing.T) {
	origin := &fakeOrigin{
		configured: true,
		repos:      []github.Repo{{Name: "hub", DefaultBranch: "main"}},
	}
	svc, db, _ := newSyncFixture(t, origin)

	createProject(t, db, "hub", "hub")
	createProject(t, db, "ghost", "vanished")

	_, err := svc.RunFullCycle(context.Background())
	require.NoError(t, err)

	var logs []models.AuditLog
	require.NoError(t, db.Where("action = ?", models.AuditActionSync).Find(&logs).Error)
	require.Len(t, logs, 1)
	require.Equal(t, "github_sync", logs[0].EntityType)

	var metadata map[string]any
	require.NoError(t, json.Unmarshal([]byte(logs[0].Metadata), &metadata))
	require.Contains(t, metadata, "synced")
	require.Contains(t, metadata, "errors")
	require.Contains(t, metadata, "cacheCleanedEntries")
}

func TestSyncOne(t *testing.T) {
	origin := &fakeOrigin{configured: true}
	svc, db, store := newSyncFixture(t, origin)

	project := createProject(t, db, "hub", "hub")

	_, err := store.Put(context.Background(), cache.RoutesKey("octocat", "hub"), "stale", time.Hour)
	require.NoError(t, err)

	updated, err := svc.SyncOne(context.Background(), "hub")
	require.NoError(t, err)
	require.Equal(t, project.ID, updated.ID)
	require.NotNil(t, updated.LastSyncedAt)

	// Single-project sync never consults the origin repo list.
	require.Zero(t, origin.listCalls)

	_, ok, err := store.Get(context.Background(), cache.RoutesKey("octocat", "hub").String())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSyncOneRejectsUnlinkedProject(t *testing.T) {
	origin := &fakeOrigin{configured: true}
	svc, db, _ := newSyncFixture(t, origin)

	createProject(t, db, "notes", "")

	_, err := svc.SyncOne(context.Background(), "notes")
	require.ErrorIs(t, err, apperrors.ErrNoLinkedRepo)
}

func TestSyncOneUnknownProject(t *testing.T) {
	origin := &fakeOrigin{configured: true}
	svc, _, _ := newSyncFixture(t, origin)

	_, err := svc.SyncOne(context.Background(), "missing")
	require.ErrorIs(t, err, apperrors.ErrProjectNotFound)
}

func TestSyncOneBypassesRunningGuard(t *testing.T) {
	origin := &fakeOrigin{configured: true}
	svc, db, _ := newSyncFixture(t, origin)

	createProject(t, db, "hub", "hub")

	require.True(t, svc.tryBegin())
	defer svc.end()

	_, err := svc.SyncOne(context.Background(), "hub")
	require.NoError(t, err)
}

func TestInvalidateAll(t *testing.T) {
	origin := &fakeOrigin{configured: true}
	svc, db, store := newSyncFixture(t, origin)

	createProject(t, db, "hub", "hub")
	createProject(t, db, "tools", "tools")

	ctx := context.Background()
	_, err := store.Put(ctx, cache.TreeKey("octocat", "hub", ""), "a", time.Hour)
	require.NoError(t, err)
	_, err = store.Put(ctx, cache.FileKey("octocat", "tools", "x"), "b", time.Hour)
	require.NoError(t, err)

	invalidated, swept, err := svc.InvalidateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), invalidated)
	require.Zero(t, swept)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Entries)
}

func TestInvalidateAllReportsSweptSeparately(t *testing.T) {
	origin := &fakeOrigin{configured: true}
	_, db, _ := newSyncFixture(t, origin)

	current := time.Now()
	store, err := cache.NewStore(db, cache.WithNow(func() time.Time { return current }))
	require.NoError(t, err)

	projects, err := NewProjectService(db)
	require.NoError(t, err)
	svc, err := NewSyncService(projects, origin, store, nil, SyncConfig{})
	require.NoError(t, err)

	createProject(t, db, "hub", "hub")

	ctx := context.Background()
	_, err = store.Put(ctx, cache.TreeKey("octocat", "hub", ""), "live", time.Hour)
	require.NoError(t, err)
	_, err = store.Put(ctx, cache.ReposKey("octocat"), "stale", time.Minute)
	require.NoError(t, err)
	current = current.Add(2 * time.Minute)

	invalidated, swept, err := svc.InvalidateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), invalidated)
	require.Equal(t, int64(1), swept)
}

func TestStopWaitsForWarmupCycle(t *testing.T) {
	began := make(chan struct{})
	gate := make(chan struct{})
	origin := &fakeOrigin{configured: true, listBegan: began, listGate: gate}

	db := openServicesTestDB(t)
	projects, err := NewProjectService(db)
	require.NoError(t, err)
	store, err := cache.NewStore(db)
	require.NoError(t, err)

	svc, err := NewSyncService(projects, origin, store, nil, SyncConfig{
		Warmup:   time.Millisecond,
		Interval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	select {
	case <-began:
	case <-time.After(5 * time.Second):
		t.Fatal("warm-up cycle never started")
	}

	stopped := svc.Stop()
	select {
	case <-stopped.Done():
		t.Fatal("stop completed while the warm-up cycle was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stop never observed the cycle finishing")
	}
}

func TestStopBeforeWarmupFires(t *testing.T) {
	origin := &fakeOrigin{configured: true}

	db := openServicesTestDB(t)
	projects, err := NewProjectService(db)
	require.NoError(t, err)
	store, err := cache.NewStore(db)
	require.NoError(t, err)

	svc, err := NewSyncService(projects, origin, store, nil, SyncConfig{
		Warmup:   time.Hour,
		Interval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	select {
	case <-svc.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stop hung with no cycle running")
	}
	require.Zero(t, origin.listCalls)
}
