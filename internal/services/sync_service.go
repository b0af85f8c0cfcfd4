package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/consoleblue/consoleblue/internal/cache"
	"github.com/consoleblue/consoleblue/internal/github"
	"github.com/consoleblue/consoleblue/internal/models"
	apperrors "github.com/consoleblue/consoleblue/pkg/errors"
	"github.com/consoleblue/consoleblue/pkg/logger"
	"github.com/consoleblue/consoleblue/pkg/metrics"
)

const (
	defaultSyncInterval = 30 * time.Minute
	defaultSyncWarmup   = 10 * time.Second
)

// SyncError records one project's failure inside an otherwise successful cycle.
type SyncError struct {
	Project string `json:"project"`
	Message string `json:"message"`
}

// SyncResult summarizes one sync cycle. One project failing never aborts
// the batch; it lands in Errors instead.
type SyncResult struct {
	Synced              []string    `json:"synced"`
	Errors              []SyncError `json:"errors"`
	CacheEntriesCleaned int64       `json:"cacheEntriesCleaned"`
}

// SyncConfig controls the background schedule.
type SyncConfig struct {
	Interval time.Duration
	Warmup   time.Duration
}

// SyncService reconciles locally tracked projects against the origin's
// repository list and owns cache invalidation timing. At most one full
// cycle runs at a time per process; single-project syncs bypass that guard
// since they only touch the store's atomic operations.
type SyncService struct {
	projects *ProjectService
	origin   Origin
	store    *cache.Store
	audit    *AuditService

	interval time.Duration
	warmup   time.Duration

	cron        *cron.Cron
	warmupTimer *time.Timer
	jobs        sync.WaitGroup

	mu      sync.Mutex
	running bool

	now func() time.Time
	log *zap.Logger
}

// SyncOption customises the SyncService.
type SyncOption func(*SyncService)

// WithSyncNow overrides the clock used for sync timestamps, primarily for tests.
func WithSyncNow(now func() time.Time) SyncOption {
	return func(s *SyncService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSyncService constructs the synchronizer. The audit sink is optional;
// audit failures are never allowed to fail a cycle.
func NewSyncService(projects *ProjectService, origin Origin, store *cache.Store, audit *AuditService, cfg SyncConfig, opts ...SyncOption) (*SyncService, error) {
	if projects == nil {
		return nil, errors.New("sync service: project service is required")
	}
	if origin == nil {
		return nil, errors.New("sync service: origin client is required")
	}
	if store == nil {
		return nil, errors.New("sync service: cache store is required")
	}

	svc := &SyncService{
		projects: projects,
		origin:   origin,
		store:    store,
		audit:    audit,
		interval: cfg.Interval,
		warmup:   cfg.Warmup,
		now:      time.Now,
		log:      logger.WithModule("sync"),
	}
	if svc.interval <= 0 {
		svc.interval = defaultSyncInterval
	}
	if svc.warmup <= 0 {
		svc.warmup = defaultSyncWarmup
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Start schedules the first cycle after the warm-up delay and then repeats
// on the configured interval.
func (s *SyncService) Start() error {
	s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.runScheduled); err != nil {
		return fmt.Errorf("sync service: schedule %q: %w", spec, err)
	}

	// The warm-up run fires outside cron's job tracking, so it carries its
	// own slot for Stop to wait on.
	s.jobs.Add(1)
	s.warmupTimer = time.AfterFunc(s.warmup, func() {
		defer s.jobs.Done()
		s.runScheduled()
	})
	s.cron.Start()

	s.log.Info("background sync scheduled",
		zap.Duration("warmup", s.warmup),
		zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the schedule. The returned context completes once every
// running cycle finishes, including one started by the warm-up timer; a
// cycle is never interrupted mid-project.
func (s *SyncService) Stop() context.Context {
	if s.warmupTimer != nil && s.warmupTimer.Stop() {
		// The warm-up run never fired; release its slot.
		s.jobs.Done()
	}

	var cronDone <-chan struct{}
	if s.cron != nil {
		cronDone = s.cron.Stop().Done()
	} else {
		closed := make(chan struct{})
		close(closed)
		cronDone = closed
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		<-cronDone
		s.jobs.Wait()
	}()
	return ctx
}

func (s *SyncService) runScheduled() {
	ctx := context.Background()
	result, err := s.RunFullCycle(ctx)
	switch {
	case errors.Is(err, apperrors.ErrAlreadySyncing):
		// Timer fired while a manual trigger holds the guard.
		s.log.Debug("scheduled cycle skipped, sync already running")
	case err != nil:
		s.log.Error("scheduled sync cycle failed", zap.Error(err))
	default:
		s.log.Info("sync cycle complete",
			zap.Int("synced", len(result.Synced)),
			zap.Int("errors", len(result.Errors)),
			zap.Int64("cache_cleaned", result.CacheEntriesCleaned))
	}
}

// RunFullCycle executes one full sync cycle. A second caller while a cycle
// is running receives ErrAlreadySyncing rather than being queued.
func (s *SyncService) RunFullCycle(ctx context.Context) (*SyncResult, error) {
	if !s.tryBegin() {
		return nil, apperrors.ErrAlreadySyncing
	}
	defer s.end()

	return s.fullCycle(ensureContext(ctx))
}

// tryBegin flips the running guard; end must be called on every exit path.
func (s *SyncService) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *SyncService) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Running reports whether a full cycle currently holds the guard.
func (s *SyncService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SyncService) fullCycle(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{Synced: []string{}, Errors: []SyncError{}}

	projects, err := s.projects.ListSyncEnabled(ctx)
	if err != nil {
		metrics.SyncCycles.WithLabelValues("aborted").Inc()
		return nil, fmt.Errorf("sync: load projects: %w", err)
	}

	// One repo list per cycle. Losing it makes per-project work pointless,
	// so the whole cycle aborts.
	repos, err := s.origin.ListRepos(ctx)
	if err != nil {
		metrics.SyncCycles.WithLabelValues("aborted").Inc()
		s.log.Error("repo list fetch failed, aborting cycle", zap.Error(err))
		return nil, err
	}

	byName := make(map[string]github.Repo, len(repos))
	for _, repo := range repos {
		byName[repo.Name] = repo
	}

	for _, project := range projects {
		if !project.Linked() {
			continue
		}

		repo, found := byName[project.GithubRepo]
		if !found {
			result.Errors = append(result.Errors, SyncError{
				Project: project.Slug,
				Message: fmt.Sprintf("repo not found in origin list: %q", project.GithubRepo),
			})
			metrics.SyncProjectErrors.Inc()
			continue
		}

		updates := map[string]any{"last_synced_at": s.now()}
		if repo.DefaultBranch != "" && repo.DefaultBranch != project.DefaultBranch {
			updates["default_branch"] = repo.DefaultBranch
		}
		// Local edits win once set; only adopt the origin description into
		// an empty field.
		if project.Description == "" && repo.Description != "" {
			updates["description"] = repo.Description
		}

		if _, err := s.projects.UpdateSyncFields(ctx, project.ID, updates); err != nil {
			result.Errors = append(result.Errors, SyncError{Project: project.Slug, Message: err.Error()})
			metrics.SyncProjectErrors.Inc()
			continue
		}

		if _, err := s.store.InvalidateByRepo(ctx, project.GithubRepo); err != nil {
			result.Errors = append(result.Errors, SyncError{Project: project.Slug, Message: err.Error()})
			metrics.SyncProjectErrors.Inc()
			continue
		}

		result.Synced = append(result.Synced, project.Slug)
	}

	cleaned, err := s.store.SweepExpired(ctx)
	if err != nil {
		s.log.Warn("expiry sweep failed", zap.Error(err))
	} else {
		result.CacheEntriesCleaned = cleaned
	}

	s.emitAudit(ctx, AuditEntry{
		Action:     models.AuditActionSync,
		EntityType: "github_sync",
		Metadata: map[string]any{
			"synced":              result.Synced,
			"errors":              result.Errors,
			"cacheCleanedEntries": result.CacheEntriesCleaned,
		},
	})

	metrics.SyncCycles.WithLabelValues("success").Inc()
	return result, nil
}

// SyncOne forces freshness for a single project: it invalidates the
// project's cache and stamps last_synced_at. It does not consult the
// origin's repo list and does not reconcile branch or description, and it
// deliberately ignores the full-cycle guard.
func (s *SyncService) SyncOne(ctx context.Context, idOrSlug string) (*models.Project, error) {
	ctx = ensureContext(ctx)

	project, err := s.projects.FindByIdentifier(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if !project.Linked() {
		return nil, apperrors.ErrNoLinkedRepo
	}

	if _, err := s.store.InvalidateByRepo(ctx, project.GithubRepo); err != nil {
		return nil, err
	}

	updated, err := s.projects.UpdateSyncFields(ctx, project.ID, map[string]any{"last_synced_at": s.now()})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, AuditEntry{
		Action:     models.AuditActionSync,
		EntityType: "project",
		EntityID:   &project.ID,
		EntitySlug: project.Slug,
	})

	return updated, nil
}

// InvalidateRepo drops every cache entry of one repository.
func (s *SyncService) InvalidateRepo(ctx context.Context, repo string) (int64, error) {
	ctx = ensureContext(ctx)

	count, err := s.store.InvalidateByRepo(ctx, repo)
	if err != nil {
		return 0, err
	}

	s.emitAudit(ctx, AuditEntry{
		Action:     models.AuditActionSync,
		EntityType: "github_cache",
		Metadata:   map[string]any{"repo": repo, "invalidated": count},
	})

	return count, nil
}

// InvalidateAll clears the cache of every sync-enabled linked project and
// sweeps expired rows, reporting the two counts separately. Per-repo
// failures are aggregated rather than aborting the pass.
func (s *SyncService) InvalidateAll(ctx context.Context) (invalidated, swept int64, err error) {
	ctx = ensureContext(ctx)

	projects, err := s.projects.ListSyncEnabled(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("sync: load projects: %w", err)
	}

	var errs error
	for _, project := range projects {
		if !project.Linked() {
			continue
		}
		count, repoErr := s.store.InvalidateByRepo(ctx, project.GithubRepo)
		if repoErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", project.Slug, repoErr))
			continue
		}
		invalidated += count
	}

	swept, sweepErr := s.store.SweepExpired(ctx)
	if sweepErr != nil {
		errs = multierr.Append(errs, sweepErr)
	}

	s.emitAudit(ctx, AuditEntry{
		Action:     models.AuditActionSync,
		EntityType: "github_cache",
		Metadata:   map[string]any{"invalidated": invalidated, "swept": swept},
	})

	return invalidated, swept, errs
}

// emitAudit appends an event best-effort; the sink must never fail sync work.
func (s *SyncService) emitAudit(ctx context.Context, entry AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.log.Warn("audit append failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
