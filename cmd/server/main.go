package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/consoleblue/consoleblue/internal/api"
	"github.com/consoleblue/consoleblue/internal/app"
	"github.com/consoleblue/consoleblue/internal/cache"
	"github.com/consoleblue/consoleblue/internal/database"
	"github.com/consoleblue/consoleblue/internal/github"
	"github.com/consoleblue/consoleblue/internal/services"
	"github.com/consoleblue/consoleblue/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("consoleblue-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	origin, err := github.NewClient(github.Config{
		Token:             cfg.Github.Token,
		Owner:             cfg.Github.Owner,
		BaseURL:           cfg.Github.BaseURL,
		RequestsPerSecond: cfg.Github.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("initialise github client: %w", err)
	}
	if !origin.Configured() {
		log.Warn("github token not configured, reads will fail until set")
	}

	store, err := cache.NewStore(db)
	if err != nil {
		return fmt.Errorf("initialise cache store: %w", err)
	}

	githubSvc, err := services.NewGithubService(origin, store, services.GithubServiceConfig{
		Owner:      cfg.Github.Owner,
		RoutesFile: cfg.Github.RoutesFile,
		Policy:     cfg.Cache.Policy(),
	})
	if err != nil {
		return fmt.Errorf("initialise github service: %w", err)
	}

	projectSvc, err := services.NewProjectService(db)
	if err != nil {
		return fmt.Errorf("initialise project service: %w", err)
	}

	auditSvc, err := services.NewAuditService(db)
	if err != nil {
		return fmt.Errorf("initialise audit service: %w", err)
	}

	syncSvc, err := services.NewSyncService(projectSvc, origin, store, auditSvc, services.SyncConfig{
		Interval: cfg.Sync.Interval,
		Warmup:   cfg.Sync.Warmup,
	})
	if err != nil {
		return fmt.Errorf("initialise sync service: %w", err)
	}

	if cfg.Sync.Enabled {
		if err := syncSvc.Start(); err != nil {
			return fmt.Errorf("start sync service: %w", err)
		}
		defer func() {
			<-syncSvc.Stop().Done()
		}()
	} else {
		log.Info("background sync disabled")
	}

	router, err := api.NewRouter(db, cfg, githubSvc, syncSvc)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := database.Config{
		Driver:   strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:     strings.TrimSpace(cfg.Database.Path),
		DSN:      strings.TrimSpace(cfg.Database.DSN),
		Host:     strings.TrimSpace(cfg.Database.Host),
		Port:     cfg.Database.Port,
		Name:     strings.TrimSpace(cfg.Database.Name),
		User:     strings.TrimSpace(cfg.Database.User),
		Password: cfg.Database.Password,
	}

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
