package server

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HendryAvila/phasegate/internal/approval"
	"github.com/HendryAvila/phasegate/internal/config"
	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/tasks"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

// NewService builds the workflow service from cfg. The CLI uses it
// directly; New wraps it in an MCP server. reg may be nil to skip metrics
// registration.
func NewService(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*workflow.Service, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog, err := phases.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, noop, fmt.Errorf("loading phase catalog: %w", err)
	}

	backend, cleanup, err := openBackend(cfg, logger)
	if err != nil {
		return nil, noop, err
	}

	board, ok := tasks.Detect(cfg.Tasks.Path)
	switch {
	case ok:
		logger.Info("task board detected", zap.String("path", cfg.Tasks.Path))
	case cfg.Tasks.Path != "":
		logger.Warn("task board not found; phases will see no tasks", zap.String("path", cfg.Tasks.Path))
	default:
		logger.Warn("no task board configured; phases will see no tasks")
	}

	svc := workflow.New(project.NewStore(backend, logger), catalog, workflow.Options{
		Tasks:   board,
		Metrics: approval.NewMetrics(reg),
		Logger:  logger,
		Lifecycle: project.LifecycleConfig{
			StalenessThresholdMinutes: cfg.Lifecycle.StalenessThresholdMinutes,
			RecoveryMode:              cfg.Lifecycle.RecoveryMode,
		},
	})
	return svc, cleanup, nil
}

// openBackend selects the project store backend. In auto mode SQLite is
// the central store and the file backend is the local fallback; if the
// database cannot be opened at all the file backend is used alone.
func openBackend(cfg *config.Config, logger *zap.Logger) (project.Backend, func(), error) {
	file := project.NewFileBackend(cfg.DataDir, project.FileOptions{
		LockTimeout: cfg.Store.LockTimeout,
		StaleAfter:  cfg.Store.StaleLockAfter,
		Logger:      logger,
	})
	if cfg.Store.Backend == config.BackendFile {
		return file, noop, nil
	}

	db, err := project.OpenSQLite(cfg.SQLiteFile(), project.SQLiteOptions{
		LockTimeout: cfg.Store.LockTimeout,
		StaleAfter:  cfg.Store.StaleLockAfter,
		Logger:      logger,
	})
	if err != nil {
		if cfg.Store.Backend == config.BackendSQLite {
			return nil, noop, fmt.Errorf("opening project database: %w", err)
		}
		logger.Warn("project database unavailable; using local file store",
			zap.String("path", cfg.SQLiteFile()), zap.Error(err))
		return file, noop, nil
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing project database", zap.Error(err))
		}
	}
	if cfg.Store.Backend == config.BackendSQLite {
		return db, closeDB, nil
	}
	return project.NewFallbackBackend(db, file, logger), closeDB, nil
}
