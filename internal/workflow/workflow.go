// Package workflow is the caller-facing facade: plan a project from a
// description, read its status and drive its phase transitions. The MCP
// tools and the CLI both talk to a Service.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/phasegate/internal/approval"
	"github.com/HendryAvila/phasegate/internal/lifecycle"
	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/signals"
	"github.com/HendryAvila/phasegate/internal/tasks"
)

// ErrNoActiveProject is returned when no project name was given and no
// in-progress project exists.
var ErrNoActiveProject = errors.New("no active project: pass a project name or plan one first")

// ErrInvalidRequest wraps caller input that fails validation before any
// scoring or planning happens.
var ErrInvalidRequest = errors.New("invalid request")

// timeNow is a package-level variable so tests can freeze the clock.
var timeNow = time.Now

// Service wires the scorer, planner, store and state machine together.
type Service struct {
	store    *project.Store
	catalog  *phases.Catalog
	machine  *approval.Machine
	tasks    tasks.Source
	defaults project.LifecycleConfig
	logger   *zap.Logger
}

// Options carries the optional collaborators of a Service.
type Options struct {
	// Tasks is the detected task board, or nil when there is none.
	Tasks   tasks.Source
	Metrics *approval.Metrics
	Logger  *zap.Logger
	// Lifecycle is the default task lifecycle config for new projects.
	Lifecycle project.LifecycleConfig
}

// New creates a Service.
func New(store *project.Store, catalog *phases.Catalog, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Lifecycle.StalenessThresholdMinutes <= 0 {
		opts.Lifecycle.StalenessThresholdMinutes = lifecycle.DefaultStalenessThresholdMinutes
	}
	if opts.Lifecycle.RecoveryMode == "" {
		opts.Lifecycle.RecoveryMode = project.RecoveryManual
	}
	return &Service{
		store:   store,
		catalog: catalog,
		machine: approval.NewMachine(store, catalog, approval.Options{
			Tasks:   opts.Tasks,
			Metrics: opts.Metrics,
			Logger:  opts.Logger,
		}),
		tasks:    opts.Tasks,
		defaults: opts.Lifecycle,
		logger:   opts.Logger,
	}
}

// Catalog returns the phase catalog in use.
func (s *Service) Catalog() *phases.Catalog { return s.catalog }

// BoardDetected reports whether a task board is wired in.
func (s *Service) BoardDetected() bool { return s.tasks != nil }

// PlanRequest describes a new unit of work.
type PlanRequest struct {
	// Name is optional; it defaults to a slug of the description.
	Name        string
	Description string
	Mode        phases.Mode
	// ArchetypeHints override detected archetypes of the same name.
	ArchetypeHints map[string]signals.ArchetypeHint
	// Available lists staffed specialists. Nil means all.
	Available []string
	// Lifecycle overrides the service defaults when set.
	Lifecycle *project.LifecycleConfig
}

// PlanResult is the created project plus the scoring that shaped it.
type PlanResult struct {
	Project     *project.Project `json:"project"`
	Score       signals.Result   `json:"score"`
	Specialists []string         `json:"specialists"`
}

// Score previews scoring without creating anything.
func (s *Service) Score(description string, hints map[string]signals.ArchetypeHint) signals.Result {
	return signals.Score(description, hints)
}

// Plan scores the description, plans phases and persists a new project
// whose first phase is in progress.
func (s *Service) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	if req.Mode == "" {
		req.Mode = phases.ModeDynamic
	}
	if err := phases.ValidateMode(req.Mode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Name != "" && !project.ValidName(req.Name) {
		return nil, fmt.Errorf("%w: project name %q: use lowercase letters, digits and hyphens", ErrInvalidRequest, req.Name)
	}
	for name, h := range req.ArchetypeHints {
		if h.Confidence < 0 || h.Confidence > 1 {
			return nil, fmt.Errorf("%w: archetype %q: confidence must be between 0 and 1", ErrInvalidRequest, name)
		}
		if h.MinComplexity < 0 || h.MinComplexity > signals.MaxComplexity {
			return nil, fmt.Errorf("%w: archetype %q: min_complexity must be between 0 and %d", ErrInvalidRequest, name, signals.MaxComplexity)
		}
	}
	if lc := req.Lifecycle; lc != nil && lc.RecoveryMode != "" &&
		lc.RecoveryMode != project.RecoveryManual && lc.RecoveryMode != project.RecoveryAuto {
		return nil, fmt.Errorf("%w: recovery_mode %q: must be one of: manual, auto", ErrInvalidRequest, lc.RecoveryMode)
	}

	score := signals.Score(req.Description, req.ArchetypeHints)
	plan, err := s.catalog.Plan(phases.Input{
		Signals:    score.Signals,
		Complexity: score.Complexity,
		Available:  req.Available,
	})
	if err != nil {
		return nil, err
	}

	cfg := s.defaults
	if req.Lifecycle != nil {
		cfg = *req.Lifecycle
		if cfg.StalenessThresholdMinutes <= 0 {
			cfg.StalenessThresholdMinutes = s.defaults.StalenessThresholdMinutes
		}
		if cfg.RecoveryMode == "" {
			cfg.RecoveryMode = s.defaults.RecoveryMode
		}
	}

	p := &project.Project{
		Name:                 req.Name,
		Description:          strings.TrimSpace(req.Description),
		PhasePlan:            plan,
		PhasePlanMode:        req.Mode,
		CurrentPhase:         plan[0],
		SignalsDetected:      score.Signals,
		ComplexityScore:      score.Complexity,
		ArchetypeHints:       req.ArchetypeHints,
		DetectedArchetypes:   score.Archetypes,
		AvailableSpecialists: req.Available,
		TaskLifecycle:        cfg,
	}
	p.EnsurePhaseRecords()
	first := p.Phases[plan[0]]
	first.Status = project.PhaseInProgress
	first.StartedAt = timeNow().UTC().Format(time.RFC3339)

	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("project planned",
		zap.String("project", p.Name), zap.Strings("plan", plan),
		zap.Strings("signals", score.Signals), zap.Int("complexity", score.Complexity))

	return &PlanResult{
		Project:     p,
		Score:       score,
		Specialists: phases.SpecialistsFor(score.Signals),
	}, nil
}

// Resolve turns an optional project name into a concrete one, falling
// back to the most recently active project.
func (s *Service) Resolve(ctx context.Context, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	p, err := s.store.FindActive(ctx)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", ErrNoActiveProject
	}
	return p.Name, nil
}

// Snapshot is a lock-free view of a project. It may trail a concurrent
// transition by one step.
type Snapshot struct {
	Project       *project.Project  `json:"project"`
	CurrentTasks  []tasks.Task      `json:"current_tasks,omitempty"`
	Preview       *lifecycle.Result `json:"preview,omitempty"`
	BoardDetected bool              `json:"board_detected"`
	Specialists   []string          `json:"specialists"`
}

// Status reads the project and the task board concurrently and previews
// validation of the current phase.
func (s *Service) Status(ctx context.Context, name string) (*Snapshot, error) {
	var (
		p   *project.Project
		all []tasks.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		p, err = s.store.Read(gctx, name)
		return err
	})
	if s.tasks != nil {
		g.Go(func() error {
			var err error
			all, err = s.tasks.List(gctx, tasks.Filter{Project: name})
			if err != nil {
				return fmt.Errorf("listing tasks for %q: %w", name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Project:       p,
		BoardDetected: s.tasks != nil,
		Specialists:   phases.SpecialistsFor(p.SignalsDetected),
	}
	if rec := p.Current(); rec != nil {
		snap.CurrentTasks = lifecycle.PhaseTasks(rec.Name, p.PhasePlan, all)
		res := lifecycle.Validate(lifecycle.Input{
			Phase:           rec.Name,
			Plan:            p.PhasePlan,
			Tasks:           all,
			Signoff:         rec.Signoff,
			Config:          p.TaskLifecycle,
			DefaultMinTasks: s.catalog.MinTasks(rec.Name),
			Now:             timeNow(),
		})
		snap.Preview = &res
	}
	return snap, nil
}

// ApproveOptions are the caller's knobs for an approval.
type ApproveOptions struct {
	// OverrideFlags are "name" or "name=value" strings; unknown names fail.
	OverrideFlags []string
	Acknowledge   bool
	Findings      []string
}

// Approve approves phase of the named project.
func (s *Service) Approve(ctx context.Context, name, phase string, opts ApproveOptions) (*approval.Result, error) {
	ov, err := project.ParseOverrideFlags(opts.OverrideFlags)
	if err != nil {
		return nil, err
	}
	return s.machine.Approve(ctx, approval.Request{
		Project:               name,
		Phase:                 phase,
		Overrides:             ov,
		AcknowledgeConditions: opts.Acknowledge,
		Findings:              opts.Findings,
	})
}

// Submit marks phase as ready for approval.
func (s *Service) Submit(ctx context.Context, name, phase string) (*approval.SubmitResult, error) {
	return s.machine.Submit(ctx, name, phase)
}

// Signoff records a reviewer verdict on phase.
func (s *Service) Signoff(ctx context.Context, name, phase string, so project.Signoff) (*project.Project, error) {
	return s.machine.RecordSignoff(ctx, name, phase, so)
}

// Reject rejects phase with a reason.
func (s *Service) Reject(ctx context.Context, name, phase, reason string) (*project.Project, error) {
	return s.machine.Reject(ctx, name, phase, reason)
}

// Reopen resumes work on a rejected phase.
func (s *Service) Reopen(ctx context.Context, name, phase string) (*project.Project, error) {
	return s.machine.Reopen(ctx, name, phase)
}

// Archive soft-deletes a project.
func (s *Service) Archive(ctx context.Context, name string) (*project.Project, error) {
	return s.store.Archive(ctx, name)
}

// Unarchive restores an archived project.
func (s *Service) Unarchive(ctx context.Context, name string) (*project.Project, error) {
	return s.store.Unarchive(ctx, name)
}

// FindActive returns the most recently updated in-progress project or nil.
func (s *Service) FindActive(ctx context.Context) (*project.Project, error) {
	return s.store.FindActive(ctx)
}

// List returns every project.
func (s *Service) List(ctx context.Context) ([]*project.Project, error) {
	return s.store.List(ctx)
}

// Specialists returns the specialist roles for a project's signals.
func (s *Service) Specialists(ctx context.Context, name string) ([]string, error) {
	p, err := s.store.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	return phases.SpecialistsFor(p.SignalsDetected), nil
}
