// Package approval is the phase state machine. Every transition runs
// inside project.Store.Update, so it holds the project lock, works on a
// fresh read and commits all of its changes in one write or none.
package approval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HendryAvila/phasegate/internal/lifecycle"
	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/signals"
	"github.com/HendryAvila/phasegate/internal/tasks"
)

// timeNow is a package-level variable so tests can freeze the clock.
var timeNow = time.Now

// Machine performs phase transitions.
type Machine struct {
	store   *project.Store
	catalog *phases.Catalog
	tasks   tasks.Source
	metrics *Metrics
	logger  *zap.Logger
}

// Options carries the optional collaborators of a Machine.
type Options struct {
	// Tasks is the task board. Nil means no board is present and every
	// phase sees an empty task snapshot.
	Tasks   tasks.Source
	Metrics *Metrics
	Logger  *zap.Logger
}

// NewMachine creates a state machine over store and catalog.
func NewMachine(store *project.Store, catalog *phases.Catalog, opts Options) *Machine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Machine{
		store:   store,
		catalog: catalog,
		tasks:   opts.Tasks,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Request asks to approve one phase.
type Request struct {
	Project   string
	Phase     string
	Overrides project.Overrides
	// AcknowledgeConditions confirms the conditions of a conditional
	// sign-off. Without it such an approval is held back.
	AcknowledgeConditions bool
	// Findings are notes gathered during the phase. They are stored on the
	// project and fed into the checkpoint re-score.
	Findings []string
}

// Result is the outcome of Approve. OK false with a nil error means the
// approval was blocked and nothing was written.
type Result struct {
	OK                bool                  `json:"ok"`
	Project           string                `json:"project"`
	Phase             string                `json:"phase"`
	Violations        []lifecycle.Violation `json:"violations,omitempty"`
	Suppressed        []lifecycle.Violation `json:"suppressed,omitempty"`
	PendingConditions []string              `json:"pending_conditions,omitempty"`
	OverridesUsed     []string              `json:"overrides_used,omitempty"`
	NextPhase         string                `json:"next_phase,omitempty"`
	Injected          []string              `json:"injected,omitempty"`
	Completed         bool                  `json:"completed"`
	Stats             *project.TaskStats    `json:"task_stats,omitempty"`
}

// Approve commits awaiting_approval → approved for the current phase and
// advances the project. The validator is re-run under the lock against a
// fresh task snapshot; any violation aborts without a write.
func (m *Machine) Approve(ctx context.Context, req Request) (*Result, error) {
	res := &Result{Project: req.Project, Phase: req.Phase}

	_, err := m.store.Update(ctx, req.Project, func(p *project.Project) error {
		rec, err := guard(p, req.Phase, project.PhaseAwaitingApproval)
		if err != nil {
			return err
		}
		v, err := m.validate(ctx, p, rec, req.Overrides)
		if err != nil {
			return err
		}
		res.Violations = v.Violations
		res.Suppressed = v.Suppressed
		res.OverridesUsed = v.OverridesUsed
		if !v.OK {
			return errBlocked
		}
		if v.NeedsAcknowledgment && !req.AcknowledgeConditions {
			res.PendingConditions = v.Conditions
			return errBlocked
		}

		now := nowRFC3339()
		stats := v.Stats
		rec.Status = project.PhaseApproved
		rec.ApprovedAt = now
		rec.TaskStats = &stats
		res.Stats = &stats
		p.Findings = append(p.Findings, req.Findings...)

		if p.PhasePlanMode == phases.ModeDynamic && m.catalog.IsCheckpoint(req.Phase) {
			injected, err := m.checkpoint(p, req.Phase)
			if err != nil {
				return err
			}
			res.Injected = injected
		}

		next := p.NextPhase(req.Phase)
		res.NextPhase = next
		if next == phases.Done {
			p.CurrentPhase = phases.Done
			p.Status = project.StatusComplete
			res.Completed = true
			return nil
		}
		p.CurrentPhase = next
		nr := p.Phase(next)
		nr.Status = project.PhaseInProgress
		nr.StartedAt = now
		return nil
	})

	switch {
	case errors.Is(err, errBlocked):
		m.metrics.approval(OutcomeBlocked)
		m.logger.Info("approval blocked",
			zap.String("project", req.Project), zap.String("phase", req.Phase),
			zap.Int("violations", len(res.Violations)),
			zap.Int("pending_conditions", len(res.PendingConditions)))
		return res, nil
	case err != nil:
		m.metrics.approval(outcomeOf(err))
		return nil, err
	}

	res.OK = true
	m.metrics.approval(OutcomeApproved)
	m.metrics.transition(string(project.PhaseApproved))
	if !res.Completed {
		m.metrics.transition(string(project.PhaseInProgress))
	}
	m.logger.Info("phase approved",
		zap.String("project", req.Project), zap.String("phase", req.Phase),
		zap.String("next", res.NextPhase), zap.Strings("injected", res.Injected),
		zap.Strings("overrides_used", res.OverridesUsed))
	return res, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrStateChanged):
		return OutcomeStateChanged
	case errors.Is(err, project.ErrLockTimeout):
		return OutcomeLockTimeout
	case errors.Is(err, project.ErrVersionConflict):
		return OutcomeConflict
	}
	return OutcomeError
}

// guard checks that phase is the project's current phase and is in one of
// the wanted statuses.
func guard(p *project.Project, phase string, want ...project.PhaseStatus) (*project.PhaseRecord, error) {
	expected := joinStatuses(want)
	if p.Status != project.StatusInProgress {
		return nil, &StateChangedError{Project: p.Name, Phase: phase, Expected: expected, Actual: "in a " + string(p.Status) + " project"}
	}
	rec := p.Phase(phase)
	if rec == nil || p.PhaseIndex(phase) < 0 {
		return nil, &StateChangedError{Project: p.Name, Phase: phase, Expected: expected, Actual: "not in the plan"}
	}
	if p.CurrentPhase != phase {
		return nil, &StateChangedError{Project: p.Name, Phase: phase, Expected: expected + " as the current phase",
			Actual: fmt.Sprintf("%s (current phase is %q)", rec.Status, p.CurrentPhase)}
	}
	if !slices.Contains(want, rec.Status) {
		return nil, &StateChangedError{Project: p.Name, Phase: phase, Expected: expected, Actual: string(rec.Status)}
	}
	return rec, nil
}

func joinStatuses(ss []project.PhaseStatus) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, " or ")
}

func (m *Machine) snapshot(ctx context.Context, name string) ([]tasks.Task, error) {
	if m.tasks == nil {
		return nil, nil
	}
	ts, err := m.tasks.List(ctx, tasks.Filter{Project: name})
	if err != nil {
		return nil, fmt.Errorf("listing tasks for %q: %w", name, err)
	}
	return ts, nil
}

func (m *Machine) validate(ctx context.Context, p *project.Project, rec *project.PhaseRecord, ov project.Overrides) (lifecycle.Result, error) {
	snapshot, err := m.snapshot(ctx, p.Name)
	if err != nil {
		return lifecycle.Result{}, err
	}
	return lifecycle.Validate(lifecycle.Input{
		Phase:           rec.Name,
		Plan:            p.PhasePlan,
		Tasks:           snapshot,
		Signoff:         rec.Signoff,
		Config:          p.TaskLifecycle,
		Overrides:       ov,
		DefaultMinTasks: m.catalog.MinTasks(rec.Name),
		Now:             timeNow(),
	}), nil
}

// checkpoint re-scores the project with the findings gathered so far and
// merges newly triggered phases into the remaining plan. Signals only
// accumulate and complexity never drops below its previous value.
func (m *Machine) checkpoint(p *project.Project, approved string) ([]string, error) {
	text := p.Description
	if len(p.Findings) > 0 {
		text += "\n" + strings.Join(p.Findings, "\n")
	}
	score := signals.Score(text, p.ArchetypeHints)

	merged := mergeSignals(p.SignalsDetected, score.Signals)
	complexity := max(p.ComplexityScore, score.Complexity)

	prev := slices.Clone(p.PhasePlan)
	plan, err := m.catalog.Plan(phases.Input{
		Signals:    merged,
		Complexity: complexity,
		Available:  p.AvailableSpecialists,
		Existing:   &phases.Existing{Plan: prev, Mode: p.PhasePlanMode, Anchor: p.PhaseIndex(approved)},
	})
	if err != nil {
		return nil, err
	}

	p.SignalsDetected = merged
	p.ComplexityScore = complexity
	p.DetectedArchetypes = score.Archetypes
	p.PhasePlan = plan
	p.EnsurePhaseRecords()

	injected := phases.Injected(prev, plan)
	if len(injected) > 0 {
		m.logger.Info("checkpoint injected phases",
			zap.String("project", p.Name), zap.String("checkpoint", approved),
			zap.Strings("injected", injected))
	}
	return injected, nil
}

// mergeSignals unions two signal sets. needs_clarification is dropped once
// any real signal is known.
func mergeSignals(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		set[s] = true
	}
	if len(set) > 1 {
		delete(set, signals.NeedsClarification)
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
