// Package project holds the persisted project record and the store that
// serializes every write to it.
//
// A project is created once by planning and then mutated only through
// Store.Update, which takes the project-scoped lock, re-reads the record,
// applies a mutator and commits with a compare-and-swap.
package project

import (
	"fmt"
	"slices"

	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/signals"
)

// Status is the overall lifecycle of a project.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusArchived   Status = "archived"
)

// PhaseStatus is the state of one phase record.
type PhaseStatus string

const (
	PhasePending          PhaseStatus = "pending"
	PhaseInProgress       PhaseStatus = "in_progress"
	PhaseAwaitingApproval PhaseStatus = "awaiting_approval"
	PhaseApproved         PhaseStatus = "approved"
	PhaseRejected         PhaseStatus = "rejected"
)

// SignoffResult is a reviewer's verdict on a phase.
type SignoffResult string

const (
	SignoffApproved    SignoffResult = "approved"
	SignoffConditional SignoffResult = "conditional"
	SignoffRejected    SignoffResult = "rejected"
)

// ValidateSignoffResult returns an error if the result is not recognized.
func ValidateSignoffResult(r SignoffResult) error {
	switch r {
	case SignoffApproved, SignoffConditional, SignoffRejected:
		return nil
	}
	return fmt.Errorf("invalid signoff result %q: must be one of: approved, conditional, rejected", r)
}

// Recovery modes control the remedy suggested for stale tasks.
const (
	RecoveryManual = "manual"
	RecoveryAuto   = "auto"
)

// Signoff is the recorded review outcome of a phase.
type Signoff struct {
	ReviewerTier string        `json:"reviewer_tier"`
	Result       SignoffResult `json:"result"`
	Conditions   []string      `json:"conditions,omitempty"`
	RecordedAt   string        `json:"recorded_at"`
}

// TaskStats is the evidence snapshot taken when a phase is approved.
// It is derived, never edited by hand.
type TaskStats struct {
	Total         int      `json:"total"`
	Completed     int      `json:"completed"`
	Blocked       int      `json:"blocked"`
	Stale         int      `json:"stale"`
	MinimumMet    bool     `json:"minimum_met"`
	OverridesUsed []string `json:"overrides_used,omitempty"`
}

// PhaseRecord tracks one entry of the phase plan.
type PhaseRecord struct {
	Name         string      `json:"name"`
	Status       PhaseStatus `json:"status"`
	StartedAt    string      `json:"started_at,omitempty"`
	SubmittedAt  string      `json:"submitted_at,omitempty"`
	ApprovedAt   string      `json:"approved_at,omitempty"`
	Signoff      *Signoff    `json:"signoff,omitempty"`
	TaskStats    *TaskStats  `json:"task_stats,omitempty"`
	RejectReason string      `json:"reject_reason,omitempty"`
}

// LifecycleConfig is the per-project task validation configuration.
type LifecycleConfig struct {
	StalenessThresholdMinutes int       `json:"staleness_threshold_minutes"`
	RecoveryMode              string    `json:"recovery_mode"`
	UserOverrides             Overrides `json:"user_overrides"`
}

// Project is the root aggregate, persisted as one record per project.
type Project struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	PhasePlan       []string    `json:"phase_plan"`
	PhasePlanMode   phases.Mode `json:"phase_plan_mode"`
	CurrentPhase    string      `json:"current_phase"`
	SignalsDetected []string    `json:"signals_detected"`
	ComplexityScore int         `json:"complexity_score"`

	// ArchetypeHints are the caller-supplied archetypes only. Detected ones
	// are re-derived on every score and kept for display.
	ArchetypeHints     map[string]signals.ArchetypeHint `json:"archetype_hints,omitempty"`
	DetectedArchetypes map[string]signals.ArchetypeHint `json:"archetypes_detected,omitempty"`

	// AvailableSpecialists restricts skippable phases to staffed ones. Nil
	// means every specialist is available.
	AvailableSpecialists []string `json:"available_specialists,omitempty"`

	TaskLifecycle LifecycleConfig         `json:"task_lifecycle"`
	Phases        map[string]*PhaseRecord `json:"phases"`
	Findings      []string                `json:"findings,omitempty"`
	Status        Status                  `json:"status"`

	// ArchivedFrom remembers the status to restore on unarchive.
	ArchivedFrom Status `json:"archived_from,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Phase returns the record of a planned phase, or nil.
func (p *Project) Phase(name string) *PhaseRecord {
	if p.Phases == nil {
		return nil
	}
	return p.Phases[name]
}

// Current returns the record of the current phase, or nil when done.
func (p *Project) Current() *PhaseRecord {
	if p.CurrentPhase == phases.Done {
		return nil
	}
	return p.Phase(p.CurrentPhase)
}

// PhaseIndex returns the position of name in the plan, or -1.
func (p *Project) PhaseIndex(name string) int {
	return slices.Index(p.PhasePlan, name)
}

// NextPhase returns the plan entry after name, or phases.Done.
func (p *Project) NextPhase(name string) string {
	i := p.PhaseIndex(name)
	if i < 0 || i+1 >= len(p.PhasePlan) {
		return phases.Done
	}
	return p.PhasePlan[i+1]
}

// EnsurePhaseRecords adds pending records for plan entries that lack one.
func (p *Project) EnsurePhaseRecords() {
	if p.Phases == nil {
		p.Phases = make(map[string]*PhaseRecord, len(p.PhasePlan))
	}
	for _, name := range p.PhasePlan {
		if _, ok := p.Phases[name]; !ok {
			p.Phases[name] = &PhaseRecord{Name: name, Status: PhasePending}
		}
	}
}

// Validate checks the structural invariants of the record. Store.Update
// refuses to commit a record that fails it.
func (p *Project) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("project has no name")
	}
	if len(p.PhasePlan) == 0 {
		return fmt.Errorf("project %q has an empty phase plan", p.Name)
	}
	if err := phases.ValidateMode(p.PhasePlanMode); err != nil {
		return err
	}
	if p.ComplexityScore < 0 || p.ComplexityScore > signals.MaxComplexity {
		return fmt.Errorf("project %q complexity %d out of range", p.Name, p.ComplexityScore)
	}
	seen := make(map[string]bool, len(p.PhasePlan))
	for _, name := range p.PhasePlan {
		if seen[name] {
			return fmt.Errorf("project %q plans phase %q twice", p.Name, name)
		}
		seen[name] = true
		if p.Phase(name) == nil {
			return fmt.Errorf("project %q has no record for phase %q", p.Name, name)
		}
	}

	cur := len(p.PhasePlan)
	if p.CurrentPhase != phases.Done {
		cur = p.PhaseIndex(p.CurrentPhase)
		if cur < 0 {
			return fmt.Errorf("project %q current phase %q is not in the plan", p.Name, p.CurrentPhase)
		}
	}

	active := 0
	for i, name := range p.PhasePlan {
		rec := p.Phases[name]
		if i < cur && rec.Status != PhaseApproved {
			return fmt.Errorf("project %q phase %q precedes the current phase but is %s", p.Name, name, rec.Status)
		}
		if rec.Status == PhaseInProgress || rec.Status == PhaseAwaitingApproval {
			active++
		}
	}
	if active > 1 {
		return fmt.Errorf("project %q has %d active phases", p.Name, active)
	}
	return nil
}
