// Package lifecycle validates a phase's task set before it may be approved.
//
// Validate is a pure function of its input. The approval state machine
// calls it once to preview and again under the project lock right before
// committing, against a fresh task snapshot.
package lifecycle

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/tasks"
)

// DefaultStalenessThresholdMinutes applies when a project sets none.
const DefaultStalenessThresholdMinutes = 60

// Check names one validation rule.
type Check string

const (
	CheckStale         Check = "stale"
	CheckMinCount      Check = "min_count"
	CheckTerminalState Check = "terminal_state"
	CheckSignoff       Check = "signoff"
)

// Violation is one blocking finding. Override names the flag that would
// bypass it.
type Violation struct {
	Check    Check    `json:"check"`
	Message  string   `json:"message"`
	Override string   `json:"override"`
	Remedy   string   `json:"remedy,omitempty"`
	TaskIDs  []string `json:"task_ids,omitempty"`
}

// Input is everything a validation needs. Now is explicit so results are
// reproducible.
type Input struct {
	Phase   string
	Plan    []string
	Tasks   []tasks.Task
	Signoff *project.Signoff
	Config  project.LifecycleConfig
	// Overrides from the current request. They are merged with the
	// project's standing user overrides.
	Overrides project.Overrides
	// DefaultMinTasks is the built-in minimum for Phase.
	DefaultMinTasks int
	Now             time.Time
}

// Result is the outcome of Validate.
type Result struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations,omitempty"`
	// Suppressed holds violations an override silenced. They are kept so
	// the record of the bypass is never lost.
	Suppressed    []Violation `json:"suppressed,omitempty"`
	OverridesUsed []string    `json:"overrides_used,omitempty"`
	// Conditions come from a conditional sign-off. They do not block but
	// must be acknowledged before a commit.
	Conditions          []string          `json:"conditions,omitempty"`
	NeedsAcknowledgment bool              `json:"needs_acknowledgment"`
	Stats               project.TaskStats `json:"task_stats"`
}

// Validate runs the four checks in fixed order and collects every
// violation. It never short-circuits.
func Validate(in Input) Result {
	ov := in.Config.UserOverrides.Merge(in.Overrides)
	phaseTasks := PhaseTasks(in.Phase, in.Plan, in.Tasks)

	var res Result
	record := func(v *Violation) {
		if v == nil {
			return
		}
		if ov.Enabled(v.Override) {
			res.Suppressed = append(res.Suppressed, *v)
			res.OverridesUsed = append(res.OverridesUsed, v.Override)
			return
		}
		res.Violations = append(res.Violations, *v)
	}

	stale := staleTasks(in.Tasks, in.Config.StalenessThresholdMinutes, in.Now)
	record(staleViolation(stale, in.Config))

	minimum := in.DefaultMinTasks
	if ov.MinTasksPerPhase > 0 {
		minimum = ov.MinTasksPerPhase
	}
	if minimum <= 0 {
		minimum = 1
	}
	record(minCountViolation(in.Phase, len(phaseTasks), minimum))
	record(terminalViolation(in.Phase, phaseTasks))
	record(signoffViolation(in.Phase, in.Signoff))

	if in.Signoff != nil && in.Signoff.Result == project.SignoffConditional {
		res.Conditions = append([]string(nil), in.Signoff.Conditions...)
		res.NeedsAcknowledgment = true
	}

	res.Stats = project.TaskStats{
		Total:         len(phaseTasks),
		Stale:         len(stale),
		MinimumMet:    len(phaseTasks) >= minimum,
		OverridesUsed: res.OverridesUsed,
	}
	for _, t := range phaseTasks {
		switch t.Status {
		case tasks.StatusCompleted:
			res.Stats.Completed++
		case tasks.StatusBlocked:
			res.Stats.Blocked++
		}
	}
	res.OK = len(res.Violations) == 0
	return res
}

func staleTasks(all []tasks.Task, thresholdMinutes int, now time.Time) []tasks.Task {
	if thresholdMinutes <= 0 {
		thresholdMinutes = DefaultStalenessThresholdMinutes
	}
	limit := time.Duration(thresholdMinutes) * time.Minute
	var out []tasks.Task
	for _, t := range all {
		if t.Status == tasks.StatusInProgress && now.Sub(t.UpdatedAt) > limit {
			out = append(out, t)
		}
	}
	return out
}

func staleViolation(stale []tasks.Task, cfg project.LifecycleConfig) *Violation {
	if len(stale) == 0 {
		return nil
	}
	threshold := cfg.StalenessThresholdMinutes
	if threshold <= 0 {
		threshold = DefaultStalenessThresholdMinutes
	}
	remedy := "update or finish the stale tasks"
	if cfg.RecoveryMode == project.RecoveryAuto {
		remedy = "let the board's recovery move the stale tasks back to pending, then re-run"
	}
	return &Violation{
		Check:    CheckStale,
		Message:  fmt.Sprintf("%d task(s) in progress with no update for over %d minutes", len(stale), threshold),
		Override: project.OverrideAllowStaleApproval,
		Remedy:   remedy,
		TaskIDs:  ids(stale),
	}
}

func minCountViolation(phase string, have, want int) *Violation {
	if have >= want {
		return nil
	}
	return &Violation{
		Check:    CheckMinCount,
		Message:  fmt.Sprintf("phase %q has %d task(s), needs at least %d", phase, have, want),
		Override: project.OverrideSkipMinTaskValidation,
		Remedy:   fmt.Sprintf("add tasks whose subject starts with %q", phase+":"),
	}
}

func terminalViolation(phase string, phaseTasks []tasks.Task) *Violation {
	var open []tasks.Task
	for _, t := range phaseTasks {
		if !t.Status.Terminal() {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return nil
	}
	return &Violation{
		Check:    CheckTerminalState,
		Message:  fmt.Sprintf("phase %q has %d task(s) not completed or blocked", phase, len(open)),
		Override: project.OverrideAllowPartialCompletion,
		Remedy:   "complete or block the open tasks",
		TaskIDs:  ids(open),
	}
}

func signoffViolation(phase string, s *project.Signoff) *Violation {
	switch {
	case s == nil:
		return &Violation{
			Check:    CheckSignoff,
			Message:  fmt.Sprintf("phase %q has no sign-off", phase),
			Override: project.OverrideSkipSignoff,
			Remedy:   "record a reviewer sign-off",
		}
	case s.Result == project.SignoffRejected:
		return &Violation{
			Check:    CheckSignoff,
			Message:  fmt.Sprintf("phase %q sign-off by %s was rejected", phase, s.ReviewerTier),
			Override: project.OverrideSkipSignoff,
			Remedy:   "address the review and record a new sign-off",
		}
	}
	return nil
}

func ids(ts []tasks.Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

// Affinity returns the phase a task subject belongs to. Matching is a
// case-insensitive prefix of the phase name, anchored at the first
// character and followed by whitespace, ':' or '-'. When several phases
// match, the first in plan order wins. It returns "" when nothing matches.
func Affinity(subject string, plan []string) string {
	for _, phase := range plan {
		if prefixPattern(phase).MatchString(subject) {
			return phase
		}
	}
	return ""
}

// PhaseTasks returns the tasks whose affinity is phase. If phase is not in
// plan it is matched on its own.
func PhaseTasks(phase string, plan []string, all []tasks.Task) []tasks.Task {
	if !slices.Contains(plan, phase) {
		plan = append(append([]string(nil), plan...), phase)
	}
	var out []tasks.Task
	for _, t := range all {
		if Affinity(t.Subject, plan) == phase {
			out = append(out, t)
		}
	}
	return out
}

func prefixPattern(phase string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(phase) + `[\s:-]`)
}
