package phases

import (
	"fmt"
	"slices"
)

// Done is the sentinel current-phase value of a finished project.
const Done = "done"

// Mode controls whether a plan may change after creation.
type Mode string

const (
	ModeDynamic Mode = "dynamic"
	ModeStatic  Mode = "static"
)

// ValidateMode returns an error if the mode is not recognized.
func ValidateMode(m Mode) error {
	if m != ModeDynamic && m != ModeStatic {
		return fmt.Errorf("invalid plan mode %q: must be one of: dynamic, static", m)
	}
	return nil
}

// categoryMinimums force a category of phase into the plan once complexity
// reaches the given value, independent of signals.
var categoryMinimums = map[string]int{
	"test-strategy": 2,
}

// Existing describes the plan being re-planned at a checkpoint.
type Existing struct {
	Plan []string
	Mode Mode
	// Anchor is the index in Plan of the phase the checkpoint fired on.
	// New phases are never inserted at or before it.
	Anchor int
}

// Input is everything Plan needs.
type Input struct {
	Signals    []string
	Complexity int
	// Available lists the specialists that can staff a phase. Nil means
	// every specialist is available.
	Available []string
	Existing  *Existing
}

// Plan selects and orders phases from the catalog.
//
// Non-skippable phases are always included. A skippable phase is included
// when one of its triggers is among the signals, when the complexity falls
// inside its range, or when its category minimum is reached. The selection
// is ordered topologically by depends_on (only edges between selected
// phases count), with ties broken by declaration order.
//
// When Existing is set, a static plan is returned unchanged and a dynamic
// plan is merged: every existing phase keeps its position and new phases
// are inserted after the anchor and after their own dependencies.
func (c *Catalog) Plan(in Input) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if ex := in.Existing; ex != nil {
		for _, name := range ex.Plan {
			if _, ok := c.Entry(name); !ok {
				return nil, &ConfigError{Reason: fmt.Sprintf("plan references unknown phase %q", name)}
			}
		}
		if ex.Mode == ModeStatic {
			return slices.Clone(ex.Plan), nil
		}
	}

	selected := c.selectPhases(in)
	ordered, err := c.order(selected)
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return nil, &ConfigError{Reason: "no phases selected"}
	}

	if in.Existing == nil {
		return ordered, nil
	}
	return c.merge(*in.Existing, ordered), nil
}

func (c *Catalog) selectPhases(in Input) map[string]bool {
	signalSet := make(map[string]bool, len(in.Signals))
	for _, s := range in.Signals {
		signalSet[s] = true
	}
	var available map[string]bool
	if in.Available != nil {
		available = make(map[string]bool, len(in.Available))
		for _, s := range in.Available {
			available[s] = true
		}
	}

	selected := make(map[string]bool)
	for _, e := range c.Entries {
		if !e.Skippable {
			selected[e.Name] = true
			continue
		}
		if !staffed(e, available) {
			continue
		}
		if triggered(e, signalSet, in.Complexity) {
			selected[e.Name] = true
		}
	}
	return selected
}

func triggered(e Entry, signals map[string]bool, complexity int) bool {
	for _, t := range e.Triggers {
		if signals[t] {
			return true
		}
	}
	if e.ComplexityRange != nil && e.ComplexityRange.Contains(complexity) {
		return true
	}
	if floor, ok := categoryMinimums[e.Category]; ok && complexity >= floor {
		return true
	}
	return false
}

func staffed(e Entry, available map[string]bool) bool {
	if available == nil || len(e.Specialists) == 0 {
		return true
	}
	for _, s := range e.Specialists {
		if available[s] {
			return true
		}
	}
	return false
}

// order emits selected phases so that each comes after its selected
// dependencies, picking the earliest-declared ready phase at every step.
func (c *Catalog) order(selected map[string]bool) ([]string, error) {
	placed := make(map[string]bool, len(selected))
	out := make([]string, 0, len(selected))
	for len(out) < len(selected) {
		progressed := false
		for _, e := range c.Entries {
			if !selected[e.Name] || placed[e.Name] {
				continue
			}
			if !depsPlaced(e, selected, placed) {
				continue
			}
			placed[e.Name] = true
			out = append(out, e.Name)
			progressed = true
			break
		}
		if !progressed {
			return nil, &ConfigError{Reason: "dependency cycle among selected phases"}
		}
	}
	return out, nil
}

func depsPlaced(e Entry, selected, placed map[string]bool) bool {
	for _, d := range e.DependsOn {
		if selected[d] && !placed[d] {
			return false
		}
	}
	return true
}

// merge inserts the phases of fresh that are missing from the existing
// plan. Each new phase lands after the anchor and its own dependencies. It
// also follows the previously inserted phase, so new phases keep their
// relative order from fresh.
func (c *Catalog) merge(ex Existing, fresh []string) []string {
	result := slices.Clone(ex.Plan)
	last := ""
	for _, name := range fresh {
		if slices.Contains(result, name) {
			continue
		}
		pos := max(ex.Anchor+1, 0)
		e, _ := c.Entry(name)
		for _, dep := range e.DependsOn {
			if i := slices.Index(result, dep); i >= pos {
				pos = i + 1
			}
		}
		if i := slices.Index(result, last); last != "" && i >= pos {
			pos = i + 1
		}
		pos = min(pos, len(result))
		result = slices.Insert(result, pos, name)
		last = name
	}
	return result
}

// Injected returns the phases of next that are not in prev, in plan order.
func Injected(prev, next []string) []string {
	var out []string
	for _, n := range next {
		if !slices.Contains(prev, n) {
			out = append(out, n)
		}
	}
	return out
}
