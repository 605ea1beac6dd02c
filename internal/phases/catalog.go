// Package phases holds the static phase catalog and the planner that turns
// detected signals and a complexity score into an ordered phase plan.
//
// The catalog is configuration: it is validated once when loaded and never
// mutated afterwards. The planner is deterministic so that identical inputs
// always produce identical plans.
package phases

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Range is an inclusive complexity interval.
type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Contains reports whether c lies within the range.
func (r Range) Contains(c int) bool {
	return c >= r.Min && c <= r.Max
}

// Entry is one phase definition in the catalog.
type Entry struct {
	Name            string   `yaml:"name" json:"name"`
	Skippable       bool     `yaml:"skippable" json:"skippable"`
	Category        string   `yaml:"category,omitempty" json:"category,omitempty"`
	Triggers        []string `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	ComplexityRange *Range   `yaml:"complexity_range,omitempty" json:"complexity_range,omitempty"`
	DependsOn       []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	MinTasks        int      `yaml:"min_tasks,omitempty" json:"min_tasks,omitempty"`
	Checkpoint      bool     `yaml:"checkpoint,omitempty" json:"checkpoint,omitempty"`
	Specialists     []string `yaml:"specialists,omitempty" json:"specialists,omitempty"`
}

// Catalog is the ordered set of phase definitions.
type Catalog struct {
	Entries []Entry `yaml:"phases" json:"phases"`
}

// ConfigError reports an invalid catalog. It is fatal: the planner refuses
// to produce any plan from a catalog that fails validation.
type ConfigError struct {
	Reason string
	Cycle  []string
}

func (e *ConfigError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("phase catalog: dependency cycle: %s", strings.Join(e.Cycle, " → "))
	}
	return "phase catalog: " + e.Reason
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in phase catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog from a YAML file. An empty path returns the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading phase catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing phase catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks names, dependency references, ranges and cycles.
func (c *Catalog) Validate() error {
	if len(c.Entries) == 0 {
		return &ConfigError{Reason: "no phases defined"}
	}
	seen := make(map[string]bool, len(c.Entries))
	mandatory := 0
	for _, e := range c.Entries {
		if e.Name == "" {
			return &ConfigError{Reason: "phase with empty name"}
		}
		if e.Name == Done {
			return &ConfigError{Reason: fmt.Sprintf("%q is reserved", Done)}
		}
		if seen[e.Name] {
			return &ConfigError{Reason: fmt.Sprintf("duplicate phase %q", e.Name)}
		}
		seen[e.Name] = true
		if !e.Skippable {
			mandatory++
		}
		if r := e.ComplexityRange; r != nil && (r.Min > r.Max || r.Min < 0) {
			return &ConfigError{Reason: fmt.Sprintf("phase %q has invalid complexity range [%d,%d]", e.Name, r.Min, r.Max)}
		}
		if e.MinTasks < 0 {
			return &ConfigError{Reason: fmt.Sprintf("phase %q has negative min_tasks", e.Name)}
		}
	}
	if mandatory == 0 {
		return &ConfigError{Reason: "at least one phase must be non-skippable"}
	}
	for _, e := range c.Entries {
		for _, dep := range e.DependsOn {
			if !seen[dep] {
				return &ConfigError{Reason: fmt.Sprintf("phase %q depends on unknown phase %q", e.Name, dep)}
			}
		}
	}
	if cycle := c.detectCycle(); len(cycle) > 0 {
		return &ConfigError{Cycle: cycle}
	}
	return nil
}

// detectCycle uses DFS over depends_on edges. It returns the cycle path,
// closed on its first node, or nil.
func (c *Catalog) detectCycle() []string {
	graph := make(map[string][]string, len(c.Entries))
	for _, e := range c.Entries {
		graph[e.Name] = e.DependsOn
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string

	var dfs func(string) bool
	dfs = func(node string) bool {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, next := range graph[node] {
			if !visited[next] {
				if dfs(next) {
					return true
				}
			} else if onStack[next] {
				start := 0
				for i, p := range path {
					if p == next {
						start = i
						break
					}
				}
				path = append(path[start:], next)
				return true
			}
		}

		onStack[node] = false
		path = path[:len(path)-1]
		return false
	}

	for _, e := range c.Entries {
		if !visited[e.Name] {
			path = path[:0]
			if dfs(e.Name) {
				return path
			}
		}
	}
	return nil
}

// Entry returns the definition of a phase by name.
func (c *Catalog) Entry(name string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Names returns phase names in declaration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.Entries))
	for i, e := range c.Entries {
		out[i] = e.Name
	}
	return out
}

// MinTasks returns the built-in minimum task count for a phase. Phases
// without an explicit value, and unknown phases, require one task.
func (c *Catalog) MinTasks(name string) int {
	if e, ok := c.Entry(name); ok && e.MinTasks > 0 {
		return e.MinTasks
	}
	return 1
}

// IsCheckpoint reports whether approving the phase triggers a re-plan.
func (c *Catalog) IsCheckpoint(name string) bool {
	e, ok := c.Entry(name)
	return ok && e.Checkpoint
}
