package signals

import "sort"

// Dimensions holds the three complexity sub-scores, each in [0,3].
type Dimensions struct {
	Impact        int `json:"impact"`
	Reversibility int `json:"reversibility"`
	Novelty       int `json:"novelty"`
}

// Sum returns the raw complexity, capped at MaxComplexity.
func (d Dimensions) Sum() int {
	return clamp(d.Impact+d.Reversibility+d.Novelty, 0, MaxComplexity)
}

// tier maps a dimension score to the keywords that earn it. The highest
// matching tier wins.
type tier struct {
	score    int
	keywords []string
}

var impactTiers = []tier{
	{3, []string{"production", "all users", "payment", "payments", "billing", "data loss", "outage", "critical", "security"}},
	{2, []string{"api", "database", "schema", "auth", "authentication", "public", "customer", "customers", "shared"}},
	{1, []string{"feature", "service", "module", "endpoint", "ui", "page", "cli"}},
}

var reversibilityTiers = []tier{
	{3, []string{"migration", "migrate", "delete", "drop", "irreversible", "data loss", "destructive", "rewrite"}},
	{2, []string{"schema", "public api", "breaking", "deprecate", "rename", "protocol", "contract"}},
	{1, []string{"config", "configuration", "flag", "refactor", "deploy", "deployment"}},
}

var noveltyTiers = []tier{
	{3, []string{"from scratch", "greenfield", "first time", "never", "experimental", "research", "prototype"}},
	{2, []string{"new", "framework", "unfamiliar", "integrate", "integration", "third-party", "library"}},
	{1, []string{"extend", "improve", "enhance", "update", "upgrade"}},
}

func scoreTiers(norm string, tiers []tier) int {
	for _, t := range tiers {
		if countMatches(norm, t.keywords) > 0 {
			return t.score
		}
	}
	return 0
}

// ScoreDimensions computes impact, reversibility and novelty for text.
func ScoreDimensions(text string) Dimensions {
	norm := normalize(text)
	if norm == "" {
		return Dimensions{}
	}
	return Dimensions{
		Impact:        scoreTiers(norm, impactTiers),
		Reversibility: scoreTiers(norm, reversibilityTiers),
		Novelty:       scoreTiers(norm, noveltyTiers),
	}
}

// ArchetypeHint describes a project shape that adjusts complexity.
type ArchetypeHint struct {
	Confidence    float64 `json:"confidence"`
	ImpactBonus   int     `json:"impact_bonus"`
	MinComplexity int     `json:"min_complexity"`
}

// MinArchetypeConfidence is the confidence at which an archetype applies.
const MinArchetypeConfidence = 0.5

type archetype struct {
	keywords []string
	hint     ArchetypeHint
}

// builtinArchetypes are detected from the description itself. Confidence is
// the fraction of three keyword hits, so two hits are needed to apply.
var builtinArchetypes = map[string]archetype{
	"infrastructure-framework": {
		keywords: []string{"framework", "infrastructure", "platform", "plugin", "sdk", "orchestrator"},
		hint:     ArchetypeHint{ImpactBonus: 1, MinComplexity: 4},
	},
	"data-migration": {
		keywords: []string{"migration", "migrate", "schema", "backfill", "etl"},
		hint:     ArchetypeHint{ImpactBonus: 1, MinComplexity: 4},
	},
	"security-sensitive": {
		keywords: []string{"auth", "authentication", "encryption", "credentials", "secrets", "pii", "permissions"},
		hint:     ArchetypeHint{ImpactBonus: 1, MinComplexity: 3},
	},
	"public-api": {
		keywords: []string{"public api", "sdk", "endpoint", "versioning", "webhook", "api"},
		hint:     ArchetypeHint{MinComplexity: 3},
	},
	"ui-feature": {
		keywords: []string{"ui", "page", "screen", "form", "dashboard", "layout"},
		hint:     ArchetypeHint{},
	},
}

// DetectArchetypes returns every built-in archetype with at least one
// keyword hit, with its confidence filled in.
func DetectArchetypes(text string) map[string]ArchetypeHint {
	norm := normalize(text)
	out := make(map[string]ArchetypeHint)
	if norm == "" {
		return out
	}
	for name, a := range builtinArchetypes {
		hits := countMatches(norm, a.keywords)
		if hits == 0 {
			continue
		}
		h := a.hint
		h.Confidence = float64(hits) / 3
		if h.Confidence > 1 {
			h.Confidence = 1
		}
		out[name] = h
	}
	return out
}

// ApplyArchetypes adjusts a raw score with every archetype whose confidence
// reaches MinArchetypeConfidence:
//
//	final = max(highest min_complexity, min(7, raw + sum(impact_bonus)))
//
// The result is always within [0, MaxComplexity]. The names of the applied
// archetypes are returned sorted.
func ApplyArchetypes(raw int, archetypes map[string]ArchetypeHint) (int, []string) {
	bonus := 0
	floor := 0
	var applied []string
	for name, a := range archetypes {
		if a.Confidence < MinArchetypeConfidence {
			continue
		}
		applied = append(applied, name)
		bonus += a.ImpactBonus
		if m := clamp(a.MinComplexity, 0, MaxComplexity); m > floor {
			floor = m
		}
	}
	sort.Strings(applied)
	adjusted := clamp(raw+bonus, 0, MaxComplexity)
	if floor > adjusted {
		adjusted = floor
	}
	return adjusted, applied
}

// Result is the output of Score.
type Result struct {
	Signals            []string                 `json:"signals"`
	Complexity         int                      `json:"complexity"`
	Raw                int                      `json:"raw"`
	Dimensions         Dimensions               `json:"dimensions"`
	Archetypes         map[string]ArchetypeHint `json:"archetypes"`
	AppliedArchetypes  []string                 `json:"applied_archetypes,omitempty"`
	NeedsClarification bool                     `json:"needs_clarification"`
}

// Score classifies description and computes its final complexity.
//
// hints are caller-supplied archetypes; they replace a detected archetype of
// the same name. A hint with zero confidence is treated as asserted by the
// caller (confidence 1).
func Score(description string, hints map[string]ArchetypeHint) Result {
	detected := Detect(description)
	if len(detected) == 0 {
		return Result{
			Signals:            []string{NeedsClarification},
			Archetypes:         map[string]ArchetypeHint{},
			NeedsClarification: true,
		}
	}

	dims := ScoreDimensions(description)
	archetypes := DetectArchetypes(description)
	for name, h := range hints {
		if h.Confidence == 0 {
			h.Confidence = 1
		}
		archetypes[name] = h
	}

	raw := dims.Sum()
	final, applied := ApplyArchetypes(raw, archetypes)

	return Result{
		Signals:           detected,
		Complexity:        final,
		Raw:               raw,
		Dimensions:        dims,
		Archetypes:        archetypes,
		AppliedArchetypes: applied,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
