package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/signals"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

// ScoreTool handles the phase_score MCP tool.
// It previews scoring and planning without creating a project.
type ScoreTool struct {
	svc *workflow.Service
}

// NewScoreTool creates a ScoreTool.
func NewScoreTool(svc *workflow.Service) *ScoreTool {
	return &ScoreTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *ScoreTool) Definition() mcp.Tool {
	return mcp.NewTool("phase_score",
		mcp.WithDescription(
			"Score a work description without creating a project. Returns the detected "+
				"signal categories, the complexity score (0-7) with its dimensions, the "+
				"archetypes that applied, and the phase plan that `phase_plan` would create.",
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Free-text description of the work."),
		),
		archetypeHintsParam(),
	)
}

// Handle processes the phase_score tool call.
func (t *ScoreTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	description := req.GetString("description", "")
	hints, err := archetypeHintsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	score := t.svc.Score(description, hints)
	plan, err := t.svc.Catalog().Plan(phases.Input{Signals: score.Signals, Complexity: score.Complexity})
	if err != nil {
		return callerError(err)
	}

	var b strings.Builder
	b.WriteString("# Score Preview\n\n")
	writeScore(&b, score)
	fmt.Fprintf(&b, "**Plan:** %s\n", strings.Join(plan, " → "))
	fmt.Fprintf(&b, "**Specialists:** %s\n", orNone(phases.SpecialistsFor(score.Signals)))
	return mcp.NewToolResultText(b.String()), nil
}

func writeScore(b *strings.Builder, s signals.Result) {
	fmt.Fprintf(b, "**Signals:** %s\n", orNone(s.Signals))
	fmt.Fprintf(b, "**Complexity:** %d/%d (raw %d: impact %d, reversibility %d, novelty %d)\n",
		s.Complexity, signals.MaxComplexity, s.Raw,
		s.Dimensions.Impact, s.Dimensions.Reversibility, s.Dimensions.Novelty)
	if len(s.AppliedArchetypes) > 0 {
		fmt.Fprintf(b, "**Archetypes:** %s\n", strings.Join(s.AppliedArchetypes, ", "))
	}
	if s.NeedsClarification {
		b.WriteString("\n> ⚠️ Low confidence: the description matched no signal categories. " +
			"The plan falls back to the mandatory phases; clarify the scope first.\n\n")
	}
}

func archetypeHintsParam() mcp.ToolOption {
	return mcp.WithObject("archetype_hints",
		mcp.Description(
			"Optional archetype hints keyed by archetype name, e.g. "+
				`{"infrastructure-framework": {"confidence": 0.9, "impact_bonus": 1, "min_complexity": 5}}. `+
				"A hint replaces a detected archetype of the same name."),
	)
}

// archetypeHintsArg decodes the archetype_hints object, if present.
func archetypeHintsArg(req mcp.CallToolRequest) (map[string]signals.ArchetypeHint, error) {
	raw, ok := req.GetArguments()["archetype_hints"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("archetype_hints: %w", err)
	}
	var hints map[string]signals.ArchetypeHint
	if err := json.Unmarshal(data, &hints); err != nil {
		return nil, fmt.Errorf("archetype_hints must map names to {confidence, impact_bonus, min_complexity}: %w", err)
	}
	return hints, nil
}
