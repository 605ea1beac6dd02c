package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

// PlanTool handles the phase_plan MCP tool.
// It scores a description, plans its phases and persists a new project.
type PlanTool struct {
	svc *workflow.Service
}

// NewPlanTool creates a PlanTool.
func NewPlanTool(svc *workflow.Service) *PlanTool {
	return &PlanTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *PlanTool) Definition() mcp.Tool {
	return mcp.NewTool("phase_plan",
		mcp.WithDescription(
			"Create a project from a description of the work. The description is scored "+
				"for signal categories and complexity, and an ordered phase plan is built "+
				"from the phase catalog. The first phase starts in progress. "+
				"In dynamic mode, approving a checkpoint phase can inject new phases later.",
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("Free-text description of the work."),
		),
		mcp.WithString("name",
			mcp.Description("Project name (lowercase letters, digits, hyphens). Defaults to a slug of the description."),
		),
		mcp.WithString("mode",
			mcp.Description("Plan mode: dynamic (default) re-plans at checkpoints, static never changes."),
			mcp.Enum(string(phases.ModeDynamic), string(phases.ModeStatic)),
		),
		mcp.WithArray("available_specialists",
			mcp.Description("Specialist roles that can staff phases. Omit when every specialist is available."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		archetypeHintsParam(),
		mcp.WithNumber("staleness_threshold_minutes",
			mcp.Description("Minutes after which an unfinished task counts as stale. Defaults to the server setting."),
		),
		mcp.WithString("recovery_mode",
			mcp.Description("How stale tasks should be recovered: manual or auto."),
			mcp.Enum(project.RecoveryManual, project.RecoveryAuto),
		),
		mcp.WithArray("user_overrides",
			mcp.Description("Standing overrides applied to every approval, as `name` or `name=value` "+
				"(e.g. skip_signoff, min_tasks_per_phase=1)."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// Handle processes the phase_plan tool call.
func (t *PlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hints, err := archetypeHintsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	standing, err := project.ParseOverrideFlags(stringsArg(req, "user_overrides"))
	if err != nil {
		return callerError(err)
	}

	var available []string
	if _, ok := req.GetArguments()["available_specialists"]; ok {
		available = append([]string{}, stringsArg(req, "available_specialists")...)
	}

	res, err := t.svc.Plan(ctx, workflow.PlanRequest{
		Name:           req.GetString("name", ""),
		Description:    req.GetString("description", ""),
		Mode:           phases.Mode(req.GetString("mode", "")),
		ArchetypeHints: hints,
		Available:      available,
		Lifecycle: &project.LifecycleConfig{
			StalenessThresholdMinutes: intArg(req, "staleness_threshold_minutes", 0),
			RecoveryMode:              req.GetString("recovery_mode", ""),
			UserOverrides:             standing,
		},
	})
	if err != nil {
		return callerError(err)
	}

	p := res.Project
	var b strings.Builder
	fmt.Fprintf(&b, "# Project Planned: `%s`\n\n", p.Name)
	writeScore(&b, res.Score)
	fmt.Fprintf(&b, "**Mode:** %s\n", p.PhasePlanMode)
	fmt.Fprintf(&b, "**Plan:** %s\n", strings.Join(p.PhasePlan, " → "))
	fmt.Fprintf(&b, "**Current phase:** %s\n", p.CurrentPhase)
	fmt.Fprintf(&b, "**Specialists:** %s\n\n", orNone(res.Specialists))
	fmt.Fprintf(&b, "## Next Steps\n\n"+
		"Work the `%s` phase. Track tasks with subjects prefixed `%s:` on the task board, "+
		"then call `phase_submit` when it is ready for review.\n", p.CurrentPhase, p.CurrentPhase)
	return mcp.NewToolResultText(b.String()), nil
}
