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

// ApproveTool handles the phase_approve MCP tool.
//
// This is the only way a phase becomes approved. The task lifecycle checks
// are re-run under the project lock against a fresh task snapshot, so an
// earlier preview can never approve a phase whose tasks have since changed.
type ApproveTool struct {
	svc *workflow.Service
}

// NewApproveTool creates an ApproveTool.
func NewApproveTool(svc *workflow.Service) *ApproveTool {
	return &ApproveTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *ApproveTool) Definition() mcp.Tool {
	return mcp.NewTool("phase_approve",
		mcp.WithDescription(
			"Approve a phase that is awaiting approval and advance the project. "+
				"Approval is blocked if any task lifecycle check fails: stale tasks, too few "+
				"tasks, unfinished tasks or a missing sign-off. Every violation is reported "+
				"separately with the override that bypasses it. Overrides are recorded on the phase.",
		),
		projectParam(),
		phaseParam(),
		mcp.WithArray("overrides",
			mcp.Description(
				"Overrides for this approval, as `name` or `name=value`. Known names: "+
					strings.Join(project.OverrideNames(), ", ")+"."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithBoolean("acknowledge_conditions",
			mcp.Description("Confirm the conditions of a conditional sign-off."),
		),
		mcp.WithArray("findings",
			mcp.Description("Notes gathered during the phase. In dynamic mode they are re-scored at checkpoints and may inject new phases."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// Handle processes the phase_approve tool call.
func (t *ApproveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, phase, bad, err := target(ctx, t.svc, req)
	if bad != nil || err != nil {
		return bad, err
	}
	res, err := t.svc.Approve(ctx, name, phase, workflow.ApproveOptions{
		OverrideFlags: stringsArg(req, "overrides"),
		Acknowledge:   boolArg(req, "acknowledge_conditions", false),
		Findings:      stringsArg(req, "findings"),
	})
	if err != nil {
		return callerError(err)
	}

	var b strings.Builder
	if !res.OK {
		fmt.Fprintf(&b, "# Approval Blocked: `%s` / `%s`\n\nNothing was written.\n\n", name, phase)
		if res.Stats != nil {
			writeStats(&b, *res.Stats)
			b.WriteString("\n")
		}
		writeViolations(&b, "Violations", res.Violations)
		if len(res.PendingConditions) > 0 {
			fmt.Fprintf(&b, "## Conditions To Acknowledge\n\n- %s\n\nRetry with `acknowledge_conditions: true`.\n",
				strings.Join(res.PendingConditions, "\n- "))
		}
		return mcp.NewToolResultError(b.String()), nil
	}

	fmt.Fprintf(&b, "# Phase Approved: `%s` / `%s`\n\n", name, phase)
	if res.Stats != nil {
		writeStats(&b, *res.Stats)
	}
	if len(res.OverridesUsed) > 0 {
		fmt.Fprintf(&b, "**Overrides used:** %s\n", strings.Join(res.OverridesUsed, ", "))
	}
	b.WriteString("\n")
	writeViolations(&b, "Suppressed By Override", res.Suppressed)
	if len(res.Injected) > 0 {
		fmt.Fprintf(&b, "**Checkpoint re-plan injected:** %s\n\n", strings.Join(res.Injected, ", "))
	}
	switch {
	case res.Completed || res.NextPhase == phases.Done:
		b.WriteString("🎉 All phases approved. The project is complete.\n")
	default:
		fmt.Fprintf(&b, "**Next phase:** `%s` (now in progress)\n", res.NextPhase)
	}
	return mcp.NewToolResultText(b.String()), nil
}
