package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/phasegate/internal/workflow"
)

// StatusTool handles the phase_status MCP tool.
type StatusTool struct {
	svc *workflow.Service
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(svc *workflow.Service) *StatusTool {
	return &StatusTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("phase_status",
		mcp.WithDescription(
			"Show a project's phase plan, the status of each phase, the tasks of the "+
				"current phase and a preview of what an approval would report right now. "+
				"The read is lock-free and may trail a concurrent transition by one step.",
		),
		projectParam(),
	)
}

// Handle processes the phase_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := t.svc.Resolve(ctx, req.GetString("project", ""))
	if err != nil {
		return callerError(err)
	}
	snap, err := t.svc.Status(ctx, name)
	if err != nil {
		return callerError(err)
	}
	p := snap.Project

	var b strings.Builder
	fmt.Fprintf(&b, "# Project Status: `%s`\n\n", p.Name)
	fmt.Fprintf(&b, "**Description:** %s\n", p.Description)
	fmt.Fprintf(&b, "**Status:** %s\n", p.Status)
	fmt.Fprintf(&b, "**Mode:** %s\n", p.PhasePlanMode)
	fmt.Fprintf(&b, "**Complexity:** %d\n", p.ComplexityScore)
	fmt.Fprintf(&b, "**Signals:** %s\n", orNone(p.SignalsDetected))
	fmt.Fprintf(&b, "**Specialists:** %s\n", orNone(snap.Specialists))
	fmt.Fprintf(&b, "**Current phase:** %s\n\n", p.CurrentPhase)

	b.WriteString("## Phases\n\n")
	b.WriteString("| Phase | Status | Sign-off |\n")
	b.WriteString("|-------|--------|----------|\n")
	for _, name := range p.PhasePlan {
		rec := p.Phase(name)
		if rec == nil {
			continue
		}
		signoff := "—"
		if rec.Signoff != nil {
			signoff = fmt.Sprintf("%s (%s)", rec.Signoff.Result, rec.Signoff.ReviewerTier)
		}
		fmt.Fprintf(&b, "| %s %s | %s | %s |\n", statusMarker(rec.Status), name, rec.Status, signoff)
	}
	b.WriteString("\n")

	if !snap.BoardDetected {
		b.WriteString("> No task board detected: every phase sees an empty task list.\n\n")
	}
	if len(snap.CurrentTasks) > 0 {
		fmt.Fprintf(&b, "## Tasks in `%s`\n\n", p.CurrentPhase)
		for _, task := range snap.CurrentTasks {
			fmt.Fprintf(&b, "- [%s] %s — %s\n", task.Status, task.ID, task.Subject)
		}
		b.WriteString("\n")
	}

	if pv := snap.Preview; pv != nil {
		b.WriteString("## Approval Preview\n\n")
		writeStats(&b, pv.Stats)
		if pv.OK {
			b.WriteString("\nNo blocking violations.\n")
		} else {
			b.WriteString("\n")
			writeViolations(&b, "Violations", pv.Violations)
		}
		if len(pv.Conditions) > 0 {
			fmt.Fprintf(&b, "**Sign-off conditions to acknowledge:** %s\n", strings.Join(pv.Conditions, "; "))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}
