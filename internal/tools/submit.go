package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/phasegate/internal/workflow"
)

// SubmitTool handles the phase_submit MCP tool.
type SubmitTool struct {
	svc *workflow.Service
}

// NewSubmitTool creates a SubmitTool.
func NewSubmitTool(svc *workflow.Service) *SubmitTool {
	return &SubmitTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *SubmitTool) Definition() mcp.Tool {
	return mcp.NewTool("phase_submit",
		mcp.WithDescription(
			"Mark the current phase as ready for approval (in_progress → awaiting_approval). "+
				"Returns a preview of the task lifecycle checks; the preview is advisory and "+
				"is re-run when `phase_approve` is called.",
		),
		projectParam(),
		phaseParam(),
	)
}

// Handle processes the phase_submit tool call.
func (t *SubmitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, phase, bad, err := target(ctx, t.svc, req)
	if bad != nil || err != nil {
		return bad, err
	}
	res, err := t.svc.Submit(ctx, name, phase)
	if err != nil {
		return callerError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Phase Submitted: `%s` / `%s`\n\n", name, phase)
	b.WriteString("Status is now **awaiting_approval**.\n\n")
	writeStats(&b, res.Preview.Stats)
	b.WriteString("\n")
	if res.Preview.OK {
		b.WriteString("The lifecycle checks pass. Record a sign-off with `phase_signoff` if one is still missing, then call `phase_approve`.\n")
	} else {
		writeViolations(&b, "Would Block Approval", res.Preview.Violations)
		b.WriteString("Fix the tasks above or pass the named overrides to `phase_approve`.\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
