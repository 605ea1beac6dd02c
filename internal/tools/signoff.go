package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

// SignoffTool handles the phase_signoff MCP tool.
type SignoffTool struct {
	svc *workflow.Service
}

// NewSignoffTool creates a SignoffTool.
func NewSignoffTool(svc *workflow.Service) *SignoffTool {
	return &SignoffTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *SignoffTool) Definition() mcp.Tool {
	return mcp.NewTool("phase_signoff",
		mcp.WithDescription(
			"Record a reviewer's verdict on a phase. A conditional verdict must list its "+
				"conditions, and they must be acknowledged when approving.",
		),
		projectParam(),
		phaseParam(),
		mcp.WithString("reviewer_tier",
			mcp.Required(),
			mcp.Description("Who reviewed the phase, e.g. peer, lead, security."),
		),
		mcp.WithString("result",
			mcp.Required(),
			mcp.Description("Review verdict."),
			mcp.Enum(string(project.SignoffApproved), string(project.SignoffConditional), string(project.SignoffRejected)),
		),
		mcp.WithArray("conditions",
			mcp.Description("Conditions attached to a conditional verdict."),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// Handle processes the phase_signoff tool call.
func (t *SignoffTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, phase, bad, err := target(ctx, t.svc, req)
	if bad != nil || err != nil {
		return bad, err
	}
	so := project.Signoff{
		ReviewerTier: req.GetString("reviewer_tier", ""),
		Result:       project.SignoffResult(req.GetString("result", "")),
		Conditions:   stringsArg(req, "conditions"),
	}
	if so.ReviewerTier == "" {
		return mcp.NewToolResultError("reviewer_tier is required"), nil
	}
	if err := project.ValidateSignoffResult(so.Result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if so.Result == project.SignoffConditional && len(so.Conditions) == 0 {
		return mcp.NewToolResultError("a conditional sign-off must list its conditions"), nil
	}

	if _, err := t.svc.Signoff(ctx, name, phase, so); err != nil {
		return callerError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Sign-off recorded on `%s` / `%s`: **%s** by %s.", name, phase, so.Result, so.ReviewerTier)), nil
}
