// Package tools implements the MCP tool handlers for phasegate.
//
// Each tool is a struct that receives its dependencies through its
// constructor, returns its schema from Definition() and processes calls in
// Handle(). One file per tool.
//
// Caller mistakes (unknown project, wrong phase state, blocked approval,
// concurrent modification) come back as tool results with IsError set so
// the host can show them. Only infrastructure failures are returned as Go
// errors.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/phasegate/internal/approval"
	"github.com/HendryAvila/phasegate/internal/lifecycle"
	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

// intArg extracts an integer argument, returning defaultVal if the key is
// missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringsArg extracts a string array argument. A plain string is split on
// commas so hosts that flatten arrays still work.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func projectParam() mcp.ToolOption {
	return mcp.WithString("project",
		mcp.Description("Project name. If omitted, the most recently active project is used."),
	)
}

func phaseParam() mcp.ToolOption {
	return mcp.WithString("phase",
		mcp.Description("Phase name. If omitted, the project's current phase is used."),
	)
}

// target resolves the project and phase a call refers to. A non-nil
// result is a caller error to return as-is.
func target(ctx context.Context, svc *workflow.Service, req mcp.CallToolRequest) (string, string, *mcp.CallToolResult, error) {
	name, err := svc.Resolve(ctx, req.GetString("project", ""))
	if err != nil {
		res, err := callerError(err)
		return "", "", res, err
	}
	phase := req.GetString("phase", "")
	if phase == "" {
		snap, err := svc.Status(ctx, name)
		if err != nil {
			res, err := callerError(err)
			return "", "", res, err
		}
		phase = snap.Project.CurrentPhase
		if phase == phases.Done {
			return "", "", mcp.NewToolResultError(
				fmt.Sprintf("Project %q is complete; there is no current phase.", name)), nil
		}
	}
	return name, phase, nil, nil
}

// callerError classifies err. Errors the caller can act on become tool
// error results; anything else is returned as a Go error.
func callerError(err error) (*mcp.CallToolResult, error) {
	var (
		cfgErr   *phases.ConfigError
		stateErr *approval.StateChangedError
		lockErr  *project.LockTimeoutError
	)
	switch {
	case errors.Is(err, workflow.ErrNoActiveProject):
		return mcp.NewToolResultError("No active project. Pass `project` or create one with `phase_plan` first."), nil
	case errors.Is(err, workflow.ErrInvalidRequest), errors.Is(err, project.ErrUnknownOverride),
		errors.Is(err, project.ErrInvalidOverride):
		return mcp.NewToolResultError(err.Error()), nil
	case errors.Is(err, project.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("Not found: %v", err)), nil
	case errors.As(err, &stateErr):
		return mcp.NewToolResultError(stateErr.Error() + " (see `phase_status`)"), nil
	case errors.As(err, &lockErr):
		return mcp.NewToolResultError(lockErr.Error()), nil
	case errors.Is(err, project.ErrVersionConflict):
		return mcp.NewToolResultError(fmt.Sprintf(
			"%v. The project changed while writing; retry the operation.", err)), nil
	case errors.Is(err, project.ErrAlreadyArchived), errors.Is(err, project.ErrNotArchived),
		errors.Is(err, project.ErrNameTaken):
		return mcp.NewToolResultError(err.Error()), nil
	case errors.As(err, &cfgErr):
		return mcp.NewToolResultError(fmt.Sprintf("Phase catalog error: %v", cfgErr)), nil
	}
	return nil, err
}

// writeViolations renders violations as a markdown list. Every violation
// is listed on its own with the override that would bypass it.
func writeViolations(b *strings.Builder, title string, vs []lifecycle.Violation) {
	if len(vs) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, v := range vs {
		fmt.Fprintf(b, "- **%s**: %s (override: `%s`)\n", v.Check, v.Message, v.Override)
		if v.Remedy != "" {
			fmt.Fprintf(b, "  - Remedy: %s\n", v.Remedy)
		}
		if len(v.TaskIDs) > 0 {
			fmt.Fprintf(b, "  - Tasks: %s\n", strings.Join(v.TaskIDs, ", "))
		}
	}
	b.WriteString("\n")
}

func writeStats(b *strings.Builder, s project.TaskStats) {
	fmt.Fprintf(b, "**Tasks:** %d total, %d completed, %d blocked, %d stale (minimum met: %t)\n",
		s.Total, s.Completed, s.Blocked, s.Stale, s.MinimumMet)
}

func statusMarker(s project.PhaseStatus) string {
	switch s {
	case project.PhaseApproved:
		return "✅"
	case project.PhaseInProgress:
		return "🔄"
	case project.PhaseAwaitingApproval:
		return "⏳"
	case project.PhaseRejected:
		return "❌"
	}
	return "⬜"
}

func orNone(ss []string) string {
	if len(ss) == 0 {
		return "none"
	}
	return strings.Join(ss, ", ")
}
