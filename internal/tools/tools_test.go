package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/phasegate/internal/phases"
	"github.com/HendryAvila/phasegate/internal/project"
	"github.com/HendryAvila/phasegate/internal/tasks"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

// --- Test helpers ---

// newTestService builds a workflow service over a file backend in a temp
// dir. The task board is a JSON file the test can rewrite at any time.
func newTestService(t *testing.T) (*workflow.Service, string) {
	t.Helper()
	dir := t.TempDir()
	boardPath := filepath.Join(dir, "board.json")
	writeBoard(t, boardPath, "[]")

	store := project.NewStore(project.NewFileBackend(filepath.Join(dir, "data"), project.FileOptions{}), nil)
	svc := workflow.New(store, phases.DefaultCatalog(), workflow.Options{
		Tasks: tasks.NewFileSource(boardPath),
	})
	return svc, boardPath
}

func writeBoard(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("setup: write board: %v", err)
	}
}

func call(t *testing.T, handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	return result
}

// planSimple creates "make-it-nicer" with plan clarify → build → review.
func planSimple(t *testing.T, svc *workflow.Service) {
	t.Helper()
	result := call(t, NewPlanTool(svc).Handle, map[string]interface{}{
		"description": "Make it nicer",
	})
	if isErrorResult(result) {
		t.Fatalf("setup: plan failed: %s", getResultText(result))
	}
}

// isErrorResult checks if the result is a tool error.
func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// getResultText extracts the text content from a CallToolResult.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Definitions ---

func TestDefinitions(t *testing.T) {
	svc, _ := newTestService(t)
	want := map[string]mcp.Tool{
		"phase_plan":    NewPlanTool(svc).Definition(),
		"phase_score":   NewScoreTool(svc).Definition(),
		"phase_status":  NewStatusTool(svc).Definition(),
		"phase_submit":  NewSubmitTool(svc).Definition(),
		"phase_signoff": NewSignoffTool(svc).Definition(),
		"phase_approve": NewApproveTool(svc).Definition(),
		"phase_reject":  NewRejectTool(svc).Definition(),
		"phase_archive": NewArchiveTool(svc).Definition(),
	}
	for name, def := range want {
		if def.Name != name {
			t.Errorf("name = %q, want %q", def.Name, name)
		}
		if def.Description == "" {
			t.Errorf("%s has no description", name)
		}
	}
}

// --- ScoreTool ---

func TestScoreTool_Handle(t *testing.T) {
	svc, _ := newTestService(t)
	result := call(t, NewScoreTool(svc).Handle, map[string]interface{}{
		"description": "Add OAuth login with encrypted tokens and a database schema migration",
	})
	if isErrorResult(result) {
		t.Fatalf("expected success, got error: %s", getResultText(result))
	}
	text := getResultText(result)
	for _, want := range []string{"Score Preview", "security", "data", "**Plan:** clarify"} {
		if !strings.Contains(text, want) {
			t.Errorf("result should contain %q:\n%s", want, text)
		}
	}

	projects, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(projects) != 0 {
		t.Errorf("phase_score must not create a project, found %d", len(projects))
	}
}

func TestScoreTool_NeedsClarification(t *testing.T) {
	svc, _ := newTestService(t)
	result := call(t, NewScoreTool(svc).Handle, map[string]interface{}{"description": ""})
	if isErrorResult(result) {
		t.Fatalf("an empty description is degraded, not an error: %s", getResultText(result))
	}
	if !strings.Contains(getResultText(result), "Low confidence") {
		t.Error("result should flag low confidence")
	}
}

func TestScoreTool_BadHints(t *testing.T) {
	svc, _ := newTestService(t)
	result := call(t, NewScoreTool(svc).Handle, map[string]interface{}{
		"description":     "x",
		"archetype_hints": map[string]interface{}{"public-api": "very"},
	})
	if !isErrorResult(result) {
		t.Error("malformed archetype hints should be a tool error")
	}
}

// --- PlanTool ---

func TestPlanTool_Handle(t *testing.T) {
	svc, _ := newTestService(t)
	result := call(t, NewPlanTool(svc).Handle, map[string]interface{}{
		"description":    "Make it nicer",
		"mode":           "static",
		"user_overrides": []interface{}{"skip_signoff"},
	})
	if isErrorResult(result) {
		t.Fatalf("expected success, got error: %s", getResultText(result))
	}
	text := getResultText(result)
	if !strings.Contains(text, "make-it-nicer") {
		t.Error("result should contain the project name")
	}
	if !strings.Contains(text, "clarify → build → review") {
		t.Errorf("result should show the plan:\n%s", text)
	}

	snap, err := svc.Status(context.Background(), "make-it-nicer")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Project.PhasePlanMode != phases.ModeStatic {
		t.Errorf("mode = %q, want static", snap.Project.PhasePlanMode)
	}
	if !snap.Project.TaskLifecycle.UserOverrides.SkipSignoff {
		t.Error("standing override skip_signoff should be stored")
	}
}

func TestPlanTool_InfrastructureHint(t *testing.T) {
	svc, _ := newTestService(t)
	result := call(t, NewPlanTool(svc).Handle, map[string]interface{}{
		"description": "Build a plugin framework for third-party extensions",
		"archetype_hints": map[string]interface{}{
			"infrastructure-framework": map[string]interface{}{
				"confidence": 0.9, "impact_bonus": 1, "min_complexity": 5,
			},
		},
	})
	if isErrorResult(result) {
		t.Fatalf("expected success, got error: %s", getResultText(result))
	}
	if !strings.Contains(getResultText(result), "ideate") {
		t.Errorf("complexity 5 should bring in ideate:\n%s", getResultText(result))
	}
}

func TestPlanTool_CallerErrors(t *testing.T) {
	svc, _ := newTestService(t)
	cases := map[string]map[string]interface{}{
		"bad mode":         {"description": "x", "mode": "sometimes"},
		"bad name":         {"description": "x", "name": "Has Spaces"},
		"unknown override": {"description": "x", "user_overrides": []interface{}{"skip_everything"}},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			result := call(t, NewPlanTool(svc).Handle, args)
			if !isErrorResult(result) {
				t.Errorf("expected tool error, got: %s", getResultText(result))
			}
		})
	}
}

func TestPlanTool_ExplicitNameTaken(t *testing.T) {
	svc, _ := newTestService(t)
	tool := NewPlanTool(svc)
	args := map[string]interface{}{"description": "Add SSO login", "name": "sso"}

	if result := call(t, tool.Handle, args); isErrorResult(result) {
		t.Fatalf("first plan failed: %s", getResultText(result))
	}
	result := call(t, tool.Handle, args)
	if !isErrorResult(result) {
		t.Fatalf("expected tool error, got: %s", getResultText(result))
	}
	if !strings.Contains(getResultText(result), "already taken") {
		t.Errorf("error should say the name is taken: %s", getResultText(result))
	}
}

// --- StatusTool ---

func TestStatusTool_ActiveProject(t *testing.T) {
	svc, board := newTestService(t)
	planSimple(t, svc)
	writeBoard(t, board, `[{"id":"t1","subject":"clarify: pin down scope","status":"in_progress","updated_at":"2099-01-01T00:00:00Z"}]`)

	result := call(t, NewStatusTool(svc).Handle, map[string]interface{}{})
	if isErrorResult(result) {
		t.Fatalf("expected success, got error: %s", getResultText(result))
	}
	text := getResultText(result)
	for _, want := range []string{"make-it-nicer", "🔄 clarify", "t1", "terminal_state", "signoff"} {
		if !strings.Contains(text, want) {
			t.Errorf("status should contain %q:\n%s", want, text)
		}
	}
}

func TestStatusTool_NoActiveProject(t *testing.T) {
	svc, _ := newTestService(t)
	result := call(t, NewStatusTool(svc).Handle, map[string]interface{}{})
	if !isErrorResult(result) {
		t.Fatal("should return error when no project exists")
	}
	if !strings.Contains(getResultText(result), "phase_plan") {
		t.Error("error should point at phase_plan")
	}
}

func TestStatusTool_UnknownProject(t *testing.T) {
	svc, _ := newTestService(t)
	result := call(t, NewStatusTool(svc).Handle, map[string]interface{}{"project": "ghost"})
	if !isErrorResult(result) {
		t.Error("unknown project should be a tool error")
	}
}

// --- Submit / Signoff / Approve ---

func TestApproveTool_FullFlow(t *testing.T) {
	svc, board := newTestService(t)
	planSimple(t, svc)
	writeBoard(t, board, `[{"id":"t1","subject":"clarify: pin down scope","status":"completed","updated_at":"2099-01-01T00:00:00Z"}]`)

	submit := call(t, NewSubmitTool(svc).Handle, map[string]interface{}{})
	if isErrorResult(submit) {
		t.Fatalf("submit failed: %s", getResultText(submit))
	}
	if !strings.Contains(getResultText(submit), "signoff") {
		t.Errorf("submit preview should report the missing sign-off:\n%s", getResultText(submit))
	}

	signoff := call(t, NewSignoffTool(svc).Handle, map[string]interface{}{
		"reviewer_tier": "lead",
		"result":        "approved",
	})
	if isErrorResult(signoff) {
		t.Fatalf("signoff failed: %s", getResultText(signoff))
	}

	approve := call(t, NewApproveTool(svc).Handle, map[string]interface{}{
		"project": "make-it-nicer",
		"phase":   "clarify",
	})
	if isErrorResult(approve) {
		t.Fatalf("approve failed: %s", getResultText(approve))
	}
	text := getResultText(approve)
	if !strings.Contains(text, "Phase Approved") || !strings.Contains(text, "`build`") {
		t.Errorf("approve should advance to build:\n%s", text)
	}
}

func TestApproveTool_BlockedReportsEachViolation(t *testing.T) {
	svc, _ := newTestService(t)
	planSimple(t, svc)
	if r := call(t, NewSubmitTool(svc).Handle, map[string]interface{}{}); isErrorResult(r) {
		t.Fatalf("submit failed: %s", getResultText(r))
	}

	result := call(t, NewApproveTool(svc).Handle, map[string]interface{}{})
	if !isErrorResult(result) {
		t.Fatalf("approval with no tasks and no sign-off should be blocked")
	}
	text := getResultText(result)
	for _, want := range []string{"Nothing was written", "min_count", "skip_min_task_validation", "signoff", "skip_signoff"} {
		if !strings.Contains(text, want) {
			t.Errorf("blocked result should contain %q:\n%s", want, text)
		}
	}

	snap, err := svc.Status(context.Background(), "make-it-nicer")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got := snap.Project.Phase("clarify").Status; got != project.PhaseAwaitingApproval {
		t.Errorf("clarify status = %q, want awaiting_approval", got)
	}

	result = call(t, NewApproveTool(svc).Handle, map[string]interface{}{
		"overrides": []interface{}{"skip_min_task_validation", "skip_signoff"},
	})
	if isErrorResult(result) {
		t.Fatalf("override should unblock: %s", getResultText(result))
	}
	if !strings.Contains(getResultText(result), "Suppressed By Override") {
		t.Error("suppressed violations should still be reported")
	}
}

func TestApproveTool_NotAwaitingApproval(t *testing.T) {
	svc, _ := newTestService(t)
	planSimple(t, svc)
	result := call(t, NewApproveTool(svc).Handle, map[string]interface{}{"phase": "clarify"})
	if !isErrorResult(result) {
		t.Fatal("approving an in-progress phase should be a tool error")
	}
	if !strings.Contains(getResultText(result), "awaiting_approval") {
		t.Errorf("error should name the expected status: %s", getResultText(result))
	}
}

func TestApproveTool_UnknownOverride(t *testing.T) {
	svc, _ := newTestService(t)
	planSimple(t, svc)
	result := call(t, NewApproveTool(svc).Handle, map[string]interface{}{
		"overrides": "skip_everything",
	})
	if !isErrorResult(result) {
		t.Error("unknown override should be a tool error")
	}
}

func TestSignoffTool_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	planSimple(t, svc)
	cases := map[string]map[string]interface{}{
		"missing tier":          {"result": "approved"},
		"bad result":            {"reviewer_tier": "lead", "result": "meh"},
		"conditional, no conds": {"reviewer_tier": "lead", "result": "conditional"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			if r := call(t, NewSignoffTool(svc).Handle, args); !isErrorResult(r) {
				t.Errorf("expected tool error, got: %s", getResultText(r))
			}
		})
	}
}

// --- Reject / Reopen ---

func TestRejectTool_RejectAndReopen(t *testing.T) {
	svc, _ := newTestService(t)
	planSimple(t, svc)
	call(t, NewSubmitTool(svc).Handle, map[string]interface{}{})

	if r := call(t, NewRejectTool(svc).Handle, map[string]interface{}{}); !isErrorResult(r) {
		t.Error("reject without a reason should be a tool error")
	}

	r := call(t, NewRejectTool(svc).Handle, map[string]interface{}{"reason": "scope is still vague"})
	if isErrorResult(r) {
		t.Fatalf("reject failed: %s", getResultText(r))
	}

	r = call(t, NewApproveTool(svc).Handle, map[string]interface{}{})
	if !isErrorResult(r) {
		t.Error("a rejected phase must not be approvable")
	}

	r = call(t, NewRejectTool(svc).Handle, map[string]interface{}{"reopen": true})
	if isErrorResult(r) {
		t.Fatalf("reopen failed: %s", getResultText(r))
	}
	snap, err := svc.Status(context.Background(), "make-it-nicer")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got := snap.Project.Phase("clarify").Status; got != project.PhaseInProgress {
		t.Errorf("clarify status = %q, want in_progress", got)
	}
}

// --- ArchiveTool ---

func TestArchiveTool_ArchiveAndRestore(t *testing.T) {
	svc, _ := newTestService(t)
	planSimple(t, svc)

	r := call(t, NewArchiveTool(svc).Handle, map[string]interface{}{"project": "make-it-nicer"})
	if isErrorResult(r) {
		t.Fatalf("archive failed: %s", getResultText(r))
	}
	if r := call(t, NewArchiveTool(svc).Handle, map[string]interface{}{"project": "make-it-nicer"}); !isErrorResult(r) {
		t.Error("archiving twice should be a tool error")
	}
	if r := call(t, NewStatusTool(svc).Handle, map[string]interface{}{}); !isErrorResult(r) {
		t.Error("an archived project is not active")
	}

	r = call(t, NewArchiveTool(svc).Handle, map[string]interface{}{"project": "make-it-nicer", "restore": true})
	if isErrorResult(r) {
		t.Fatalf("restore failed: %s", getResultText(r))
	}
	if !strings.Contains(getResultText(r), "in_progress") {
		t.Errorf("restore should report the previous status: %s", getResultText(r))
	}
}

func TestArchiveTool_RequiresProject(t *testing.T) {
	svc, _ := newTestService(t)
	if r := call(t, NewArchiveTool(svc).Handle, map[string]interface{}{}); !isErrorResult(r) {
		t.Error("missing project should be a tool error")
	}
}

// --- helpers ---

func TestStringsArg(t *testing.T) {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]interface{}{
		"list":  []interface{}{"a", " b ", "", 3},
		"flat":  "x, y,,z",
		"other": 7.0,
	}
	if got := strings.Join(stringsArg(req, "list"), "|"); got != "a|b" {
		t.Errorf("list = %q", got)
	}
	if got := strings.Join(stringsArg(req, "flat"), "|"); got != "x|y|z" {
		t.Errorf("flat = %q", got)
	}
	if got := stringsArg(req, "other"); got != nil {
		t.Errorf("other = %v, want nil", got)
	}
	if got := intArg(req, "other", 0); got != 7 {
		t.Errorf("intArg = %d, want 7", got)
	}
}
