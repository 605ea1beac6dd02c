// Package server wires all components and creates the MCP server instance.
//
// This is the composition root: it creates the concrete backends, store,
// catalog and task board from the configuration and injects them into the
// workflow service that the tools, prompts and resources depend on. No
// business logic lives here, only wiring.
package server

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HendryAvila/phasegate/internal/config"
	"github.com/HendryAvila/phasegate/internal/prompts"
	"github.com/HendryAvila/phasegate/internal/resources"
	"github.com/HendryAvila/phasegate/internal/tools"
	"github.com/HendryAvila/phasegate/internal/workflow"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools, prompts and
// resources registered.
//
// The returned cleanup function closes the project store and must be
// called on shutdown (typically via defer). It is always non-nil.
func New(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*server.MCPServer, func(), error) {
	svc, cleanup, err := NewService(cfg, logger, reg)
	if err != nil {
		return nil, noop, err
	}

	s := server.NewMCPServer(
		"phasegate",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)
	register(s, svc)
	return s, cleanup, nil
}

// register adds every tool, prompt and resource to s.
func register(s *server.MCPServer, svc *workflow.Service) {
	// --- Tools ---

	scoreTool := tools.NewScoreTool(svc)
	s.AddTool(scoreTool.Definition(), scoreTool.Handle)

	planTool := tools.NewPlanTool(svc)
	s.AddTool(planTool.Definition(), planTool.Handle)

	statusTool := tools.NewStatusTool(svc)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	submitTool := tools.NewSubmitTool(svc)
	s.AddTool(submitTool.Definition(), submitTool.Handle)

	signoffTool := tools.NewSignoffTool(svc)
	s.AddTool(signoffTool.Definition(), signoffTool.Handle)

	approveTool := tools.NewApproveTool(svc)
	s.AddTool(approveTool.Definition(), approveTool.Handle)

	rejectTool := tools.NewRejectTool(svc)
	s.AddTool(rejectTool.Definition(), rejectTool.Handle)

	archiveTool := tools.NewArchiveTool(svc)
	s.AddTool(archiveTool.Definition(), archiveTool.Handle)

	// --- Prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Resources ---

	resourceHandler := resources.NewHandler(svc)
	s.AddResource(resourceHandler.ActiveResource(), resourceHandler.HandleActive)
	s.AddResource(resourceHandler.CatalogResource(), resourceHandler.HandleCatalog)
}

// noop is a cleanup function that does nothing.
func noop() {}

// serverInstructions returns the system-level instructions the host sees
// when it connects.
func serverInstructions() string {
	return `# phasegate: phase-gated project workflow

phasegate turns a description of work into an ordered plan of phases and
gates each phase behind an approval. You do the work; phasegate decides
whether a phase is really done.

## Flow

1. ` + "`phase_score`" + ` (optional) previews signals, complexity and the plan.
2. ` + "`phase_plan`" + ` creates the project. Its first phase starts in progress.
3. Work the phase. Put tasks on the task board with subjects prefixed by the
   phase name, e.g. ` + "`build: wire the cache`" + `. Tasks without a prefix do
   not count toward any phase.
4. ` + "`phase_submit`" + ` marks the phase ready and previews the checks.
5. ` + "`phase_signoff`" + ` records a reviewer verdict.
6. ` + "`phase_approve`" + ` re-runs the checks and, if they pass, advances.

Use ` + "`phase_status`" + ` at any time. ` + "`phase_reject`" + ` sends a phase back with a
reason; reopen it with ` + "`reopen: true`" + ` when the issues are addressed.

## Approval Checks

An approval is blocked, and nothing is written, when any of these fail:

- **stale**: a task has been in progress longer than the staleness threshold
- **min_count**: the phase has fewer tasks than its minimum
- **terminal_state**: a phase task is neither completed nor blocked
- **signoff**: no approved or conditional sign-off is recorded

Every violation is reported on its own, with the override that bypasses it.

## Rules

- NEVER pass an override the user did not ask for. Overrides are recorded
  on the phase permanently.
- A conditional sign-off must be acknowledged with
  ` + "`acknowledge_conditions: true`" + `; read the conditions to the user first.
- If a call reports that the phase state changed, another actor got there
  first. Run ` + "`phase_status`" + ` and decide again; do not blindly retry.
- If the score asks for clarification, ask the user before planning.

## Dynamic Plans

In dynamic mode, approving a checkpoint phase re-scores the description
together with the findings passed to ` + "`phase_approve`" + `. New phases may be
inserted after the approved phase. Approved phases are never moved or removed.
`
}
