// Package prompts implements the MCP prompts for phasegate.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to run a specific sequence of tools. Unlike tools, which
// the AI calls, prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the phasegate-start MCP prompt.
// It guides the AI from a description of the work to a planned project.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("phasegate-start",
		mcp.WithPromptDescription(
			"Plan a new piece of work. Scores the description, shows the phases it "+
				"needs and creates the project once you agree.",
		),
		mcp.WithArgument("description",
			mcp.ArgumentDescription("What you want to build or change"),
		),
		mcp.WithArgument("mode",
			mcp.ArgumentDescription(
				"Plan mode: 'dynamic' (phases can be added at checkpoints) or 'static' (the plan never changes). Default: dynamic",
			),
		),
	)
}

// Handle processes the phasegate-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	description := ""
	mode := "dynamic"
	if args := req.Params.Arguments; args != nil {
		if d, ok := args["description"]; ok {
			description = d
		}
		if m, ok := args["mode"]; ok && m != "" {
			mode = m
		}
	}

	var first string
	if description == "" {
		first = "1. Ask me to describe the work in a few sentences: what changes, who it affects, what could go wrong\n"
	} else {
		first = fmt.Sprintf("1. The work is: %q\n", description)
	}

	return &mcp.GetPromptResult{
		Description: "Plan a new phasegate project",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to plan a new piece of work with phasegate in %s mode.\n\n"+
						"Please:\n"+
						"%s"+
						"2. Run `phase_score` on the description and show me the signals, complexity and proposed phases\n"+
						"3. If the score says it needs clarification, ask me the questions that would sharpen the scope before planning\n"+
						"4. When I confirm, run `phase_plan` with the description and mode='%s'\n"+
						"5. Explain the first phase and how to name its tasks (`<phase>: ...`) so the approval checks can find them",
					mode, first, mode,
				)),
			},
		},
	}, nil
}
