package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the phasegate-status MCP prompt.
// It instructs the AI to read and present the active project's state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("phasegate-status",
		mcp.WithPromptDescription(
			"Check where the active project stands: phase progress, the current "+
				"phase's tasks, anything blocking approval and what to do next.",
		),
	)
}

// Handle processes the phasegate-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "phasegate Project Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `phase_status` to check my active project.\n\n" +
						"Then:\n" +
						"1. Show me the phase plan and where we are in it\n" +
						"2. List every violation that would block approving the current phase, each on its own line with its override\n" +
						"3. Tell me exactly what I should do next (finish tasks, record a sign-off, submit or approve)\n" +
						"4. Never suggest an override unless I ask for one",
				),
			},
		},
	}, nil
}
