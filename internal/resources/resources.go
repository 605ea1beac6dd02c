// Package resources implements the MCP resources for phasegate.
//
// Resources provide read-only data the host can pull in for context. They
// use phasegate:// URIs.
package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/phasegate/internal/workflow"
)

const (
	ActiveProjectURI = "phasegate://project/active"
	CatalogURI       = "phasegate://catalog"
)

// Handler serves phasegate resources.
type Handler struct {
	svc *workflow.Service
}

// NewHandler creates a resource Handler.
func NewHandler(svc *workflow.Service) *Handler {
	return &Handler{svc: svc}
}

// ActiveResource returns the resource definition for the active project.
func (h *Handler) ActiveResource() mcp.Resource {
	return mcp.NewResource(
		ActiveProjectURI,
		"Active Project Status",
		mcp.WithResourceDescription("The most recently active project: phase plan, phase statuses, current tasks and approval preview"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleActive returns the active project's status snapshot as JSON.
func (h *Handler) HandleActive(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	name, err := h.svc.Resolve(ctx, "")
	if errors.Is(err, workflow.ErrNoActiveProject) {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding active project: %w", err)
	}
	snap, err := h.svc.Status(ctx, name)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, snap)
}

// CatalogResource returns the resource definition for the phase catalog.
func (h *Handler) CatalogResource() mcp.Resource {
	return mcp.NewResource(
		CatalogURI,
		"Phase Catalog",
		mcp.WithResourceDescription("Every phase the planner can choose from, with triggers, complexity ranges and dependencies"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleCatalog returns the phase catalog as JSON.
func (h *Handler) HandleCatalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.svc.Catalog())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
