package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-rag/internal/auth"
)

// ReadArgument defines read parameters.
type ReadArgument struct {
	PageID string `json:"page_id" jsonschema_description:"Page id as returned by search_documents"`
	Role   string `json:"role,omitempty" jsonschema_description:"Role reading the page; authenticated connections use their own role"`
}

// ReadHandler handles the read_page MCP tool.
type ReadHandler struct {
	searcher Searcher
	caller   caller
}

// NewReadHandler creates a new read handler.
func NewReadHandler(searcher Searcher, bound *auth.Identity) *ReadHandler {
	return &ReadHandler{
		searcher: searcher,
		caller:   caller{id: bound},
	}
}

// Handle returns a page's content if the role may read it.
// Unknown pages and forbidden pages are reported the same way.
func (h *ReadHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args ReadArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.PageID) == "" {
		return errorResult("Page id cannot be empty"), nil, nil
	}
	role, denied := h.caller.role(args.Role)
	if denied != nil {
		return denied, nil, nil
	}

	page, ok := h.searcher.Page(args.PageID, role)
	if !ok {
		return errorResult(fmt.Sprintf("Page not found: %s", args.PageID)), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", page.Title))
	if page.Department != "" {
		sb.WriteString(fmt.Sprintf("**Department**: %s\n", page.Department))
	}
	if page.DocumentType != "" {
		sb.WriteString(fmt.Sprintf("**Type**: %s\n", page.DocumentType))
	}
	if page.LastUpdated != "" {
		sb.WriteString(fmt.Sprintf("**Last updated**: %s\n", page.LastUpdated))
	}
	sb.WriteString(fmt.Sprintf("**Source**: %s\n\n", page.SourceFile))
	sb.WriteString(page.Content)
	sb.WriteString("\n")

	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ReadHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "read_page",
		Description: "Read the full content of a knowledge base page the given role may access",
	}
}

// RegisterReadTool registers the read tool with an MCP server.
func RegisterReadTool(server *mcp.Server, searcher Searcher, bound *auth.Identity) {
	handler := NewReadHandler(searcher, bound)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
