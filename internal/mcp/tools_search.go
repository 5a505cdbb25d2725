package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-rag/internal/auth"
	"github.com/sha1n/relic-rag/internal/domain"
	"github.com/sha1n/relic-rag/internal/retrieval"
)

// Searcher ranks and reads role-permitted pages.
type Searcher interface {
	Retrieve(query, role string, opts ...retrieval.Option) []domain.Result
	Page(pageID, role string) (domain.Page, bool)
}

// SearchArgument defines search parameters.
type SearchArgument struct {
	Query string `json:"query" jsonschema_description:"Search query in natural language"`
	Role  string `json:"role,omitempty" jsonschema_description:"Role whose documents may be searched (e.g., finance, engineering); authenticated connections use their own role"`
	TopK  int    `json:"top_k,omitempty" jsonschema_description:"Maximum number of results (default 5)"`
}

// SearchHandler handles the search_documents MCP tool.
type SearchHandler struct {
	searcher Searcher
	caller   caller
}

// NewSearchHandler creates a new search handler. A non-nil bound identity
// fixes the role every search runs as.
func NewSearchHandler(searcher Searcher, bound *auth.Identity) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		caller:   caller{id: bound},
	}
}

// Handle executes the search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}
	role, denied := h.caller.role(args.Role)
	if denied != nil {
		return denied, nil, nil
	}

	results := h.searcher.Retrieve(args.Query, role, retrieval.WithTopK(args.TopK))
	return formatResults(results, args.Query), nil, nil
}

// formatResults formats ranked pages for an MCP response.
func formatResults(results []domain.Result, queryStr string) *mcp.CallToolResult {
	if len(results) == 0 {
		return textResult(fmt.Sprintf("No documents found for query: %s", queryStr))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d documents for '%s':\n\n", len(results), queryStr))
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, r.Title))
		sb.WriteString(fmt.Sprintf("**Page**: %s\n", r.PageID))
		sb.WriteString(fmt.Sprintf("**Score**: %.4f\n\n", r.Score))
		sb.WriteString(r.Content)
		sb.WriteString("\n\n")
	}
	return textResult(sb.String())
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_documents",
		Description: "Search the company knowledge base for pages the given role may read, ranked by relevance",
	}
}

// RegisterSearchTool registers the search tool with an MCP server.
func RegisterSearchTool(server *mcp.Server, searcher Searcher, bound *auth.Identity) {
	handler := NewSearchHandler(searcher, bound)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	result := textResult(text)
	result.IsError = true
	return result
}
