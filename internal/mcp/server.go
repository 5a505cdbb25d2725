package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-rag/internal/auth"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name     string
	Version  string
	Searcher Searcher // enables search_documents and read_page when set
	Answerer Answerer // enables ask when set

	// Caller binds every tool to an authenticated identity. When nil the
	// tools act as the role and user named in their arguments (stdio).
	Caller *auth.Identity
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Searcher != nil {
		RegisterSearchTool(s, cfg.Searcher, cfg.Caller)
		RegisterReadTool(s, cfg.Searcher, cfg.Caller)
	}
	if cfg.Answerer != nil {
		RegisterAskTool(s, cfg.Answerer, cfg.Caller)
	}

	return s
}
