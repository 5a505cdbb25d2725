package mcp

import (
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-rag/internal/auth"
	"github.com/sha1n/relic-rag/internal/domain"
)

// caller resolves the role and subject a tool call acts as.
// A bound caller carries the authenticated identity of an HTTP connection and
// arguments may only repeat it. An unbound caller (stdio) takes both from the arguments.
type caller struct {
	id *auth.Identity
}

func (c caller) role(arg string) (string, *mcp.CallToolResult) {
	arg = strings.TrimSpace(arg)
	if c.id == nil {
		if arg == "" {
			return "", errorResult("Role cannot be empty")
		}
		return arg, nil
	}
	if arg != "" && domain.FoldRole(arg) != domain.FoldRole(c.id.Role) {
		return "", errorResult(fmt.Sprintf("Role not permitted: %s", arg))
	}
	return c.id.Role, nil
}

func (c caller) subject(arg string) (string, *mcp.CallToolResult) {
	arg = strings.TrimSpace(arg)
	if c.id == nil {
		if arg == "" {
			return "", errorResult("User cannot be empty")
		}
		return arg, nil
	}
	if arg != "" && arg != c.id.Subject {
		return "", errorResult(fmt.Sprintf("User not permitted: %s", arg))
	}
	return c.id.Subject, nil
}
