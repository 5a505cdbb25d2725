package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-rag/internal/auth"
	"github.com/sha1n/relic-rag/internal/chat"
)

// Answerer streams answers to chat requests.
type Answerer interface {
	StreamAnswer(ctx context.Context, req chat.Request) *chat.AnswerStream
}

// AskArgument defines ask parameters.
type AskArgument struct {
	Query          string `json:"query" jsonschema_description:"Question to answer from the knowledge base"`
	Role           string `json:"role,omitempty" jsonschema_description:"Role whose documents may be used; authenticated connections use their own role"`
	User           string `json:"user,omitempty" jsonschema_description:"User the conversation belongs to; authenticated connections use their own subject"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema_description:"Conversation to continue; a new one is started when omitted"`
}

// AskHandler handles the ask MCP tool.
type AskHandler struct {
	answerer Answerer
	caller   caller
}

// NewAskHandler creates a new ask handler. A non-nil bound identity fixes
// both the role and the conversation owner.
func NewAskHandler(answerer Answerer, bound *auth.Identity) *AskHandler {
	return &AskHandler{
		answerer: answerer,
		caller:   caller{id: bound},
	}
}

// Handle answers the question and returns the full answer text.
func (h *AskHandler) Handle(ctx context.Context, req *mcp.CallToolRequest, args AskArgument) (*mcp.CallToolResult, any, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}
	role, denied := h.caller.role(args.Role)
	if denied != nil {
		return denied, nil, nil
	}
	user, denied := h.caller.subject(args.User)
	if denied != nil {
		return denied, nil, nil
	}

	conversationID := strings.TrimSpace(args.ConversationID)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	stream := h.answerer.StreamAnswer(ctx, chat.Request{
		Query:          query,
		Subject:        user,
		Role:           role,
		ConversationID: conversationID,
	})
	answer, err := stream.Answer()
	if err != nil {
		slog.Error("Answer generation failed", "user", user, "conversation", conversationID, "error", err)
		return errorResult(answer), nil, nil
	}

	var sb strings.Builder
	sb.WriteString(answer)
	sb.WriteString(fmt.Sprintf("\n\n---\nConversation: %s\n", conversationID))
	if stream.Grounded() {
		sb.WriteString("Sources:\n")
		for _, src := range stream.Sources() {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n", src.Title, src.PageID))
		}
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *AskHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the company knowledge base documents the given role may read, continuing the user's conversation",
	}
}

// RegisterAskTool registers the ask tool with an MCP server.
func RegisterAskTool(server *mcp.Server, answerer Answerer, bound *auth.Identity) {
	handler := NewAskHandler(answerer, bound)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
