package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-rag/internal/auth"
	"github.com/sha1n/relic-rag/internal/chat"
	"github.com/sha1n/relic-rag/internal/domain"
	"github.com/sha1n/relic-rag/internal/history"
	"github.com/sha1n/relic-rag/internal/index"
	"github.com/sha1n/relic-rag/internal/llm"
	"github.com/sha1n/relic-rag/internal/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine() *retrieval.Engine {
	a := index.NewArtifacts()
	a.AddPage("finance_q3_sec_0",
		domain.Page{
			Title: "Q3 Report", Department: "Finance", DocumentType: "report", LastUpdated: "2024-10-01",
			RoleAccess: []string{"finance"}, SourceFile: "q3.md", Content: "Revenue grew 12% in Q3.",
		},
		map[string]int{"revenue": 1, "grew": 1})
	a.AddPage("finance_q2_sec_0",
		domain.Page{Title: "Q2 Report", RoleAccess: []string{"finance"}, SourceFile: "q2.md", Content: "Revenue was flat in Q2. Revenue targets missed."},
		map[string]int{"revenue": 2, "flat": 1, "targets": 1, "missed": 1})
	a.AddPage("brand_sec_0",
		domain.Page{Title: "Brand Guide", RoleAccess: []string{"marketing"}, SourceFile: "brand.md", Content: "Use the blue logo."},
		map[string]int{"blue": 1, "logo": 1})
	a.Finalize()
	return retrieval.NewEngine(a)
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	tc, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestSearchHandler_ReturnsRankedResults(t *testing.T) {
	handler := NewSearchHandler(testEngine(), nil)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "revenue", Role: "Finance"})
	require.NoError(t, err)
	require.False(t, result.IsError)

	out := text(t, result)
	assert.Contains(t, out, "Found 2 documents for 'revenue'")
	assert.Less(t, strings.Index(out, "Q2 Report"), strings.Index(out, "Q3 Report"), "higher tf ranks first")
	assert.Contains(t, out, "**Page**: finance_q3_sec_0")
	assert.NotContains(t, out, "Brand Guide")
}

func TestSearchHandler_TopK(t *testing.T) {
	handler := NewSearchHandler(testEngine(), nil)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "revenue", Role: "finance", TopK: 1})
	require.NoError(t, err)

	out := text(t, result)
	assert.Contains(t, out, "Found 1 documents")
	assert.Contains(t, out, "Q2 Report")
}

func TestSearchHandler_RoleWithoutAccess(t *testing.T) {
	handler := NewSearchHandler(testEngine(), nil)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "revenue", Role: "marketing"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "No documents found for query: revenue", text(t, result))
}

func TestSearchHandler_Validation(t *testing.T) {
	handler := NewSearchHandler(testEngine(), nil)

	tests := []struct {
		name string
		args SearchArgument
		want string
	}{
		{"empty query", SearchArgument{Query: "  ", Role: "finance"}, "Query cannot be empty"},
		{"empty role", SearchArgument{Query: "revenue"}, "Role cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, tt.args)
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.want, text(t, result))
		})
	}
}

func TestReadHandler_ReturnsPage(t *testing.T) {
	handler := NewReadHandler(testEngine(), nil)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ReadArgument{PageID: "finance_q3_sec_0", Role: "finance"})
	require.NoError(t, err)
	require.False(t, result.IsError)

	out := text(t, result)
	assert.True(t, strings.HasPrefix(out, "# Q3 Report\n"))
	assert.Contains(t, out, "**Department**: Finance")
	assert.Contains(t, out, "**Last updated**: 2024-10-01")
	assert.Contains(t, out, "**Source**: q3.md")
	assert.Contains(t, out, "Revenue grew 12% in Q3.")
}

func TestReadHandler_ForbiddenLooksLikeMissing(t *testing.T) {
	handler := NewReadHandler(testEngine(), nil)

	forbidden, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ReadArgument{PageID: "finance_q3_sec_0", Role: "marketing"})
	require.NoError(t, err)
	missing, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, ReadArgument{PageID: "nope", Role: "marketing"})
	require.NoError(t, err)

	assert.True(t, forbidden.IsError)
	assert.True(t, missing.IsError)
	assert.Equal(t, "Page not found: finance_q3_sec_0", text(t, forbidden))
	assert.NotContains(t, text(t, forbidden), "Revenue")
}

func TestReadHandler_Validation(t *testing.T) {
	handler := NewReadHandler(testEngine(), nil)

	for _, args := range []ReadArgument{{Role: "finance"}, {PageID: "finance_q3_sec_0"}} {
		result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, args)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	}
}

type replayStream struct {
	fragments []string
	err       error
	pos       int
	failed    bool
}

func (s *replayStream) Next() bool {
	if s.pos < len(s.fragments) {
		s.pos++
		return true
	}
	if s.err != nil && !s.failed {
		s.failed = true
		return true
	}
	return false
}

func (s *replayStream) Fragment() string {
	if s.failed {
		return llm.FailureMessage
	}
	return s.fragments[s.pos-1]
}

func (s *replayStream) Err() error {
	if s.failed {
		return s.err
	}
	return nil
}

func (s *replayStream) Close() error { return nil }

type replayGenerator struct {
	fragments []string
	err       error
}

func (g replayGenerator) Stream(context.Context, string) llm.FragmentStream {
	return &replayStream{fragments: g.fragments, err: g.err}
}

func TestAskHandler_AnswersAndPersists(t *testing.T) {
	store := history.NewMemoryStore(10, 0)
	handler := NewAskHandler(chat.NewOrchestrator(testEngine(), store, replayGenerator{fragments: []string{"Revenue ", "grew 12%."}}), nil)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, AskArgument{
		Query: "How did revenue do?", Role: "finance", User: "alice", ConversationID: "c1",
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	out := text(t, result)
	assert.True(t, strings.HasPrefix(out, "Revenue grew 12%."))
	assert.Contains(t, out, "Conversation: c1")
	assert.Contains(t, out, "- Q3 Report (finance_q3_sec_0)")

	turns, err := store.History(context.Background(), "alice", "c1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Turn{domain.UserTurn("How did revenue do?"), domain.AssistantTurn("Revenue grew 12%.")}, turns)
}

func TestAskHandler_StartsConversation(t *testing.T) {
	handler := NewAskHandler(chat.NewOrchestrator(testEngine(), history.NewMemoryStore(10, 0), replayGenerator{fragments: []string{"Hi!"}}), nil)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, AskArgument{Query: "hello", Role: "finance", User: "alice"})
	require.NoError(t, err)

	out := text(t, result)
	assert.Contains(t, out, "Conversation: ")
	assert.NotContains(t, out, "Sources:")
}

func TestAskHandler_GenerationFailure(t *testing.T) {
	store := history.NewMemoryStore(10, 0)
	handler := NewAskHandler(chat.NewOrchestrator(testEngine(), store, replayGenerator{err: errors.New("connection refused")}), nil)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, AskArgument{
		Query: "revenue", Role: "finance", User: "alice", ConversationID: "c1",
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, llm.FailureMessage, text(t, result))

	turns, _ := store.History(context.Background(), "alice", "c1")
	assert.Empty(t, turns)
}

func TestAskHandler_Validation(t *testing.T) {
	handler := NewAskHandler(nil, nil)

	for _, args := range []AskArgument{
		{Role: "finance", User: "alice"},
		{Query: "q", User: "alice"},
		{Query: "q", Role: "finance"},
	} {
		result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, args)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	}
}

func TestHandlers_BoundCallerUsesItsOwnRole(t *testing.T) {
	mallory := &auth.Identity{Subject: "mallory", Role: "marketing"}

	search := NewSearchHandler(testEngine(), mallory)
	result, _, err := search.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "revenue"})
	require.NoError(t, err)
	assert.Equal(t, "No documents found for query: revenue", text(t, result))

	result, _, err = search.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "logo", Role: "Marketing"})
	require.NoError(t, err)
	assert.Contains(t, text(t, result), "Brand Guide", "repeating the bound role is allowed")

	read := NewReadHandler(testEngine(), mallory)
	result, _, err = read.Handle(context.Background(), &mcp.CallToolRequest{}, ReadArgument{PageID: "finance_q3_sec_0"})
	require.NoError(t, err)
	assert.Equal(t, "Page not found: finance_q3_sec_0", text(t, result))
}

func TestHandlers_BoundCallerRejectsOtherIdentities(t *testing.T) {
	mallory := &auth.Identity{Subject: "mallory", Role: "marketing"}
	store := history.NewMemoryStore(10, 0)
	require.NoError(t, store.Append(context.Background(), "alice", "c1", domain.UserTurn("q"), domain.AssistantTurn("a")))

	search := NewSearchHandler(testEngine(), mallory)
	read := NewReadHandler(testEngine(), mallory)
	ask := NewAskHandler(chat.NewOrchestrator(testEngine(), store, replayGenerator{fragments: []string{"ok"}}), mallory)

	tests := []struct {
		name string
		call func() (*mcp.CallToolResult, any, error)
		want string
	}{
		{"search as finance", func() (*mcp.CallToolResult, any, error) {
			return search.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "revenue", Role: "finance"})
		}, "Role not permitted: finance"},
		{"read as finance", func() (*mcp.CallToolResult, any, error) {
			return read.Handle(context.Background(), &mcp.CallToolRequest{}, ReadArgument{PageID: "finance_q3_sec_0", Role: "finance"})
		}, "Role not permitted: finance"},
		{"ask as finance", func() (*mcp.CallToolResult, any, error) {
			return ask.Handle(context.Background(), &mcp.CallToolRequest{}, AskArgument{Query: "revenue", Role: "finance"})
		}, "Role not permitted: finance"},
		{"ask as another user", func() (*mcp.CallToolResult, any, error) {
			return ask.Handle(context.Background(), &mcp.CallToolRequest{}, AskArgument{Query: "more?", User: "alice", ConversationID: "c1"})
		}, "User not permitted: alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := tt.call()
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.want, text(t, result))
		})
	}

	turns, err := store.History(context.Background(), "alice", "c1")
	require.NoError(t, err)
	assert.Len(t, turns, 2, "another subject's conversation is untouched")
}

func TestAskHandler_BoundCallerOwnsConversation(t *testing.T) {
	store := history.NewMemoryStore(10, 0)
	bob := &auth.Identity{Subject: "bob", Role: "finance"}
	handler := NewAskHandler(chat.NewOrchestrator(testEngine(), store, replayGenerator{fragments: []string{"Up 12%."}}), bob)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, AskArgument{Query: "revenue", ConversationID: "c1"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, text(t, result), "- Q3 Report (finance_q3_sec_0)")

	turns, err := store.History(context.Background(), "bob", "c1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}
