// Package chat turns a question into a streamed, history-aware answer.
package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sha1n/relic-rag/internal/domain"
	"github.com/sha1n/relic-rag/internal/history"
	"github.com/sha1n/relic-rag/internal/llm"
	"github.com/sha1n/relic-rag/internal/retrieval"
)

// Retriever finds the pages a role may read for a query.
type Retriever interface {
	Retrieve(query, role string, opts ...retrieval.Option) []domain.Result
}

// Request is one question from an authenticated user.
type Request struct {
	Query          string
	Subject        string
	Role           string
	ConversationID string
}

// Orchestrator answers questions from role-permitted documents and conversation history.
type Orchestrator struct {
	retriever Retriever
	history   history.Store
	generator llm.Generator
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(retriever Retriever, store history.Store, generator llm.Generator) *Orchestrator {
	return &Orchestrator{
		retriever: retriever,
		history:   store,
		generator: generator,
	}
}

// StreamAnswer retrieves context, renders the prompt and returns the answer as a lazy stream.
// The exchange is added to the conversation history only if the stream completes.
func (o *Orchestrator) StreamAnswer(ctx context.Context, req Request) *AnswerStream {
	results := o.retriever.Retrieve(req.Query, req.Role)

	turns, err := o.history.History(ctx, req.Subject, req.ConversationID)
	if err != nil {
		slog.Warn("Conversation history unavailable, answering without it",
			"subject", req.Subject, "conversation", req.ConversationID, "error", err)
		turns = nil
	}

	if len(results) == 0 {
		slog.Info("No internal context found, using general mode", "role", req.Role)
	} else {
		slog.Debug("Retrieved context", "role", req.Role, "documents", len(results))
	}

	prompt := RenderPrompt(req.Query, turns, results)
	return &AnswerStream{
		ctx:     ctx,
		req:     req,
		store:   o.history,
		inner:   o.generator.Stream(ctx, prompt),
		sources: results,
	}
}

// AnswerStream re-yields the generator's fragments and records the finished exchange.
// It is not safe for concurrent use.
type AnswerStream struct {
	ctx     context.Context
	req     Request
	store   history.Store
	inner   llm.FragmentStream
	sources []domain.Result

	answer  strings.Builder
	current string
	done    bool
}

// Next advances to the next fragment. When the stream ends cleanly the
// question and full answer are appended to the conversation history together.
func (s *AnswerStream) Next() bool {
	if s.done {
		return false
	}
	if s.inner.Next() {
		s.current = s.inner.Fragment()
		s.answer.WriteString(s.current)
		return true
	}

	s.done = true
	s.current = ""
	if s.inner.Err() == nil && s.ctx.Err() == nil {
		s.persist()
	}
	_ = s.inner.Close()
	return false
}

// Fragment returns the current fragment.
func (s *AnswerStream) Fragment() string {
	return s.current
}

// Err reports why generation ended early, if it did.
func (s *AnswerStream) Err() error {
	return s.inner.Err()
}

// Close abandons the stream. Nothing is persisted for an abandoned answer.
func (s *AnswerStream) Close() error {
	s.done = true
	return s.inner.Close()
}

// Grounded reports whether the answer was generated from retrieved documents.
func (s *AnswerStream) Grounded() bool {
	return len(s.sources) > 0
}

// Sources returns the documents given to the model.
func (s *AnswerStream) Sources() []domain.Result {
	return s.sources
}

// Answer drains the stream and returns the concatenated text.
func (s *AnswerStream) Answer() (string, error) {
	for s.Next() {
	}
	return s.answer.String(), s.Err()
}

func (s *AnswerStream) persist() {
	err := s.store.Append(s.ctx, s.req.Subject, s.req.ConversationID,
		domain.UserTurn(s.req.Query),
		domain.AssistantTurn(s.answer.String()),
	)
	if err != nil {
		slog.Error("Failed to save conversation turn",
			"subject", s.req.Subject, "conversation", s.req.ConversationID, "error", err)
	}
}
