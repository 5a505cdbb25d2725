// Package api exposes the chat pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sha1n/relic-rag/internal/auth"
	"github.com/sha1n/relic-rag/internal/chat"
	"github.com/sha1n/relic-rag/internal/domain"
	"github.com/sha1n/relic-rag/internal/history"
)

// ConversationHeader carries the conversation id of a chat response.
const ConversationHeader = "X-Conversation-Id"

// GroundedHeader reports whether the answer was generated from retrieved documents.
const GroundedHeader = "X-Grounded"

// maxRequestBody bounds the size of a chat request body.
const maxRequestBody = 64 << 10

// Answerer streams answers to chat requests.
type Answerer interface {
	StreamAnswer(ctx context.Context, req chat.Request) *chat.AnswerStream
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ConversationResponse is the body of GET /conversations/{id}.
type ConversationResponse struct {
	ConversationID string        `json:"conversation_id"`
	Turns          []domain.Turn `json:"turns"`
}

// Handler serves the chat and conversation endpoints.
type Handler struct {
	answerer Answerer
	history  history.Store
	limiter  *SubjectLimiter
}

// Option configures a Handler.
type Option func(*Handler)

// WithLimiter applies a per-subject rate limit to POST /chat.
func WithLimiter(l *SubjectLimiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

// NewHandler creates a Handler.
func NewHandler(answerer Answerer, store history.Store, opts ...Option) *Handler {
	h := &Handler{answerer: answerer, history: store}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("GET /conversations/{id}", h.handleGetConversation)
	mux.HandleFunc("DELETE /conversations/{id}", h.handleDeleteConversation)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.limiter.Allow(id.Subject) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	var body ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	body.Query = strings.TrimSpace(body.Query)
	if body.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	body.ConversationID = strings.TrimSpace(body.ConversationID)
	if body.ConversationID == "" {
		body.ConversationID = uuid.NewString()
	}

	stream := h.answerer.StreamAnswer(r.Context(), chat.Request{
		Query:          body.Query,
		Subject:        id.Subject,
		Role:           id.Role,
		ConversationID: body.ConversationID,
	})
	defer func() { _ = stream.Close() }()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(ConversationHeader, body.ConversationID)
	w.Header().Set(GroundedHeader, strconv.FormatBool(stream.Grounded()))
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.Flush()
	for stream.Next() {
		if _, err := io.WriteString(w, stream.Fragment()); err != nil {
			slog.Debug("Client went away mid-answer", "subject", id.Subject, "conversation", body.ConversationID, "error", err)
			return
		}
		_ = rc.Flush()
	}

	if err := stream.Err(); err != nil && r.Context().Err() == nil {
		slog.Error("Answer generation failed", "subject", id.Subject, "conversation", body.ConversationID, "error", err)
	}
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := r.PathValue("id")

	turns, err := h.history.History(r.Context(), id.Subject, conversationID)
	if err != nil {
		writeStoreError(w, err, "Failed to load conversation", id.Subject, conversationID)
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ConversationResponse{ConversationID: conversationID, Turns: turns})
}

func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := r.PathValue("id")

	if err := h.history.Clear(r.Context(), id.Subject, conversationID); err != nil {
		writeStoreError(w, err, "Failed to clear conversation", id.Subject, conversationID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeStoreError(w http.ResponseWriter, err error, msg, subject, conversationID string) {
	if errors.Is(err, history.ErrInvalidKey) {
		http.Error(w, "conversation id is required", http.StatusBadRequest)
		return
	}
	slog.Error(msg, "subject", subject, "conversation", conversationID, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
