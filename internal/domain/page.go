package domain

import "slices"

// Page is one retrievable section of a corpus document.
// It is the value stored in the content store, keyed by its page ID.
type Page struct {
	// Title is the document title from the front matter.
	Title string `json:"title"`

	// Department owning the source document.
	Department string `json:"department"`

	// Sensitivity label, e.g. "internal" or "confidential".
	Sensitivity string `json:"sensitivity"`

	// DocumentType, e.g. "policy" or "report".
	DocumentType string `json:"document_type"`

	// LastUpdated is kept verbatim as written in the front matter.
	LastUpdated string `json:"last_updated,omitempty"`

	// Version is kept verbatim as written in the front matter.
	Version string `json:"version,omitempty"`

	// RoleAccess lists the case-folded roles allowed to read this page, sorted.
	RoleAccess []string `json:"role_access"`

	// SourceFile is the base name of the Markdown file the section came from.
	SourceFile string `json:"source_file"`

	// Content is the trimmed section text.
	Content string `json:"content"`
}

// AllowsRole reports whether role (already case-folded) may read the page.
func (p Page) AllowsRole(role string) bool {
	return slices.Contains(p.RoleAccess, role)
}

// Posting records how often a term occurs in one page.
type Posting struct {
	PageID string `json:"page_id"`
	TF     int    `json:"tf"`
}

// Result is a ranked retrieval hit handed to the prompt orchestrator.
type Result struct {
	PageID  string  `json:"page_id"`
	Score   float64 `json:"score"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
}

// Conversation roles recorded in a Turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserTurn returns a turn authored by the user.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn returns a turn authored by the assistant.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}
