package chat

import (
	"strings"
	"text/template"

	"github.com/sha1n/relic-rag/internal/domain"
)

// InsufficientContext is the sentence the model must reply with when the
// retrieved documents do not answer the question.
const InsufficientContext = "I don't have enough information in the company knowledge base."

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

var groundedPrompt = template.Must(template.New("grounded").Funcs(funcs).Parse(
	`You are an internal company knowledge assistant.
Answer ONLY using the company context below. Be concise and professional.
Do NOT add outside knowledge, even if you know the answer.
If the user is greeting you or making small talk, respond naturally and politely.
If the answer is not clearly found in the company context, reply exactly:
"{{.Fallback}}"

Conversation history:
{{range .History}}{{.Role}}: {{.Content}}
{{end}}
Company context:
{{range $i, $d := .Documents}}
[Document {{inc $i}} | Score: {{printf "%.2f" $d.Score}}] {{$d.Title}}
{{$d.Content}}
{{end}}
User message:
{{.Query}}

Answer:
`))

var generalPrompt = template.Must(template.New("general").Parse(
	`You are a friendly, helpful assistant for the company.
No internal company documents were found for this message, so no internal data is available.
If the user is greeting you or making small talk, respond naturally and politely.
If they ask a question, answer from general knowledge and say clearly that the answer
is general knowledge and not taken from company documents.

Conversation history:
{{range .History}}{{.Role}}: {{.Content}}
{{end}}
User message:
{{.Query}}

Answer:
`))

type promptData struct {
	Query     string
	History   []domain.Turn
	Documents []domain.Result
	Fallback  string
}

// RenderPrompt builds the generation prompt. With no documents the general
// template is used; otherwise the model is restricted to the documents.
func RenderPrompt(query string, history []domain.Turn, documents []domain.Result) string {
	data := promptData{
		Query:     query,
		History:   history,
		Documents: documents,
		Fallback:  InsufficientContext,
	}

	tmpl := groundedPrompt
	if len(documents) == 0 {
		tmpl = generalPrompt
	}

	var sb strings.Builder
	// Executing a parsed template over plain values only fails on writer errors,
	// which strings.Builder never returns.
	_ = tmpl.Execute(&sb, data)
	return sb.String()
}
