// Package ollama streams completions from an Ollama /api/generate endpoint.
package ollama

import (
	"context"
	"net/http"
	"time"

	"github.com/sha1n/relic-rag/internal/llm"
)

const (
	DefaultURL           = "http://localhost:11434/api/generate"
	DefaultModel         = "llama3"
	DefaultContextWindow = 8192
	DefaultTimeout       = 120 * time.Second
)

// Config configures a Client. Zero values fall back to the defaults above.
type Config struct {
	URL           string
	Model         string
	ContextWindow int
	// Timeout bounds the wait for response headers. The body may stream for longer.
	Timeout time.Duration
}

// Client talks to one Ollama model.
type Client struct {
	url           string
	model         string
	contextWindow int
	http          *http.Client
}

var _ llm.Generator = (*Client)(nil)

// NewClient creates a client.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	return &Client{
		url:           cfg.URL,
		model:         cfg.Model,
		contextWindow: cfg.ContextWindow,
		http:          &http.Client{Transport: transport},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumCtx int `json:"num_ctx"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Stream returns a lazy stream for prompt. No request is sent until the first Next.
func (c *Client) Stream(ctx context.Context, prompt string) llm.FragmentStream {
	return &stream{ctx: ctx, client: c, prompt: prompt}
}
