package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sha1n/relic-rag/internal/llm"
)

const maxLineSize = 1 << 20

// stream reads the NDJSON body one line per Next call, so nothing is buffered
// beyond the line being decoded.
type stream struct {
	ctx    context.Context
	client *Client
	prompt string

	started  bool
	finished bool // no more fragments after the current one
	body     io.ReadCloser
	scanner  *bufio.Scanner
	current  string
	err      error
}

func (s *stream) Next() bool {
	if s.finished {
		s.current = ""
		return false
	}
	if !s.started {
		s.started = true
		if err := s.open(); err != nil {
			return s.fail(err)
		}
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return s.fail(fmt.Errorf("malformed response line: %w", err))
		}
		if chunk.Error != "" {
			return s.fail(fmt.Errorf("backend error: %s", chunk.Error))
		}
		if chunk.Done {
			s.end()
		}
		if chunk.Response != "" {
			s.current = chunk.Response
			return true
		}
		if s.finished {
			return false
		}
	}

	if err := s.scanner.Err(); err != nil {
		return s.fail(fmt.Errorf("reading response: %w", err))
	}
	// the backend closing the body is a normal end of stream
	s.end()
	s.current = ""
	return false
}

func (s *stream) Fragment() string {
	return s.current
}

func (s *stream) Err() error {
	return s.err
}

func (s *stream) Close() error {
	s.started = true
	s.finished = true
	return s.closeBody()
}

func (s *stream) open() error {
	payload, err := json.Marshal(generateRequest{
		Model:   s.client.model,
		Prompt:  s.prompt,
		Stream:  true,
		Options: generateOptions{NumCtx: s.client.contextWindow},
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.client.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := s.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("generation request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return fmt.Errorf("generation backend returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	s.body = resp.Body
	s.scanner = bufio.NewScanner(resp.Body)
	s.scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return nil
}

// fail ends the stream. Unless the caller canceled, it yields FailureMessage as the final fragment.
func (s *stream) fail(err error) bool {
	s.end()

	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.err = ctxErr
		s.current = ""
		return false
	}

	s.err = err
	slog.Error("Generation stream failed", "model", s.client.model, "error", err)
	s.current = llm.FailureMessage
	return true
}

func (s *stream) end() {
	s.finished = true
	_ = s.closeBody()
}

func (s *stream) closeBody() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}
