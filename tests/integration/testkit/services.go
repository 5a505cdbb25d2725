package testkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"

	"github.com/alicebob/miniredis/v2"
)

// Property names published by the services in this package.
const (
	PropCorpusDir  = "corpus_dir"
	PropIndexDir   = "index_dir"
	PropBackendURL = "backend_url"
	PropRedisURL   = "redis_url"
)

// CorpusService writes a Markdown corpus to a fresh directory and reserves
// a sibling directory for its index.
type CorpusService struct {
	Root  string
	Files map[string]string

	dir string
}

func (s *CorpusService) Start() (map[string]any, error) {
	dir, err := os.MkdirTemp(s.Root, "relic-rag-")
	if err != nil {
		return nil, err
	}
	s.dir = dir
	corpus := filepath.Join(dir, "corpus")
	for name, content := range s.Files {
		path := filepath.Join(corpus, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	return map[string]any{
		PropCorpusDir: corpus,
		PropIndexDir:  filepath.Join(dir, "page_index"),
	}, nil
}

func (s *CorpusService) Stop() error {
	if s.dir == "" {
		return nil
	}
	return os.RemoveAll(s.dir)
}

func (s *CorpusService) GetName() string {
	return "corpus"
}

// BackendService fakes the generation backend, streaming a fixed answer as NDJSON
// and recording the prompts it receives.
type BackendService struct {
	Fragments []string

	mu      sync.Mutex
	prompts []string
	server  *httptest.Server
}

func (s *BackendService) Start() (map[string]any, error) {
	s.server = httptest.NewServer(http.HandlerFunc(s.generate))
	return map[string]any{PropBackendURL: s.server.URL + "/api/generate"}, nil
}

func (s *BackendService) generate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.prompts = append(s.prompts, body.Prompt)
	s.mu.Unlock()

	for _, f := range s.Fragments {
		_, _ = fmt.Fprintf(w, "{\"response\":%q}\n", f)
	}
	_, _ = fmt.Fprintln(w, `{"response":"","done":true}`)
}

// Prompts returns the prompts received so far.
func (s *BackendService) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *BackendService) Stop() error {
	if s.server != nil {
		s.server.Close()
	}
	return nil
}

func (s *BackendService) GetName() string {
	return "backend"
}

// RedisService runs an in-process redis for the redis history store.
type RedisService struct {
	server *miniredis.Miniredis
}

func (s *RedisService) Start() (map[string]any, error) {
	srv, err := miniredis.Run()
	if err != nil {
		return nil, err
	}
	s.server = srv
	return map[string]any{PropRedisURL: "redis://" + srv.Addr() + "/0"}, nil
}

// Keys lists the keys currently stored.
func (s *RedisService) Keys() []string {
	if s.server == nil {
		return nil
	}
	return s.server.Keys()
}

func (s *RedisService) Stop() error {
	if s.server != nil {
		s.server.Close()
	}
	return nil
}

func (s *RedisService) GetName() string {
	return "redis"
}
