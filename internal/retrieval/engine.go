// Package retrieval ranks indexed pages for a query on behalf of a role.
package retrieval

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sha1n/relic-rag/internal/domain"
	"github.com/sha1n/relic-rag/internal/index"
)

var (
	// ErrIndexNotFound is returned when required index artifacts are missing.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexCorrupt is returned when index artifacts cannot be decoded or are inconsistent.
	ErrIndexCorrupt = errors.New("index corrupt")
)

// Engine serves retrieval over the current snapshot of an index directory.
// Queries never block each other; Reload swaps in a new snapshot atomically.
type Engine struct {
	dir      string
	defaults Options
	snapshot atomic.Pointer[Snapshot]
}

// Open loads the artifacts in dir. The engine refuses to start without a readable index.
// opts set the defaults used by Retrieve.
func Open(dir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		dir:      dir,
		defaults: Options{TopK: DefaultTopK, ScoreThreshold: DefaultScoreThreshold}.apply(opts),
	}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewEngine wraps an already built artifact set. It has no directory to reload from.
func NewEngine(a *index.Artifacts, opts ...Option) *Engine {
	e := &Engine{
		defaults: Options{TopK: DefaultTopK, ScoreThreshold: DefaultScoreThreshold}.apply(opts),
	}
	e.snapshot.Store(NewSnapshot(a, nil))
	return e
}

// Reload reads the index directory again and replaces the current snapshot.
// On failure the previous snapshot stays in service.
func (e *Engine) Reload() error {
	if e.dir == "" {
		return errors.New("engine has no index directory")
	}

	a, manifest, err := index.ReadArtifacts(e.dir)
	if err != nil {
		switch {
		case errors.Is(err, index.ErrArtifactMissing):
			return fmt.Errorf("%w: %w", ErrIndexNotFound, err)
		case errors.Is(err, index.ErrArtifactCorrupt):
			return fmt.Errorf("%w: %w", ErrIndexCorrupt, err)
		default:
			return err
		}
	}
	if a.IDF == nil {
		slog.Warn("IDF table not found, using uniform term weights", "dir", e.dir)
	}

	snap := NewSnapshot(a, manifest)
	e.snapshot.Store(snap)

	st := snap.stats()
	slog.Info("Index loaded", "dir", e.dir, "pages", st.Pages, "terms", st.Terms, "roles", st.Roles)
	return nil
}

// Retrieve returns the pages role may read that best match query, highest score first.
// An empty result means no permitted page matched; it is not an error.
func (e *Engine) Retrieve(query, role string, opts ...Option) []domain.Result {
	return e.snapshot.Load().retrieve(query, role, e.defaults.apply(opts))
}

// Page returns a single page if role may read it.
func (e *Engine) Page(pageID, role string) (domain.Page, bool) {
	return e.snapshot.Load().page(pageID, role)
}

// Stats describes the snapshot currently in service.
func (e *Engine) Stats() Stats {
	return e.snapshot.Load().stats()
}

// Dir returns the index directory the engine reloads from.
func (e *Engine) Dir() string {
	return e.dir
}
