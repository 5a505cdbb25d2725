package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sha1n/relic-rag/internal/domain"
	"github.com/sha1n/relic-rag/internal/tokenizer"
)

// BuildStats summarizes one build.
type BuildStats struct {
	FilesSeen    int
	FilesSkipped int
	Pages        int
	Terms        int
	Roles        int
}

// Builder turns a corpus directory of Markdown files into index artifacts.
type Builder struct {
	corpusDir string
	indexDir  string
	filter    *FileFilter
	lockWait  time.Duration
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithFilter replaces the default corpus filter.
func WithFilter(f *FileFilter) BuilderOption {
	return func(b *Builder) {
		b.filter = f
	}
}

// WithLockWait makes Build wait up to d for a concurrent build to finish
// instead of failing immediately.
func WithLockWait(d time.Duration) BuilderOption {
	return func(b *Builder) {
		b.lockWait = d
	}
}

// NewBuilder creates a builder reading corpusDir and writing into indexDir.
func NewBuilder(corpusDir, indexDir string, opts ...BuilderOption) *Builder {
	b := &Builder{
		corpusDir: corpusDir,
		indexDir:  indexDir,
		filter:    NewFileFilter(DefaultMaxFileSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build compiles the corpus and replaces the artifacts in the index directory.
// Only one build may run per index directory; a concurrent one gets ErrBuildInProgress.
func (b *Builder) Build(ctx context.Context) (stats *BuildStats, err error) {
	lock := NewBuildLock(filepath.Join(b.indexDir, LockFile))
	if b.lockWait > 0 {
		err = lock.Acquire(ctx, b.lockWait)
	} else {
		err = lock.TryAcquire()
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	start := time.Now()
	artifacts, stats, err := b.Compile(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := artifacts.Write(b.indexDir); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}

	slog.Info("Index build completed",
		"pages", stats.Pages,
		"terms", stats.Terms,
		"roles", stats.Roles,
		"files", stats.FilesSeen,
		"skipped", stats.FilesSkipped,
		"duration", time.Since(start))
	return stats, nil
}

// Compile walks the corpus and builds the artifacts in memory without touching the index directory.
// Documents that cannot be parsed are logged and skipped.
func (b *Builder) Compile(ctx context.Context) (*Artifacts, *BuildStats, error) {
	info, err := os.Stat(b.corpusDir)
	if err != nil {
		return nil, nil, fmt.Errorf("corpus directory: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("corpus path %s is not a directory", b.corpusDir)
	}

	artifacts := NewArtifacts()
	stats := &BuildStats{}

	err = filepath.WalkDir(b.corpusDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		relPath, err := filepath.Rel(b.corpusDir, path)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if relPath != "." && (IsHiddenDir(d.Name()) || b.filter.ShouldExclude(relPath+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		if !IsMarkdown(relPath) {
			return nil
		}
		stats.FilesSeen++

		if !b.indexFile(artifacts, path, relPath, d) {
			stats.FilesSkipped++
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	artifacts.Finalize()
	stats.Pages = len(artifacts.Pages)
	stats.Terms = len(artifacts.Inverted)
	stats.Roles = len(artifacts.Roles)
	return artifacts, stats, nil
}

// indexFile adds every section of one document. It reports false when the file was skipped.
func (b *Builder) indexFile(a *Artifacts, path, relPath string, d fs.DirEntry) bool {
	if b.filter.ShouldExclude(relPath) {
		slog.Debug("Skipping excluded file", "path", relPath)
		return false
	}

	info, err := d.Info()
	if err != nil {
		slog.Warn("Skipping file", "path", relPath, "error", err)
		return false
	}
	if b.filter.TooLarge(info.Size()) {
		slog.Warn("Skipping oversized file", "path", relPath, "size", info.Size(), "limit", b.filter.MaxFileSize())
		return false
	}

	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Skipping file", "path", relPath, "error", err)
		return false
	}
	if IsBinary(content) {
		slog.Warn("Skipping binary file", "path", relPath)
		return false
	}

	fm, body, err := ParseDocument(string(content))
	if err != nil {
		if errors.Is(err, ErrNoFrontMatter) {
			slog.Warn("No front matter found, skipping", "path", relPath)
		} else {
			slog.Error("Failed to parse document, skipping", "path", relPath, "error", err)
		}
		return false
	}

	sections := SplitSections(body)
	for ordinal := range sections {
		// "a/b.md" and "a_b.md" map to the same IDs; the first file walked wins.
		id := PageID(relPath, ordinal)
		if _, exists := a.Pages[id]; exists {
			slog.Error("Page ID collision, skipping", "path", relPath, "page_id", id)
			return false
		}
	}

	roles := domain.FoldRoles(fm.RoleAccess)
	for ordinal, section := range sections {
		page := domain.Page{
			Title:        fm.Title,
			Department:   fm.Department,
			Sensitivity:  fm.Sensitivity,
			DocumentType: fm.DocumentType,
			LastUpdated:  fm.LastUpdated,
			Version:      fm.Version,
			RoleAccess:   roles,
			SourceFile:   filepath.Base(relPath),
			Content:      section,
		}
		a.AddPage(PageID(relPath, ordinal), page, tokenizer.TermFrequencies(section))
	}
	return true
}
