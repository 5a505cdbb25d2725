package index

import (
	"path/filepath"
	"strings"
)

// DefaultExcludePatterns lists corpus paths never indexed, relative to the corpus root.
var DefaultExcludePatterns = []string{
	".git/**", "node_modules/**", "vendor/**",
	".obsidian/**", "_drafts/**",
	"README.md", "CHANGELOG.md",
}

// DefaultMaxFileSize caps the size of a single Markdown file (4 MiB).
const DefaultMaxFileSize = 4 * 1024 * 1024

// FileFilter decides which corpus files take part in a build.
type FileFilter struct {
	patterns    []string
	maxFileSize int64
}

// NewFileFilter creates a filter with the default exclusion patterns.
func NewFileFilter(maxFileSize int64) *FileFilter {
	return NewFileFilterWithPatterns(DefaultExcludePatterns, maxFileSize)
}

// NewFileFilterWithPatterns creates a filter with custom exclusion patterns.
func NewFileFilterWithPatterns(patterns []string, maxFileSize int64) *FileFilter {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &FileFilter{
		patterns:    patterns,
		maxFileSize: maxFileSize,
	}
}

// IsMarkdown reports whether the path has a .md extension (any case).
func IsMarkdown(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".md")
}

// IsHiddenDir reports whether a directory name starts with a dot.
func IsHiddenDir(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// ShouldExclude returns true if relPath matches an exclusion pattern.
func (f *FileFilter) ShouldExclude(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pattern := range f.patterns {
		if matchPattern(pattern, relPath) {
			return true
		}
	}
	return false
}

// TooLarge reports whether a file of the given size exceeds the limit.
func (f *FileFilter) TooLarge(size int64) bool {
	return size > f.maxFileSize
}

// MaxFileSize returns the configured size limit.
func (f *FileFilter) MaxFileSize() int64 {
	return f.maxFileSize
}

// matchPattern supports "dir/**" (directory anywhere in the path),
// "*.ext" and plain names or globs matched against the path or its base name.
func matchPattern(pattern, path string) bool {
	if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
		if path == dir || strings.HasPrefix(path, dir+"/") {
			return true
		}
		return strings.Contains(path, "/"+dir+"/")
	}

	if ext, ok := strings.CutPrefix(pattern, "*."); ok {
		return strings.HasSuffix(strings.ToLower(path), "."+strings.ToLower(ext))
	}

	if pattern == path {
		return true
	}
	if matched, _ := filepath.Match(pattern, path); matched {
		return true
	}
	matched, _ := filepath.Match(pattern, filepath.Base(path))
	return matched
}

// IsBinary reports whether content has a NUL byte in its first 512 bytes.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 512)
	for i := range checkLen {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
