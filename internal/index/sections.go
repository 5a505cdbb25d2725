package index

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// sectionBoundary matches a level-2-or-deeper heading at the start of a line.
// The heading marker and following whitespace are consumed; the heading text opens the next section.
var sectionBoundary = regexp.MustCompile(`\n##+\s+`)

// SplitSections splits a document body at heading boundaries.
// The body starts on the line after the front matter, so a heading on its first line is a boundary too.
// Sections are trimmed and empty ones dropped, so ordinals count only kept sections.
func SplitSections(body string) []string {
	parts := sectionBoundary.Split("\n"+body, -1)
	sections := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			sections = append(sections, s)
		}
	}
	return sections
}

// PageID derives a stable page ID from a corpus-relative path and a section ordinal,
// e.g. "finance/q4_report.md", 2 -> "finance_q4_report_sec_2".
func PageID(relPath string, ordinal int) string {
	p := filepath.ToSlash(relPath)
	p = strings.TrimSuffix(p, filepath.Ext(p))
	p = strings.ReplaceAll(p, "/", "_")
	return p + "_sec_" + strconv.Itoa(ordinal)
}
