package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sha1n/relic-rag/internal/domain"
)

var (
	// ErrArtifactMissing is returned when a required artifact file does not exist.
	ErrArtifactMissing = errors.New("index artifact missing")

	// ErrArtifactCorrupt is returned when an artifact cannot be decoded,
	// fails its manifest digest, or references pages that do not exist.
	ErrArtifactCorrupt = errors.New("index artifact corrupt")
)

// Artifacts is the complete output of one build.
type Artifacts struct {
	// Pages is the content store, keyed by page ID.
	Pages map[string]domain.Page
	// Inverted maps a term to one posting per page containing it, sorted by page ID.
	Inverted map[string][]domain.Posting
	// Roles maps a case-folded role to the sorted page IDs it may read.
	Roles map[string][]string
	// IDF maps a term to its weight. Nil when the artifact set has no IDF table.
	IDF map[string]float64
}

// NewArtifacts returns an empty artifact set.
func NewArtifacts() *Artifacts {
	return &Artifacts{
		Pages:    make(map[string]domain.Page),
		Inverted: make(map[string][]domain.Posting),
		Roles:    make(map[string][]string),
		IDF:      make(map[string]float64),
	}
}

// AddPage stores a page, indexes its content and grants it to its roles.
// Page IDs must be unique within a build.
func (a *Artifacts) AddPage(id string, page domain.Page, termFreqs map[string]int) {
	a.Pages[id] = page
	for term, tf := range termFreqs {
		a.Inverted[term] = append(a.Inverted[term], domain.Posting{PageID: id, TF: tf})
	}
	for _, role := range page.RoleAccess {
		a.Roles[role] = append(a.Roles[role], id)
	}
}

// Finalize sorts postings and role lists and computes IDF weights:
// idf(t) = ln(N / (1 + df(t))) + 1.
func (a *Artifacts) Finalize() {
	total := float64(len(a.Pages))
	a.IDF = make(map[string]float64, len(a.Inverted))
	for term, postings := range a.Inverted {
		slices.SortFunc(postings, func(x, y domain.Posting) int {
			return strings.Compare(x.PageID, y.PageID)
		})
		a.IDF[term] = idf(total, len(postings))
	}
	for _, ids := range a.Roles {
		slices.Sort(ids)
	}
}

// idf is always positive: df <= N, so the log term is at least ln(1/2).
func idf(totalPages float64, docFreq int) float64 {
	return math.Log(totalPages/(1+float64(docFreq))) + 1
}

// Write persists every artifact into dir, each through temp file and rename,
// then writes the manifest last.
func (a *Artifacts) Write(dir string) (*Manifest, error) {
	manifest := &Manifest{
		Version: ManifestVersion,
		Pages:   len(a.Pages),
		Terms:   len(a.Inverted),
		Roles:   len(a.Roles),
		Digests: make(map[string]string, len(ArtifactFiles)),
	}

	values := map[string]any{
		ContentStoreFile:  a.Pages,
		InvertedIndexFile: a.Inverted,
		RoleIndexFile:     a.Roles,
		IDFIndexFile:      a.IDF,
	}
	for _, name := range ArtifactFiles {
		data, err := json.MarshalIndent(values[name], "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", name, err)
		}
		data = append(data, '\n')
		if err := writeFileAtomic(filepath.Join(dir, name), data); err != nil {
			return nil, err
		}
		manifest.Digests[name] = digest(data)
	}

	if err := manifest.Save(dir); err != nil {
		return nil, err
	}
	return manifest, nil
}

// ReadArtifacts loads an artifact set from dir and checks it for consistency.
// The IDF table is optional; when absent, Artifacts.IDF is nil.
func ReadArtifacts(dir string) (*Artifacts, *Manifest, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, nil, err
	}
	if manifest == nil {
		slog.Warn("Index manifest not found, skipping digest verification", "dir", dir)
	}

	a := &Artifacts{}
	if err := readArtifact(dir, ContentStoreFile, manifest, &a.Pages); err != nil {
		return nil, nil, err
	}
	if err := readArtifact(dir, InvertedIndexFile, manifest, &a.Inverted); err != nil {
		return nil, nil, err
	}
	if err := readArtifact(dir, RoleIndexFile, manifest, &a.Roles); err != nil {
		return nil, nil, err
	}
	if err := readArtifact(dir, IDFIndexFile, manifest, &a.IDF); err != nil {
		if !errors.Is(err, ErrArtifactMissing) {
			return nil, nil, err
		}
		a.IDF = nil
	}

	if err := a.validate(); err != nil {
		return nil, nil, err
	}
	return a, manifest, nil
}

func readArtifact(dir, name string, manifest *Manifest, out any) error {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, name)
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if manifest != nil {
		if err := manifest.Verify(name, data); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrArtifactCorrupt, name, err)
	}
	return nil
}

// validate checks that every page referenced by the role and inverted indexes exists.
func (a *Artifacts) validate() error {
	if a.Pages == nil {
		a.Pages = map[string]domain.Page{}
	}
	if a.Inverted == nil {
		a.Inverted = map[string][]domain.Posting{}
	}
	if a.Roles == nil {
		a.Roles = map[string][]string{}
	}

	for role, ids := range a.Roles {
		for _, id := range ids {
			if _, ok := a.Pages[id]; !ok {
				return fmt.Errorf("%w: role %q references unknown page %q", ErrArtifactCorrupt, role, id)
			}
		}
	}
	for term, postings := range a.Inverted {
		for _, p := range postings {
			if _, ok := a.Pages[p.PageID]; !ok {
				return fmt.Errorf("%w: term %q references unknown page %q", ErrArtifactCorrupt, term, p.PageID)
			}
		}
	}
	return nil
}
