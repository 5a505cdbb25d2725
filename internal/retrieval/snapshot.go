package retrieval

import (
	"cmp"
	"slices"

	"github.com/sha1n/relic-rag/internal/domain"
	"github.com/sha1n/relic-rag/internal/index"
	"github.com/sha1n/relic-rag/internal/tokenizer"
)

// Snapshot is one immutable, fully loaded artifact set.
// It is safe for concurrent use; a rebuild produces a new Snapshot rather than mutating this one.
type Snapshot struct {
	pages    map[string]domain.Page
	inverted map[string][]domain.Posting
	roles    map[string]map[string]struct{}
	idf      map[string]float64
	manifest *index.Manifest
}

// NewSnapshot indexes artifacts for querying. The artifacts must not be modified afterwards.
func NewSnapshot(a *index.Artifacts, manifest *index.Manifest) *Snapshot {
	roles := make(map[string]map[string]struct{}, len(a.Roles))
	for role, ids := range a.Roles {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		roles[domain.FoldRole(role)] = set
	}
	return &Snapshot{
		pages:    a.Pages,
		inverted: a.Inverted,
		roles:    roles,
		idf:      a.IDF,
		manifest: manifest,
	}
}

// weight returns the IDF for term, or 1.0 when the snapshot has no IDF table.
func (s *Snapshot) weight(term string) float64 {
	if s.idf == nil {
		return 1.0
	}
	if w, ok := s.idf[term]; ok {
		return w
	}
	return 1.0
}

type candidate struct {
	pageID string
	score  float64
}

// retrieve ranks the pages role may read against query.
// Pages outside the role's set are never scored.
func (s *Snapshot) retrieve(query, role string, o Options) []domain.Result {
	terms := tokenizer.Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	allowed := s.roles[domain.FoldRole(role)]
	if len(allowed) == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for _, term := range terms {
		postings, ok := s.inverted[term]
		if !ok {
			continue
		}
		w := s.weight(term)
		for _, p := range postings {
			if _, ok := allowed[p.PageID]; !ok {
				continue
			}
			scores[p.PageID] += float64(p.TF) * w
		}
	}
	if len(scores) == 0 {
		return nil
	}

	ranked := make([]candidate, 0, len(scores))
	for id, score := range scores {
		ranked = append(ranked, candidate{pageID: id, score: score})
	}
	slices.SortFunc(ranked, func(a, b candidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.pageID, b.pageID)
	})

	if len(ranked) > o.TopK {
		ranked = ranked[:o.TopK]
	}

	results := make([]domain.Result, 0, len(ranked))
	for _, c := range ranked {
		if c.score < o.ScoreThreshold {
			continue
		}
		page, ok := s.pages[c.pageID]
		if !ok {
			continue
		}
		results = append(results, domain.Result{
			PageID:  c.pageID,
			Score:   c.score,
			Title:   page.Title,
			Content: page.Content,
		})
	}
	return results
}

// page returns a page only when role is allowed to read it.
func (s *Snapshot) page(pageID, role string) (domain.Page, bool) {
	if _, ok := s.roles[domain.FoldRole(role)][pageID]; !ok {
		return domain.Page{}, false
	}
	page, ok := s.pages[pageID]
	return page, ok
}

// Stats describes a loaded snapshot.
type Stats struct {
	Pages      int  `json:"pages"`
	Terms      int  `json:"terms"`
	Roles      int  `json:"roles"`
	HasIDF     bool `json:"has_idf"`
	HasDigests bool `json:"has_digests"`
}

func (s *Snapshot) stats() Stats {
	return Stats{
		Pages:      len(s.pages),
		Terms:      len(s.inverted),
		Roles:      len(s.roles),
		HasIDF:     s.idf != nil,
		HasDigests: s.manifest != nil,
	}
}
