package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"lumen/internal/models"

	"github.com/google/uuid"
)

// Field boosts shared by both backends.
const (
	boostTitle    = 3.0
	boostSubtitle = 2.0
	boostTags     = 2.0
	boostBody     = 1.0
	boostAuthor   = 1.0
)

type memoryEntry struct {
	version time.Time
	doc     *Document // nil for a tombstone
	fields  []scoredField
}

type scoredField struct {
	boost  float64
	tokens []string
}

// MemoryIndex is an in-process Index used for development and tests.
// Tombstones are kept for the life of the process.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*memoryEntry
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[uuid.UUID]*memoryEntry)}
}

func (m *MemoryIndex) Upsert(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.entries[doc.ID]; ok && !doc.Version().After(cur.version) {
		return ErrStale
	}
	stored := doc
	stored.Tags = append([]string(nil), doc.Tags...)
	m.entries[doc.ID] = &memoryEntry{
		version: doc.Version(),
		doc:     &stored,
		fields: []scoredField{
			{boost: boostTitle, tokens: tokenize(doc.Title)},
			{boost: boostSubtitle, tokens: tokenize(doc.Subtitle)},
			{boost: boostTags, tokens: tokenize(strings.Join(doc.Tags, " "))},
			{boost: boostBody, tokens: tokenize(doc.ContentText)},
			{boost: boostAuthor, tokens: tokenize(doc.AuthorFullName)},
		},
	}
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, id uuid.UUID, version time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.entries[id]; ok && !version.After(cur.version) {
		return ErrStale
	}
	m.entries[id] = &memoryEntry{version: version}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, q Query) (*Result, error) {
	page := q.Page.Normalize()
	terms := tokenize(q.Text)
	tag := strings.ToLower(strings.TrimSpace(q.Tag))

	type scored struct {
		doc   *Document
		score float64
	}

	m.mu.RLock()
	var matches []scored
	for _, e := range m.entries {
		if e.doc == nil || e.doc.Status != string(models.PostStatusPublished) {
			continue
		}
		if tag != "" && !hasTag(e.doc.Tags, tag) {
			continue
		}
		score := 0.0
		if len(terms) > 0 {
			score = scoreEntry(e, terms, q.Fuzzy)
			if score == 0 {
				continue
			}
		}
		matches = append(matches, scored{doc: e.doc, score: score})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.score != b.score {
			return a.score > b.score
		}
		ap, bp := publishedAt(a.doc), publishedAt(b.doc)
		if !ap.Equal(bp) {
			return ap.After(bp)
		}
		return a.doc.ID.String() < b.doc.ID.String()
	})

	res := &Result{Total: int64(len(matches)), Hits: []Hit{}}
	from := page.Offset()
	if from >= len(matches) {
		return res, nil
	}
	to := from + page.Size
	if to > len(matches) {
		to = len(matches)
	}
	for _, s := range matches[from:to] {
		res.Hits = append(res.Hits, Hit{ID: s.doc.ID, Score: s.score})
	}
	return res, nil
}

// Version returns the stored version for id and whether the entry is live.
func (m *MemoryIndex) Version(id uuid.UUID) (time.Time, bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return time.Time{}, false, false
	}
	return e.version, e.doc != nil, true
}

// Get returns a copy of the live document for id.
func (m *MemoryIndex) Get(id uuid.UUID) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok || e.doc == nil {
		return Document{}, false
	}
	return *e.doc, true
}

func publishedAt(d *Document) time.Time {
	if d.PublishedAt != nil {
		return *d.PublishedAt
	}
	return d.CreatedAt
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.ToLower(t) == want {
			return true
		}
	}
	return false
}

func scoreEntry(e *memoryEntry, terms []string, fuzzy bool) float64 {
	score := 0.0
	for _, term := range terms {
		for _, f := range e.fields {
			for _, tok := range f.tokens {
				if tok == term || (fuzzy && withinAutoFuzziness(term, tok)) {
					score += f.boost
				}
			}
		}
	}
	return score
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// withinAutoFuzziness mirrors Elasticsearch's AUTO fuzziness: terms of up to
// two characters must match exactly, three to five allow one edit, longer
// terms allow two.
func withinAutoFuzziness(term, tok string) bool {
	n := len([]rune(term))
	allowed := 0
	switch {
	case n > 5:
		allowed = 2
	case n >= 3:
		allowed = 1
	}
	if allowed == 0 {
		return false
	}
	return levenshtein(term, tok, allowed) <= allowed
}

// levenshtein returns the edit distance between a and b, stopping early once
// it exceeds limit.
func levenshtein(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	if d := len(ra) - len(rb); d > limit || -d > limit {
		return limit + 1
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, cur[j])
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
