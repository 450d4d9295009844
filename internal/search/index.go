package search

import (
	"context"
	"errors"
	"time"

	"lumen/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrStale reports a mutation whose version is not newer than the stored one.
	// It is an expected outcome of out-of-order delivery, not a failure.
	ErrStale = errors.New("search: stale version")
	// ErrRejected reports a mutation the index will never accept; it is not retried.
	ErrRejected = errors.New("search: mutation rejected")
)

// Index is a versioned full-text index of posts.
type Index interface {
	// Upsert stores doc if doc.Version() is newer than the stored entry or tombstone.
	Upsert(ctx context.Context, doc Document) error
	// Remove deletes the document and records a tombstone at version.
	Remove(ctx context.Context, id uuid.UUID, version time.Time) error
	// Search returns published documents matching q, best match first.
	Search(ctx context.Context, q Query) (*Result, error)
}

// Query is a full-text search over published posts.
type Query struct {
	Text  string
	Tag   string
	Fuzzy bool
	Page  models.PageRequest
}

// Hit is one matching document.
type Hit struct {
	ID    uuid.UUID
	Score float64
}

// Result is one page of hits plus the total match count.
type Result struct {
	Hits  []Hit
	Total int64
}

// IDs returns the hit ids in rank order.
func (r *Result) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Hits))
	for _, h := range r.Hits {
		ids = append(ids, h.ID)
	}
	return ids
}
