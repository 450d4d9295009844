// Package search mirrors published posts into a full-text index.
//
// Writes to the primary store never wait on the index. After commit a
// service hands the Synchronizer an upsert or remove event carrying the
// post's updated_at as version; workers apply it with retries, and the
// index keeps a mutation only when its version is newer than what it holds.
// Removes leave a versioned tombstone so a late upsert cannot bring a
// document back. A Reconciler periodically re-enqueues recent changes to
// repair events that were dropped.
package search

import (
	"bytes"
	"html"
	"strings"
	"time"

	"lumen/internal/models"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

// Document is the index projection of a post.
type Document struct {
	ID             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	Subtitle       string     `json:"subtitle"`
	ContentText    string     `json:"content_text"`
	Slug           string     `json:"slug"`
	AuthorID       uuid.UUID  `json:"author_id"`
	AuthorUsername string     `json:"author_username"`
	AuthorFullName string     `json:"author_full_name"`
	Tags           []string   `json:"tags"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
}

// Version is the freshness key of the document.
func (d Document) Version() time.Time {
	return d.UpdatedAt
}

var (
	markdown = goldmark.New()
	strip    = bluemonday.StrictPolicy()
)

// Project builds the index document for a post. Author and Tags should be loaded.
func Project(p *models.Post) Document {
	doc := Document{
		ID:          p.ID,
		Title:       p.Title,
		Subtitle:    p.Subtitle,
		ContentText: FlattenMarkdown(p.Body),
		Slug:        p.Slug,
		AuthorID:    p.AuthorID,
		Tags:        p.TagNames(),
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
	if p.Author != nil {
		doc.AuthorUsername = p.Author.Username
		doc.AuthorFullName = p.Author.FullName
	}
	if p.PublishedAt != nil {
		at := p.PublishedAt.UTC()
		doc.PublishedAt = &at
	}
	return doc
}

// FlattenMarkdown renders markdown and strips every tag, leaving
// whitespace-normalized text. Raw HTML in the source is dropped.
func FlattenMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return strings.Join(strings.Fields(src), " ")
	}
	text := html.UnescapeString(strip.Sanitize(buf.String()))
	return strings.Join(strings.Fields(text), " ")
}
