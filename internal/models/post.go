package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostStatus is the publication state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
	PostStatusArchived  PostStatus = "archived"
)

// Valid reports whether s is a known status.
func (s PostStatus) Valid() bool {
	return s == PostStatusDraft || s == PostStatusPublished || s == PostStatusArchived
}

// Post is an article. UpdatedAt is assigned by the service layer and doubles as
// the search document version, so gorm must not overwrite it.
type Post struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Slug        string     `gorm:"size:250;not null;uniqueIndex" json:"slug"`
	Subtitle    string     `gorm:"size:300" json:"subtitle"`
	Body        string     `gorm:"type:text;not null" json:"body"`
	ReadTime    int        `gorm:"not null;default:1" json:"read_time"`
	ViewCount   int64      `gorm:"not null;default:0" json:"view_count"`
	Status      PostStatus `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	IsFeatured  bool       `gorm:"not null;default:false" json:"is_featured"`
	AuthorID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"author_id"`
	Author      *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Tags        []Tag      `gorm:"many2many:post_tags;constraint:OnDelete:CASCADE" json:"tags"`
	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime:false;index" json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (p *Post) BeforeCreate(_ *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Published reports whether the post is visible to the public.
func (p *Post) Published() bool {
	return p.Status == PostStatusPublished
}

// TagNames returns the names of the post's tags in stored order.
func (p *Post) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Tag labels posts; names are unique.
type Tag struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Slug string    `gorm:"size:60;not null;uniqueIndex" json:"slug"`
}

// BeforeCreate assigns an id when the caller did not.
func (t *Tag) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// PostStats aggregates the view figures of a post.
type PostStats struct {
	PostID          uuid.UUID    `json:"post_id"`
	ViewCount       int64        `json:"view_count"`
	EstimatedUnique int64        `json:"estimated_unique_views"`
	DailyVisits     []DailyVisit `json:"daily_visits"`
}

// DailyVisit is one day of the visit series, oldest first.
type DailyVisit struct {
	Day    string `json:"day"`
	Visits int64  `json:"visits"`
}
