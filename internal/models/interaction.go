package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxClaps caps the claps one user can give one post.
const MaxClaps = 50

// Like records the claps a user gave a post.
// The combination of PostID and UserID is unique.
type Like struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PostID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_likes_post_user,priority:1" json:"post_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_likes_post_user,priority:2;index" json:"user_id"`
	ClapCount int       `gorm:"not null;default:1;check:chk_likes_clap_count,clap_count >= 1 AND clap_count <= 50" json:"clap_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (l *Like) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// ClapResult is the outcome of one clap call.
type ClapResult struct {
	TotalClaps int  `json:"total_claps"`
	IsNewLike  bool `json:"is_new_like"`
}

// LikeStats summarises the claps on a post from one viewer's perspective.
type LikeStats struct {
	LikeCount     int64 `json:"like_count"`
	TotalClaps    int64 `json:"total_claps"`
	ViewerClapped bool  `json:"viewer_clapped"`
	ViewerClaps   int   `json:"viewer_claps"`
}

// Bookmark puts a post on a user's reading list.
type Bookmark struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PostID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_bookmarks_post_user,priority:1" json:"post_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_bookmarks_post_user,priority:2;index" json:"user_id"`
	Post      *Post     `gorm:"foreignKey:PostID" json:"post,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime:false;index" json:"created_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (b *Bookmark) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Follow is a directed edge of the follow graph.
type Follow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FollowerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_follows_pair,priority:1" json:"follower_id"`
	FollowedID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_follows_pair,priority:2;index" json:"followed_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false;index" json:"created_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (f *Follow) BeforeCreate(_ *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// FollowStats summarises a user's follow graph from one viewer's perspective.
type FollowStats struct {
	FollowerCount  int64 `json:"follower_count"`
	FollowingCount int64 `json:"following_count"`
	ViewerFollows  bool  `json:"viewer_follows"`
}
