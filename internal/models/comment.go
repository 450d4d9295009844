package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommentTombstone replaces the content of a soft-deleted comment.
const CommentTombstone = "[This comment has been deleted]"

// MaxCommentLength bounds comment content, in characters.
const MaxCommentLength = 5000

// CommentState is the lifecycle tag of a comment node.
type CommentState string

const (
	CommentActive  CommentState = "active"
	CommentDeleted CommentState = "deleted"
)

// Comment is a node in a post's comment tree. Children reference their parent
// by id only; soft deletion keeps the node so replies stay attached.
type Comment struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PostID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_comments_post_parent,priority:1" json:"post_id"`
	ParentID   *uuid.UUID `gorm:"type:uuid;index:idx_comments_post_parent,priority:2;index" json:"parent_id,omitempty"`
	AuthorID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"author_id"`
	Author     *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	IsDeleted  bool       `gorm:"not null;default:false" json:"is_deleted"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	// ReplyCount counts direct children; populated by top-level listings only.
	ReplyCount int64      `gorm:"->;-:migration" json:"reply_count"`
	CreatedAt  time.Time  `gorm:"autoCreateTime:false;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (c *Comment) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// State returns the lifecycle tag of the comment.
func (c *Comment) State() CommentState {
	if c.IsDeleted {
		return CommentDeleted
	}
	return CommentActive
}

// IsReply reports whether the comment hangs under another comment.
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}
