package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Key layout for per-post analytics structures.
const (
	ViewHLLKeyPrefix  = "post:%s:views:hll"
	VisitKeyPrefix    = "post:%s:visits:%s"
	VisitKeyPattern   = "post:%s:visits:*"
	RateLimitKeyShape = "ratelimit:%s:%s"
	VisitDayLayout    = "2006-01-02"
)

// ViewHLLKey is the HyperLogLog of viewer keys for a post.
func ViewHLLKey(postID uuid.UUID) string {
	return fmt.Sprintf(ViewHLLKeyPrefix, postID)
}

// VisitKey is the daily visit counter for a post on the UTC day containing at.
func VisitKey(postID uuid.UUID, at time.Time) string {
	return fmt.Sprintf(VisitKeyPrefix, postID, at.UTC().Format(VisitDayLayout))
}

// VisitKeyGlob matches every daily visit counter of a post.
func VisitKeyGlob(postID uuid.UUID) string {
	return fmt.Sprintf(VisitKeyPattern, postID)
}

// RateLimitKey is the fixed-window counter for a resource and caller.
func RateLimitKey(resource, id string) string {
	return fmt.Sprintf(RateLimitKeyShape, resource, id)
}
