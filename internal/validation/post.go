// Package validation checks and normalizes user-supplied post and comment fields.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MaxTitleLength    = 200
	MaxSubtitleLength = 300
	MaxBodyLength     = 100000
	MaxTags           = 10
	MaxTagLength      = 50
	MaxSlugLength     = 200

	wordsPerMinute = 200
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Slugs that collide with routes under /posts.
var reservedSlugs = map[string]struct{}{
	"search":  {},
	"new":     {},
	"drafts":  {},
	"feed":    {},
	"stats":   {},
	"tags":    {},
	"archive": {},
}

// ValidatePost checks the editable text fields of a post.
func ValidatePost(title, subtitle, body string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("title too long (max %d characters)", MaxTitleLength)
	}
	if utf8.RuneCountInString(subtitle) > MaxSubtitleLength {
		return fmt.Errorf("subtitle too long (max %d characters)", MaxSubtitleLength)
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("body is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return fmt.Errorf("body too long (max %d characters)", MaxBodyLength)
	}
	return nil
}

// ValidateTags checks tag names before they are resolved.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("too many tags (max %d)", MaxTags)
	}
	for _, t := range tags {
		name := strings.TrimSpace(t)
		if name == "" {
			return fmt.Errorf("tag names cannot be empty")
		}
		if utf8.RuneCountInString(name) > MaxTagLength {
			return fmt.Errorf("tag %q too long (max %d characters)", name, MaxTagLength)
		}
	}
	return nil
}

// ValidateSlug checks slug format and reserved names.
func ValidateSlug(slug string) error {
	if slug == "" || len(slug) > MaxSlugLength || !slugRegex.MatchString(slug) {
		return fmt.Errorf("slug must contain only lowercase letters, numbers and single hyphens")
	}
	if _, reserved := reservedSlugs[slug]; reserved {
		return fmt.Errorf("slug is reserved")
	}
	return nil
}

// Slugify derives a URL slug from a title. Letters are lowercased, runs of
// anything else collapse into one hyphen. Titles with no usable characters
// and reserved results fall back to a "post" prefix.
func Slugify(title string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}

	slug := b.String()
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	if slug == "" {
		return "post"
	}
	if _, reserved := reservedSlugs[slug]; reserved {
		return "post-" + slug
	}
	return slug
}

// WithSuffix returns the n-th alternative of a taken slug.
func WithSuffix(slug string, n int) string {
	suffix := fmt.Sprintf("-%d", n)
	if len(slug)+len(suffix) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength-len(suffix)], "-")
	}
	return slug + suffix
}

// ReadTime estimates reading minutes at 200 words per minute, at least one.
func ReadTime(body string) int {
	words := len(strings.Fields(body))
	minutes := int(math.Round(float64(words) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}
