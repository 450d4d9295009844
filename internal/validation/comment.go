package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidateCommentContent requires non-blank content of at most maxLen characters.
func ValidateCommentContent(content string, maxLen int) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}
	if utf8.RuneCountInString(content) > maxLen {
		return fmt.Errorf("comment too long (max %d characters)", maxLen)
	}
	return nil
}
