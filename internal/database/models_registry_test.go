package database

import (
	"testing"

	modelspkg "lumen/internal/models"

	"github.com/stretchr/testify/require"
)

func TestPersistentModels_IncludesInteractionTables(t *testing.T) {
	var like, bookmark, follow bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *modelspkg.Like:
			like = true
		case *modelspkg.Bookmark:
			bookmark = true
		case *modelspkg.Follow:
			follow = true
		}
	}
	require.True(t, like, "PersistentModels should include Like")
	require.True(t, bookmark, "PersistentModels should include Bookmark")
	require.True(t, follow, "PersistentModels should include Follow")
}
