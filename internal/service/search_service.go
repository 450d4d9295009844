package service

import (
	"context"
	"log/slog"
	"strings"

	"lumen/internal/featureflags"
	"lumen/internal/middleware"
	"lumen/internal/models"
	"lumen/internal/repository"
	"lumen/internal/search"

	"github.com/google/uuid"
)

// SearchService answers full-text queries from the index and loads the
// matching posts from the primary store.
type SearchService struct {
	index    search.Index
	postRepo repository.PostRepository
	flags    *featureflags.Manager
}

func NewSearchService(index search.Index, postRepo repository.PostRepository, flags *featureflags.Manager) *SearchService {
	return &SearchService{index: index, postRepo: postRepo, flags: flags}
}

// SearchPosts returns published posts in index rank order. A blank query
// without a tag yields an empty page. When the index is unavailable the
// result is an empty page too; search is best effort.
func (s *SearchService) SearchPosts(ctx context.Context, query, tag string, page models.PageRequest) (models.Page[*models.Post], error) {
	page = page.Normalize()
	query = strings.TrimSpace(query)
	tag = strings.TrimSpace(tag)
	if query == "" && tag == "" {
		return models.NewPage[*models.Post](nil, 0, page), nil
	}

	res, err := s.index.Search(ctx, search.Query{
		Text:  query,
		Tag:   tag,
		Fuzzy: s.flags.Enabled(featureflags.SearchFuzzy, ""),
		Page:  page,
	})
	if err != nil {
		middleware.Logger.WarnContext(ctx, "Search index unavailable",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		return models.NewPage[*models.Post](nil, 0, page), nil
	}

	ids := res.IDs()
	if len(ids) == 0 {
		return models.NewPage[*models.Post](nil, res.Total, page), nil
	}
	posts, err := s.postRepo.GetByIDs(ctx, ids)
	if err != nil {
		return models.Page[*models.Post]{}, err
	}

	byID := make(map[uuid.UUID]*models.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	ordered := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		// The index may briefly lag behind deletes and unpublishes.
		if p, ok := byID[id]; ok && p.Published() {
			ordered = append(ordered, p)
		}
	}
	return models.NewPage(ordered, res.Total, page), nil
}
