// Package seed populates a database with realistic demo data by driving the
// engine's own services, so seeded rows obey the same rules as live traffic.
// It is intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lumen/internal/middleware"
	"lumen/internal/models"
	"lumen/internal/repository"
	"lumen/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var tagPool = []string{
	"Go", "Databases", "Distributed Systems", "Search", "Caching",
	"Observability", "Postgres", "Redis", "Career", "Architecture",
}

// Options configures the seeder.
type Options struct {
	Users              int
	Posts              int
	MaxCommentsPerPost int
	// Days spreads generated timestamps over this much history.
	Days  int
	Clean bool
	// Seed makes a run reproducible; zero picks a random seed.
	Seed int64
}

// DefaultOptions returns the sizes used by the admin seed command.
func DefaultOptions() Options {
	return Options{Users: 50, Posts: 200, MaxCommentsPerPost: 8, Days: 90, Clean: true}
}

// Summary counts what a run created.
type Summary struct {
	Users     int
	Posts     int
	Published int
	Comments  int
	Claps     int
	Follows   int
	Bookmarks int
}

// Seeder generates users, posts and interactions.
type Seeder struct {
	db     *gorm.DB
	faker  *gofakeit.Faker
	opts   Options
	cursor time.Time

	posts        *service.PostService
	comments     *service.CommentService
	interactions *service.InteractionService
	follows      *service.FollowService
}

// New returns a seeder writing to db. Posts are not pushed to the search
// index; run a reindex afterwards.
func New(db *gorm.DB, opts Options) *Seeder {
	if opts.Days <= 0 {
		opts.Days = 90
	}
	s := &Seeder{
		db:     db,
		faker:  gofakeit.New(opts.Seed),
		opts:   opts,
		cursor: time.Now().Add(-time.Duration(opts.Days) * 24 * time.Hour),
	}

	postRepo := repository.NewPostRepository(db)
	s.posts = service.NewPostService(postRepo, nil, nil, nil, s.now)
	s.comments = service.NewCommentService(repository.NewCommentRepository(db), postRepo, s.now)
	s.interactions = service.NewInteractionService(repository.NewLikeRepository(db), repository.NewBookmarkRepository(db), postRepo, s.now)
	s.follows = service.NewFollowService(repository.NewFollowRepository(db), repository.NewUserRepository(db), s.now)
	return s
}

// now walks a synthetic clock forward through the configured history so
// generated content has a plausible timeline. It never passes real time.
func (s *Seeder) now() time.Time {
	s.cursor = s.cursor.Add(time.Duration(s.faker.Number(1, 90)) * time.Minute)
	if real := time.Now(); s.cursor.After(real) {
		s.cursor = real
	}
	return s.cursor
}

// Run seeds the database and reports what it created.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	if s.opts.Clean {
		if err := Clean(ctx, s.db); err != nil {
			return nil, fmt.Errorf("clean: %w", err)
		}
	}

	sum := &Summary{}
	users, err := s.createUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed users: %w", err)
	}
	sum.Users = len(users)

	posts, err := s.createPosts(ctx, users)
	if err != nil {
		return nil, fmt.Errorf("seed posts: %w", err)
	}
	sum.Posts = len(posts)

	var published []*models.Post
	for _, p := range posts {
		if p.Published() {
			published = append(published, p)
		}
	}
	sum.Published = len(published)

	if sum.Comments, err = s.createComments(ctx, users, published); err != nil {
		return nil, fmt.Errorf("seed comments: %w", err)
	}
	if sum.Claps, err = s.createClaps(ctx, users, published); err != nil {
		return nil, fmt.Errorf("seed claps: %w", err)
	}
	if sum.Follows, err = s.createFollows(ctx, users); err != nil {
		return nil, fmt.Errorf("seed follows: %w", err)
	}
	if sum.Bookmarks, err = s.createBookmarks(ctx, users, published); err != nil {
		return nil, fmt.Errorf("seed bookmarks: %w", err)
	}

	middleware.Logger.InfoContext(ctx, "Seeding complete",
		slog.Int("users", sum.Users),
		slog.Int("posts", sum.Posts),
		slog.Int("comments", sum.Comments),
		slog.Int("claps", sum.Claps),
		slog.Int("follows", sum.Follows),
		slog.Int("bookmarks", sum.Bookmarks),
	)
	return sum, nil
}

// Clean removes every engine row, children first.
func Clean(ctx context.Context, db *gorm.DB) error {
	tx := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	if err := tx.Exec("DELETE FROM post_tags").Error; err != nil {
		return err
	}
	for _, model := range []interface{}{
		&models.Bookmark{}, &models.Like{}, &models.Comment{}, &models.Post{},
		&models.Tag{}, &models.Follow{}, &models.User{},
	} {
		if err := tx.Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) pickRole(i int) models.Role {
	if i == 0 {
		return models.RoleAdmin
	}
	switch n := s.faker.Number(1, 100); {
	case n <= 5:
		return models.RoleEditor
	case n <= 35:
		return models.RoleAuthor
	case n <= 55:
		return models.RoleSubscriber
	default:
		return models.RoleReader
	}
}

func (s *Seeder) createUsers(ctx context.Context) ([]*models.User, error) {
	users := make([]*models.User, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		name := strings.ToLower(s.faker.Username())
		if len(name) > 40 {
			name = name[:40]
		}
		u := &models.User{
			ID:       uuid.New(),
			Username: fmt.Sprintf("%s%d", name, i),
			FullName: s.faker.Name(),
			Role:     s.pickRole(i),
		}
		if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Seeder) pickTags() []string {
	n := s.faker.Number(0, 3)
	seen := make(map[string]bool, n)
	tags := make([]string, 0, n)
	for len(tags) < n {
		tag := s.faker.RandomString(tagPool)
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

func (s *Seeder) pickStatus() models.PostStatus {
	switch n := s.faker.Number(1, 100); {
	case n <= 80:
		return models.PostStatusPublished
	case n <= 95:
		return models.PostStatusDraft
	default:
		return models.PostStatusArchived
	}
}

func (s *Seeder) body() string {
	var b strings.Builder
	sections := s.faker.Number(1, 4)
	for i := 0; i < sections; i++ {
		fmt.Fprintf(&b, "## %s\n\n", strings.TrimSuffix(s.faker.Sentence(4), "."))
		b.WriteString(s.faker.Paragraph(2, 4, 14, "\n\n"))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func (s *Seeder) createPosts(ctx context.Context, users []*models.User) ([]*models.Post, error) {
	var authors []*models.User
	for _, u := range users {
		if u.Role.CanAuthor() {
			authors = append(authors, u)
		}
	}
	if len(authors) == 0 {
		return nil, nil
	}

	posts := make([]*models.Post, 0, s.opts.Posts)
	for i := 0; i < s.opts.Posts; i++ {
		author := authors[s.faker.Number(0, len(authors)-1)]
		post, err := s.posts.CreatePost(ctx, service.CreatePostInput{
			Actor:      models.Actor{UserID: author.ID, Role: author.Role},
			Title:      strings.TrimSuffix(s.faker.Sentence(s.faker.Number(3, 8)), "."),
			Subtitle:   s.faker.Sentence(10),
			Body:       s.body(),
			Status:     s.pickStatus(),
			Tags:       s.pickTags(),
			IsFeatured: s.faker.Number(1, 10) == 1,
		})
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (s *Seeder) createComments(ctx context.Context, users []*models.User, posts []*models.Post) (int, error) {
	if len(users) == 0 || s.opts.MaxCommentsPerPost <= 0 {
		return 0, nil
	}
	total := 0
	for _, post := range posts {
		var thread []*models.Comment
		for n := s.faker.Number(0, s.opts.MaxCommentsPerPost); n > 0; n-- {
			author := users[s.faker.Number(0, len(users)-1)]
			in := service.CreateCommentInput{
				Actor:   models.Actor{UserID: author.ID, Role: author.Role},
				PostID:  post.ID,
				Content: s.faker.Sentence(s.faker.Number(5, 20)),
			}
			if len(thread) > 0 && s.faker.Number(1, 10) <= 3 {
				parent := thread[s.faker.Number(0, len(thread)-1)]
				in.ParentID = &parent.ID
			}
			comment, err := s.comments.AddComment(ctx, in)
			if err != nil {
				return total, err
			}
			thread = append(thread, comment)
			total++
		}
	}
	return total, nil
}

// createClaps has some readers clap twice so the per-user cap is exercised.
func (s *Seeder) createClaps(ctx context.Context, users []*models.User, posts []*models.Post) (int, error) {
	total := 0
	for _, post := range posts {
		for _, u := range users {
			if s.faker.Number(1, 4) != 1 {
				continue
			}
			rounds := 1
			if s.faker.Number(1, 5) == 1 {
				rounds = 2
			}
			for r := 0; r < rounds; r++ {
				if _, err := s.interactions.Clap(ctx, post.ID, u.ID, s.faker.Number(1, 40)); err != nil {
					return total, err
				}
				total++
			}
		}
	}
	return total, nil
}

func (s *Seeder) createFollows(ctx context.Context, users []*models.User) (int, error) {
	if len(users) < 2 {
		return 0, nil
	}
	total := 0
	for _, u := range users {
		for n := s.faker.Number(0, 5); n > 0; n-- {
			target := users[s.faker.Number(0, len(users)-1)]
			if target.ID == u.ID {
				continue
			}
			_, err := s.follows.Follow(ctx, u.ID, target.ID)
			if models.ErrorCode(err) == models.CodeConflict {
				continue
			}
			if err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}

func (s *Seeder) createBookmarks(ctx context.Context, users []*models.User, posts []*models.Post) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	total := 0
	for _, u := range users {
		for n := s.faker.Number(0, 3); n > 0; n-- {
			post := posts[s.faker.Number(0, len(posts)-1)]
			_, err := s.interactions.Bookmark(ctx, post.ID, u.ID)
			if models.ErrorCode(err) == models.CodeConflict {
				continue
			}
			if err != nil {
				return total, err
			}
			total++
		}
	}
	return total, nil
}
