package service

import (
	"context"
	"time"

	"lumen/internal/models"
	"lumen/internal/repository"
	"lumen/internal/validation"

	"github.com/google/uuid"
)

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	now         func() time.Time
}

type CreateCommentInput struct {
	Actor    models.Actor
	PostID   uuid.UUID
	ParentID *uuid.UUID
	Content  string
}

type UpdateCommentInput struct {
	Actor     models.Actor
	CommentID uuid.UUID
	Content   string
}

type DeleteCommentInput struct {
	Actor     models.Actor
	CommentID uuid.UUID
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	now func() time.Time,
) *CommentService {
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		now:         clock(now),
	}
}

// AddComment creates a top-level comment, or a reply when ParentID is set.
// The parent must belong to the same post; deleted parents still accept replies.
func (s *CommentService) AddComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	if err := validation.ValidateCommentContent(in.Content, models.MaxCommentLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	at := s.now()
	comment := &models.Comment{
		PostID:    in.PostID,
		ParentID:  in.ParentID,
		AuthorID:  in.Actor.UserID,
		Content:   in.Content,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}

	return s.commentRepo.GetByID(ctx, comment.ID)
}

// EditComment replaces the content of the actor's own live comment.
func (s *CommentService) EditComment(ctx context.Context, in UpdateCommentInput) (*models.Comment, error) {
	if err := validation.ValidateCommentContent(in.Content, models.MaxCommentLength); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	return s.commentRepo.UpdateContent(ctx, in.CommentID, in.Actor.UserID, in.Content, s.now())
}

// DeleteComment soft-deletes a comment. Authors and elevated roles may delete;
// deleting an already deleted comment is a no-op that returns it unchanged.
func (s *CommentService) DeleteComment(ctx context.Context, in DeleteCommentInput) (*models.Comment, error) {
	comment, err := s.commentRepo.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, err
	}

	if !canModerate(in.Actor, comment.AuthorID) {
		return nil, models.NewForbiddenError("You can only delete your own comments")
	}

	changed, err := s.commentRepo.MarkDeleted(ctx, comment.ID, s.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return comment, nil
	}

	return s.commentRepo.GetByID(ctx, comment.ID)
}

// ListComments returns a post's top-level comments, newest first, deleted
// ones included as tombstones.
func (s *CommentService) ListComments(ctx context.Context, postID uuid.UUID, page models.PageRequest, viewer *models.Actor) (models.Page[*models.Comment], error) {
	page = page.Normalize()
	if _, err := visiblePost(ctx, s.postRepo, postID, viewer); err != nil {
		return models.Page[*models.Comment]{}, err
	}

	comments, total, err := s.commentRepo.ListTopLevel(ctx, postID, page)
	if err != nil {
		return models.Page[*models.Comment]{}, err
	}
	return models.NewPage(comments, total, page), nil
}

// ListReplies returns the direct replies of a comment, oldest first.
func (s *CommentService) ListReplies(ctx context.Context, commentID uuid.UUID, page models.PageRequest, viewer *models.Actor) (models.Page[*models.Comment], error) {
	page = page.Normalize()
	parent, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return models.Page[*models.Comment]{}, err
	}
	if _, err := visiblePost(ctx, s.postRepo, parent.PostID, viewer); err != nil {
		if models.IsNotFound(err) {
			return models.Page[*models.Comment]{}, models.NewNotFoundError("Comment", commentID)
		}
		return models.Page[*models.Comment]{}, err
	}

	replies, total, err := s.commentRepo.ListReplies(ctx, commentID, page)
	if err != nil {
		return models.Page[*models.Comment]{}, err
	}
	return models.NewPage(replies, total, page), nil
}

func (s *CommentService) GetComment(ctx context.Context, commentID uuid.UUID) (*models.Comment, error) {
	return s.commentRepo.GetByID(ctx, commentID)
}
