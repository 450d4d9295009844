package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lumen/internal/middleware"
	"lumen/internal/models"
	"lumen/internal/repository"

	"github.com/google/uuid"
)

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.userRepo.GetByUsername(ctx, username)
}

// ListUsers pages through accounts ordered by username. An empty role lists
// every account.
func (s *UserService) ListUsers(ctx context.Context, role models.Role, page models.PageRequest) (models.Page[*models.User], error) {
	if role != "" && !role.Valid() {
		return models.Page[*models.User]{}, models.NewValidationError("Unknown role " + string(role))
	}
	page = page.Normalize()
	users, total, err := s.userRepo.List(ctx, role, page)
	if err != nil {
		return models.Page[*models.User]{}, err
	}
	return models.NewPage(users, total, page), nil
}

// EnsureUser creates the account row for an identity the first time it is
// seen. Existing rows are left alone. When the username is held by another
// account the id is appended to it.
func (s *UserService) EnsureUser(ctx context.Context, user *models.User) error {
	if user.Username == "" {
		user.Username = fallbackUsername(user.ID)
	}
	created, err := s.userRepo.CreateIfAbsent(ctx, user)
	if err != nil || created {
		return err
	}
	exists, err := s.userRepo.Exists(ctx, user.ID)
	if err != nil || exists {
		return err
	}

	taken := user.Username
	user.Username = disambiguate(taken, user.ID)
	created, err = s.userRepo.CreateIfAbsent(ctx, user)
	if err != nil {
		return err
	}
	if !created {
		if exists, err := s.userRepo.Exists(ctx, user.ID); err != nil || exists {
			return err
		}
		return models.NewConflictError(models.ReasonDuplicate, fmt.Sprintf("Username %q is already taken", taken))
	}
	middleware.Logger.InfoContext(ctx, "Provisioned user under a disambiguated username",
		slog.String("user_id", user.ID.String()),
		slog.String("requested", taken),
		slog.String("username", user.Username),
	)
	return nil
}

func fallbackUsername(id uuid.UUID) string {
	return "user-" + id.String()[:8]
}

func disambiguate(username string, id uuid.UUID) string {
	suffix := "-" + id.String()[:8]
	if limit := models.MaxUsernameLength - len(suffix); len(username) > limit {
		username = strings.ToValidUTF8(username[:limit], "")
	}
	return username + suffix
}

// SetRole changes the platform role of the named user.
func (s *UserService) SetRole(ctx context.Context, username string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, models.NewValidationError(fmt.Sprintf("unknown role %q", role))
	}
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}

	if err := s.userRepo.UpdateRole(ctx, user.ID, role); err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}
