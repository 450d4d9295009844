package repository

import (
	"context"

	"lumen/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	// CreateIfAbsent inserts user unless a row with the same id or username
	// already exists, and reports whether it inserted.
	CreateIfAbsent(ctx context.Context, user *models.User) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	// List pages through users by username, optionally only those with role.
	List(ctx context.Context, role models.Role, page models.PageRequest) ([]*models.User, int64, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return wrap(err, "User", user.Username)
	}
	return nil
}

func (r *userRepository) CreateIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if res.Error != nil {
		return false, wrap(res.Error, "User", user.Username)
	}
	return res.RowsAffected > 0, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := readDB(r.db).WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, wrap(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := readDB(r.db).WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, wrap(err, "User", username)
	}
	return &user, nil
}

func (r *userRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *userRepository) List(ctx context.Context, role models.Role, page models.PageRequest) ([]*models.User, int64, error) {
	db := readDB(r.db).WithContext(ctx)
	scoped := func(q *gorm.DB) *gorm.DB {
		q = q.Model(&models.User{})
		if role != "" {
			q = q.Where("role = ?", role)
		}
		return q
	}

	var total int64
	if err := scoped(db).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	var users []*models.User
	if err := paginate(scoped(db).Order("username ASC"), page).Find(&users).Error; err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return users, total, nil
}

func (r *userRepository) UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	if !role.Valid() {
		return models.NewValidationError("unknown role " + string(role))
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	return nil
}
