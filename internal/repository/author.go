package repository

import (
	"context"
	"errors"

	"soundcheck/internal/models"

	"gorm.io/gorm"
)

// AuthorRepository defines persistence operations for author profiles.
type AuthorRepository interface {
	Create(ctx context.Context, author *models.Author) error
	GetByUserID(ctx context.Context, userID uint) (*models.Author, error)
	WithTx(tx *gorm.DB) AuthorRepository
}

type authorRepository struct {
	db *gorm.DB
}

// NewAuthorRepository returns a new AuthorRepository implementation.
func NewAuthorRepository(db *gorm.DB) AuthorRepository {
	return &authorRepository{db: db}
}

func (r *authorRepository) WithTx(tx *gorm.DB) AuthorRepository {
	return &authorRepository{db: tx}
}

func (r *authorRepository) Create(ctx context.Context, author *models.Author) error {
	if err := r.db.WithContext(ctx).Omit("User").Create(author).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("an author profile already exists for this user")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *authorRepository) GetByUserID(ctx context.Context, userID uint) (*models.Author, error) {
	var author models.Author
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&author).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Author", userID)
		}
		return nil, models.NewInternalError(err)
	}
	return &author, nil
}
