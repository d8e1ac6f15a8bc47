package repository

import (
	"context"
	"errors"

	"soundcheck/internal/models"
	"soundcheck/internal/observability"

	"gorm.io/gorm"
)

// RegistrationFilter selects a page of registration requests. A nil Status lists all.
type RegistrationFilter struct {
	Status *models.RegistrationStatus
	Page   int
	Size   int
}

// RegistrationRequestRepository defines persistence operations for author applications.
type RegistrationRequestRepository interface {
	Create(ctx context.Context, req *models.RegistrationRequest) error
	GetByID(ctx context.Context, id uint) (*models.RegistrationRequest, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.RegistrationRequest, error)
	ExistsPendingByEmail(ctx context.Context, email string) (bool, error)
	// MarkProcessed moves a pending request to a terminal status. It reports
	// false without error when the row is no longer pending.
	MarkProcessed(ctx context.Context, id uint, status models.RegistrationStatus, review models.RegistrationReview) (bool, error)
	List(ctx context.Context, filter RegistrationFilter) (*models.RegistrationRequestPage, error)
	CountByStatus(ctx context.Context) (*models.RegistrationStats, error)
	WithTx(tx *gorm.DB) RegistrationRequestRepository
}

type registrationRequestRepository struct {
	db *gorm.DB
}

// NewRegistrationRequestRepository returns a new RegistrationRequestRepository implementation.
func NewRegistrationRequestRepository(db *gorm.DB) RegistrationRequestRepository {
	return &registrationRequestRepository{db: db}
}

func (r *registrationRequestRepository) WithTx(tx *gorm.DB) RegistrationRequestRepository {
	return &registrationRequestRepository{db: tx}
}

func (r *registrationRequestRepository) Create(ctx context.Context, req *models.RegistrationRequest) error {
	defer observability.TrackQuery("insert", "registration_requests")()

	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewDuplicateRegistrationError("an active registration request already exists for this email")
		}
		return models.NewInternalError(err)
	}
	return nil
}

func (r *registrationRequestRepository) GetByID(ctx context.Context, id uint) (*models.RegistrationRequest, error) {
	return r.get(ctx, r.db, id)
}

func (r *registrationRequestRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.RegistrationRequest, error) {
	return r.get(ctx, forUpdate(r.db), id)
}

func (r *registrationRequestRepository) get(ctx context.Context, db *gorm.DB, id uint) (*models.RegistrationRequest, error) {
	defer observability.TrackQuery("select", "registration_requests")()

	var req models.RegistrationRequest
	if err := db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Registration request", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &req, nil
}

func (r *registrationRequestRepository) ExistsPendingByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.RegistrationRequest{}).
		Where("email = ? AND status = ?", email, models.RegistrationStatusPending).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *registrationRequestRepository) MarkProcessed(ctx context.Context, id uint, status models.RegistrationStatus, review models.RegistrationReview) (bool, error) {
	defer observability.TrackQuery("update", "registration_requests")()

	if !status.IsTerminal() {
		return false, models.NewValidationError("target status must be approved or rejected")
	}

	updates := map[string]any{
		"status":        status,
		"processed_at":  review.At,
		"admin_comment": nullableString(review.Comment),
		"admin_email":   nullableString(review.AdminEmail),
		"updated_at":    review.At,
	}
	res := r.db.WithContext(ctx).Model(&models.RegistrationRequest{}).
		Where("id = ? AND status = ?", id, models.RegistrationStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *registrationRequestRepository) List(ctx context.Context, filter RegistrationFilter) (*models.RegistrationRequestPage, error) {
	defer observability.TrackQuery("select", "registration_requests")()

	page, size, offset := pageBounds(filter.Page, filter.Size)

	query := r.db.WithContext(ctx).Model(&models.RegistrationRequest{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	requests := make([]models.RegistrationRequest, 0, size)
	if total > 0 {
		if err := query.Session(&gorm.Session{}).
			Order("created_at DESC").Order("id DESC").
			Limit(size).Offset(offset).
			Find(&requests).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return &models.RegistrationRequestPage{
		Requests:   requests,
		Total:      total,
		Page:       page,
		Size:       size,
		TotalPages: totalPages,
	}, nil
}

func (r *registrationRequestRepository) CountByStatus(ctx context.Context) (*models.RegistrationStats, error) {
	var rows []struct {
		Status models.RegistrationStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.RegistrationRequest{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	stats := &models.RegistrationStats{}
	for _, row := range rows {
		switch row.Status {
		case models.RegistrationStatusPending:
			stats.Pending = row.Count
		case models.RegistrationStatusApproved:
			stats.Approved = row.Count
		case models.RegistrationStatusRejected:
			stats.Rejected = row.Count
		}
	}
	return stats, nil
}
