package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"soundcheck/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRequest(email, username string) *models.RegistrationRequest {
	return &models.RegistrationRequest{
		Email:    email,
		Username: username,
		Password: "$2a$10$hash",
		Status:   models.RegistrationStatusPending,
	}
}

func TestRegistrationRequestRepository_CreateAndGet(t *testing.T) {
	repo := NewRegistrationRequestRepository(newTestDB(t))
	ctx := context.Background()

	req := pendingRequest("a@x.com", "alice")
	req.AuthorName = "Al"
	require.NoError(t, repo.Create(ctx, req))
	assert.Equal(t, uint(1), req.ID)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, models.RegistrationStatusPending, got.Status)
	assert.Nil(t, got.ProcessedAt)

	_, err = repo.GetByID(ctx, 404)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
}

func TestRegistrationRequestRepository_SecondPendingIsDuplicate(t *testing.T) {
	repo := NewRegistrationRequestRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, pendingRequest("a@x.com", "alice")))

	err := repo.Create(ctx, pendingRequest("a@x.com", "alice2"))
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeDuplicateRegistration))

	exists, err := repo.ExistsPendingByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsPendingByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegistrationRequestRepository_MarkProcessedOnlyOnce(t *testing.T) {
	repo := NewRegistrationRequestRepository(newTestDB(t))
	ctx := context.Background()

	req := pendingRequest("a@x.com", "alice")
	require.NoError(t, repo.Create(ctx, req))

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	review := models.RegistrationReview{Comment: "looks good", AdminEmail: "admin@x.com", At: at}

	ok, err := repo.MarkProcessed(ctx, req.ID, models.RegistrationStatusApproved, review)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkProcessed(ctx, req.ID, models.RegistrationStatusRejected, review)
	require.NoError(t, err)
	assert.False(t, ok, "terminal rows must not change")

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusApproved, got.Status)
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, got.ProcessedAt.Equal(at))
	require.NotNil(t, got.AdminComment)
	assert.Equal(t, "looks good", *got.AdminComment)
	require.NotNil(t, got.AdminEmail)
	assert.Equal(t, "admin@x.com", *got.AdminEmail)

	_, err = repo.MarkProcessed(ctx, req.ID, models.RegistrationStatusPending, review)
	assert.True(t, models.HasCode(err, models.CodeValidation))

	// once processed, the email may apply again
	require.NoError(t, repo.Create(ctx, pendingRequest("a@x.com", "alice")))
}

func TestRegistrationRequestRepository_ListAndStats(t *testing.T) {
	db := newTestDB(t)
	repo := NewRegistrationRequestRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		req := pendingRequest(fmt.Sprintf("user%d@x.com", i), fmt.Sprintf("user%d", i))
		req.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, req))
	}
	ok, err := repo.MarkProcessed(ctx, 2, models.RegistrationStatusRejected,
		models.RegistrationReview{Comment: "no", AdminEmail: "admin@x.com", At: base})
	require.NoError(t, err)
	require.True(t, ok)

	page, err := repo.List(ctx, RegistrationFilter{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Requests, 2)
	assert.Equal(t, uint(5), page.Requests[0].ID, "newest first")
	assert.Equal(t, uint(4), page.Requests[1].ID)

	last, err := repo.List(ctx, RegistrationFilter{Page: 3, Size: 2})
	require.NoError(t, err)
	require.Len(t, last.Requests, 1)
	assert.Equal(t, uint(1), last.Requests[0].ID)

	rejected := models.RegistrationStatusRejected
	filtered, err := repo.List(ctx, RegistrationFilter{Status: &rejected})
	require.NoError(t, err)
	assert.Equal(t, int64(1), filtered.Total)
	require.Len(t, filtered.Requests, 1)
	assert.Equal(t, uint(2), filtered.Requests[0].ID)
	assert.Equal(t, 20, filtered.Size, "default page size")

	approved := models.RegistrationStatusApproved
	empty, err := repo.List(ctx, RegistrationFilter{Status: &approved, Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Empty(t, empty.Requests)
	assert.Equal(t, 0, empty.TotalPages)

	stats, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStats{Pending: 4, Rejected: 1}, *stats)
}

func TestRegistrationRequestRepository_GetByIDForUpdateLocksOnPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRegistrationRequestRepository(db)

	rows := sqlmock.NewRows([]string{"id", "email", "username", "status"}).
		AddRow(7, "a@x.com", "alice", "pending")
	mock.ExpectQuery(`SELECT \* FROM "registration_requests" WHERE .* FOR UPDATE`).
		WillReturnRows(rows)

	req, err := repo.GetByIDForUpdate(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint(7), req.ID)
	assert.Equal(t, models.RegistrationStatusPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRequestRepository_CreateMapsPgUniqueViolation(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRegistrationRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "registration_requests"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_registration_requests_pending_email"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), pendingRequest("a@x.com", "alice"))
	assert.True(t, models.HasCode(err, models.CodeDuplicateRegistration))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.False(t, isUniqueConstraintError(nil))
	assert.True(t, isUniqueConstraintError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueConstraintError(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: users.email")))
	assert.False(t, isUniqueConstraintError(errors.New("connection refused")))
}
