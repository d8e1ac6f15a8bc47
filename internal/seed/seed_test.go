package seed

import (
	"context"
	"regexp"
	"testing"

	"soundcheck/internal/database"
	"soundcheck/internal/middleware"
	"soundcheck/internal/models"
	"soundcheck/internal/notifications"
	"soundcheck/internal/repository"
	"soundcheck/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type noopPublisher struct{}

func (noopPublisher) PublishAdminEvent(context.Context, string, map[string]any) {}

func newSeeder(t *testing.T) (*Seeder, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	registrations := service.NewRegistrationService(
		db,
		repository.NewRegistrationRequestRepository(db),
		repository.NewUserRepository(db),
		repository.NewAuthorRepository(db),
		notifications.NewLogMailer(middleware.Logger),
		noopPublisher{},
		service.RegistrationConfig{BaseURL: "http://localhost"},
	)
	return NewSeeder(registrations, 42), db
}

func TestParsePreset(t *testing.T) {
	p, err := ParsePreset([]byte(`
password: secret
admin_email: admin@x.com
random: 2
requests:
  - email: a@x.com
    username: alice
    status: APPROVED
`))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Random)
	require.Len(t, p.Requests, 1)
	assert.Equal(t, "alice", p.Requests[0].Username)

	tests := map[string]string{
		"missing password":     "random: 1",
		"negative random":      "password: x\nrandom: -1",
		"unknown status":       "password: x\nadmin_email: a@x.com\nrequests:\n  - {email: a@x.com, username: a, status: maybe}",
		"review without admin": "password: x\nrequests:\n  - {email: a@x.com, username: a, status: rejected}",
		"missing username":     "password: x\nrequests:\n  - {email: a@x.com}",
		"not yaml":             "password: [",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePreset([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadPreset_BuiltIn(t *testing.T) {
	p, err := LoadPreset("demo")
	require.NoError(t, err)
	assert.NotEmpty(t, p.Requests)
	assert.Equal(t, "root@soundcheck.local", p.AdminEmail)

	_, err = LoadPreset("does-not-exist")
	assert.Error(t, err)
}

func TestSeeder_Apply(t *testing.T) {
	s, db := newSeeder(t)
	ctx := context.Background()

	p := &Preset{
		Password:   "Demo!Passw0rd",
		AdminEmail: "admin@x.com",
		Requests: []RequestSpec{
			{Email: "ada@example.com", Username: "ada", AuthorName: "Ada"},
			{Email: "grace@example.com", Username: "grace", Status: "approved"},
			{Email: "spam@example.com", Username: "spammer", Status: "rejected"},
		},
	}

	res, err := s.Apply(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, Result{Pending: 1, Approved: 1, Rejected: 1}, *res)

	var user models.User
	require.NoError(t, db.Where("email = ?", "grace@example.com").First(&user).Error)
	assert.Equal(t, models.RoleAuthor, user.Role)
	var author models.Author
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&author).Error)
	assert.True(t, author.IsVerified)
	assert.Equal(t, "grace", author.AuthorName)

	var rejected models.RegistrationRequest
	require.NoError(t, db.Where("email = ?", "spam@example.com").First(&rejected).Error)
	require.NotNil(t, rejected.AdminComment)
	assert.Equal(t, defaultRejectComment, *rejected.AdminComment)

	// A second run collides with the pending and approved entries.
	res, err = s.Apply(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Rejected)
}

func TestSeeder_ApplyStatusWithSurroundingSpace(t *testing.T) {
	s, db := newSeeder(t)

	res, err := s.Apply(context.Background(), &Preset{
		Password:   "Demo!Passw0rd",
		AdminEmail: "admin@x.com",
		Requests: []RequestSpec{
			{Email: "grace@example.com", Username: "grace", Status: " Approved "},
			{Email: "spam@example.com", Username: "spammer", Status: "\trejected"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Approved: 1, Rejected: 1}, *res)

	var req models.RegistrationRequest
	require.NoError(t, db.Where("email = ?", "grace@example.com").First(&req).Error)
	assert.Equal(t, models.RegistrationStatusApproved, req.Status)
}

func TestSeeder_RandomRequestsStayPendingWithoutAdmin(t *testing.T) {
	s, db := newSeeder(t)

	res, err := s.Apply(context.Background(), &Preset{Password: "Demo!Passw0rd", Random: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pending+res.Skipped)

	var requests []models.RegistrationRequest
	require.NoError(t, db.Find(&requests).Error)
	username := regexp.MustCompile(`^[a-z0-9]+_[a-z0-9][0-9]+$`)
	for _, r := range requests {
		assert.Equal(t, models.RegistrationStatusPending, r.Status)
		assert.Regexp(t, username, r.Username)
		assert.NotEmpty(t, r.AuthorName)
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "oconner", slug("O'Conner"))
	assert.Equal(t, "x", slug("---"))
}
