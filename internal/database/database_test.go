package database

import (
	"context"
	"testing"
	"time"

	"soundcheck/internal/config"
	"soundcheck/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestConfigurePool(t *testing.T) {
	db := openTestDB(t)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		wantSQL  bool
		wantAuto bool
		wantErr  bool
	}{
		{"hybrid in development", config.Config{Env: "development"}, true, true, false},
		{"hybrid in production", config.Config{Env: "production", DBSchemaMode: "hybrid"}, true, false, false},
		{"sql only", config.Config{Env: "development", DBSchemaMode: "sql"}, true, false, false},
		{"auto refused in production", config.Config{Env: "production", DBSchemaMode: "auto"}, false, false, true},
		{"auto allowed when destructive opted in", config.Config{Env: "production", DBSchemaMode: "auto", DBAutoMigrateAllowDestructive: true}, false, true, false},
		{"sqlite always auto", config.Config{Env: "development", DBDriver: DriverSQLite, DBSchemaMode: "sql"}, false, true, false},
		{"unknown mode", config.Config{DBSchemaMode: "yolo"}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runSQL, runAuto, err := schemaPolicy(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, runSQL)
			assert.Equal(t, tt.wantAuto, runAuto)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	all := GetMigrations()
	require.Len(t, all, 2)
	assert.Equal(t, "000001_init_identity", all[0].String())
	assert.Equal(t, "000002_registration_requests", all[1].String())
	assert.Contains(t, all[1].UpScript, "WHERE status = 'pending'")
	assert.NotEmpty(t, all[1].DownScript)

	assert.NotNil(t, GetMigrationByVersion(2))
	assert.Nil(t, GetMigrationByVersion(99))
}

func TestValidateAppliedVersions(t *testing.T) {
	registered := []Migration{{Version: 1}, {Version: 2}}
	assert.NoError(t, validateAppliedVersions(nil, registered))
	assert.NoError(t, validateAppliedVersions([]int{1, 2}, registered))
	assert.ErrorContains(t, validateAppliedVersions([]int{1, 7}, registered), "000007")
}

func TestApplySchema_SQLiteCreatesPartialPendingIndex(t *testing.T) {
	db := openTestDB(t)
	cfg := &config.Config{Env: "test", DBDriver: DriverSQLite}
	require.NoError(t, ApplySchema(context.Background(), db, cfg))

	pending := func(email string) *models.RegistrationRequest {
		return &models.RegistrationRequest{
			Email:    email,
			Username: "alice",
			Password: "hash",
			Status:   models.RegistrationStatusPending,
		}
	}

	require.NoError(t, db.Create(pending("a@x.com")).Error)
	assert.Error(t, db.Create(pending("a@x.com")).Error, "second pending row for the same email must violate the partial index")

	now := time.Now()
	processed := pending("a@x.com")
	processed.Status = models.RegistrationStatusRejected
	processed.ProcessedAt = &now
	assert.NoError(t, db.Create(processed).Error, "processed rows are not constrained")

	var count int64
	require.NoError(t, db.Model(&models.RegistrationRequest{}).Where("email = ?", "a@x.com").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestGetSchemaStatus_SQLite(t *testing.T) {
	db := openTestDB(t)
	status, err := GetSchemaStatus(context.Background(), db, &config.Config{Env: "test", DBDriver: DriverSQLite})
	require.NoError(t, err)
	assert.False(t, status.WillRunSQL)
	assert.True(t, status.WillRunAutoMigrate)
	assert.Empty(t, status.PendingMigrations)
}

func TestPersistentModels(t *testing.T) {
	var names []string
	for _, m := range PersistentModels() {
		switch m.(type) {
		case *models.User:
			names = append(names, "users")
		case *models.Author:
			names = append(names, "authors")
		case *models.RegistrationRequest:
			names = append(names, "registration_requests")
		}
	}
	assert.ElementsMatch(t, []string{"users", "authors", "registration_requests"}, names)
}
