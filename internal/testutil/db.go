package testutil

import (
	"path/filepath"
	"testing"

	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a throwaway sqlite database with every relational model
// migrated. The file lives under t.TempDir so concurrent connections share it.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.NotificationPreferences{},
		&models.Notification{},
		&models.Follow{},
		&models.Like{},
		&models.Comment{},
		&models.FriendRequest{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// CreateUser inserts a user with a unique username and email.
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Name:     username,
		Email:    username + "@ridehub.test",
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
