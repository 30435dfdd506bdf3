// Package testdb opens the PostGIS database for integration tests.
package testdb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"memory-lane-backend/config"
	"memory-lane-backend/models/users"
)

// Open подключается к базе из DB_* переменных, мигрирует схему и очищает таблицы.
// Без DB_HOST тест пропускается.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("DB_HOST") == "" {
		t.Skip("DB_HOST not set, skipping database test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := config.InitDB(cfg)
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	truncate(t, db)
	t.Cleanup(func() {
		truncate(t, db)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func truncate(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Exec("TRUNCATE notifications, interactions, memories, users RESTART IDENTITY CASCADE").Error)
}

// CreateUser - пользователь с уникальным именем
func CreateUser(t *testing.T, db *gorm.DB, username string) *users.User {
	t.Helper()
	u := &users.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		IsActive:     true,
	}
	u.PrivacySettings = datatypes.NewJSONType(users.DefaultPrivacySettings())
	require.NoError(t, db.Create(u).Error)
	return u
}
