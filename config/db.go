package config

import (
	"fmt"
	"time"

	"github.com/gorilla/sessions"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"memory-lane-backend/models/interaction"
	"memory-lane-backend/models/memory"
	"memory-lane-backend/models/users"
)

var (
	DB    *gorm.DB
	Store *sessions.CookieStore
)

// InitDB открывает подключение к PostgreSQL и сохраняет его в config.DB
func InitDB(cfg *Config) (*gorm.DB, error) {
	level := gormlogger.Warn
	if !cfg.IsProduction() {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	DB = db
	return db, nil
}

// InitSessions настраивает cookie store для браузерного входа
func InitSessions(cfg *Config) *sessions.CookieStore {
	Store = sessions.NewCookieStore([]byte(cfg.SessionSecret))
	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
	}
	return Store
}

// schemaStatements выполняются после AutoMigrate. Все идемпотентны.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,

	`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM information_schema.columns
			WHERE table_name = 'memories' AND column_name = 'location') THEN
			ALTER TABLE memories ADD COLUMN location geography(Point, 4326)
				GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)::geography) STORED;
		END IF;
	END $$`,

	`CREATE INDEX IF NOT EXISTS idx_memories_location ON memories USING GIST (location)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_creator_created ON memories (creator_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_privacy_active ON memories (privacy_level, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_tags ON memories USING GIN (category_tags)`,

	`CREATE INDEX IF NOT EXISTS idx_interactions_user_memory_type ON interactions (user_id, memory_id, interaction_type)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_memory_type_created ON interactions (memory_id, interaction_type, created_at DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_interactions_active_like ON interactions (user_id, memory_id)
		WHERE interaction_type = 'like' AND is_active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_interactions_report ON interactions (user_id, memory_id)
		WHERE interaction_type = 'report'`,

	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_users_username_lower ON users (lower(username))`,
}

// Migrate создает таблицы и геоиндексы
func Migrate(db *gorm.DB) error {
	if err := db.Exec(schemaStatements[0]).Error; err != nil {
		return fmt.Errorf("enable postgis: %w", err)
	}

	err := db.AutoMigrate(
		&users.User{},
		&memory.Memory{},
		&interaction.Interaction{},
		&interaction.Notification{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	for _, stmt := range schemaStatements[1:] {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
