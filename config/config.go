package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port   string
	AppEnv string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SessionSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NatsURL string

	CorsOrigins []string

	UploadBackend string
	UploadDir     string
	MaxUploadMB   int64
	DriveJSON     string
	DriveFolderID string
	PublicBaseURL string

	Geo GeoConfig

	CleanupInterval time.Duration
	ProximityRadius float64
}

// GeoConfig - границы для геопоиска
type GeoConfig struct {
	DefaultRadius  float64
	MinRadius      float64
	MaxRadius      float64
	ClampRadius    bool
	MaxPerPage     int
	HeatmapMaxGrid int
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:   valueOrDefault("PORT", "8080"),
		AppEnv: valueOrDefault("APP_ENV", "development"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     valueOrDefault("DB_PORT", "5432"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  valueOrDefault("DB_SSLMODE", "disable"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		AccessTTL:     durationOrDefault("JWT_ACCESS_TTL", time.Hour),
		RefreshTTL:    durationOrDefault("JWT_REFRESH_TTL", 30*24*time.Hour),
		SessionSecret: valueOrDefault("SESSION_SECRET", "something-very-secret"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       intOrDefault("REDIS_DB", 0),

		NatsURL: os.Getenv("NATS_URL"),

		CorsOrigins: listOrDefault("CORS_ORIGINS", []string{"http://localhost:3000"}),

		UploadBackend: valueOrDefault("UPLOAD_BACKEND", "local"),
		UploadDir:     valueOrDefault("UPLOAD_DIR", "./uploads"),
		MaxUploadMB:   int64(intOrDefault("MAX_UPLOAD_MB", 16)),
		DriveJSON:     os.Getenv("DRIVE_JSON"),
		DriveFolderID: os.Getenv("GOOGLE_DRIVE_FOLDER_ID"),
		PublicBaseURL: valueOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),

		Geo: GeoConfig{
			DefaultRadius:  floatOrDefault("DEFAULT_RADIUS", 500),
			MinRadius:      floatOrDefault("MIN_RADIUS", 50),
			MaxRadius:      floatOrDefault("MAX_RADIUS", 5000),
			ClampRadius:    boolOrDefault("RADIUS_CLAMP", true),
			MaxPerPage:     intOrDefault("MAX_PER_PAGE", 100),
			HeatmapMaxGrid: intOrDefault("HEATMAP_MAX_GRID", 100),
		},

		CleanupInterval: durationOrDefault("CLEANUP_INTERVAL", time.Hour),
		ProximityRadius: floatOrDefault("PROXIMITY_RADIUS", 1000),
	}

	if cfg.Geo.MinRadius <= 0 || cfg.Geo.MinRadius > cfg.Geo.MaxRadius {
		return nil, fmt.Errorf("invalid radius bounds: min=%v max=%v", cfg.Geo.MinRadius, cfg.Geo.MaxRadius)
	}
	if cfg.Geo.DefaultRadius < cfg.Geo.MinRadius || cfg.Geo.DefaultRadius > cfg.Geo.MaxRadius {
		return nil, fmt.Errorf("default radius %v outside [%v, %v]", cfg.Geo.DefaultRadius, cfg.Geo.MinRadius, cfg.Geo.MaxRadius)
	}
	if cfg.IsProduction() && valueOrDefault("SESSION_SECRET", "") == "" {
		return nil, errors.New("SESSION_SECRET is required in production")
	}
	if cfg.UploadBackend != "local" && cfg.UploadBackend != "drive" {
		return nil, fmt.Errorf("unknown UPLOAD_BACKEND %q", cfg.UploadBackend)
	}

	return cfg, nil
}

// DSN строка подключения для gorm
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func valueOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func intOrDefault(key string, fallback int) int {
	v, err := strconv.Atoi(valueOrDefault(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func floatOrDefault(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(valueOrDefault(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func boolOrDefault(key string, fallback bool) bool {
	v, err := strconv.ParseBool(valueOrDefault(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func durationOrDefault(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(valueOrDefault(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func listOrDefault(key string, fallback []string) []string {
	raw := valueOrDefault(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
