package httpCors

import (
	"github.com/rs/cors"
)

func CorsSettings(origins []string, debug bool) *cors.Cors {
	c := cors.New(cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedOrigins:   origins, // CORS_ORIGINS, "*" разрешает всех
		AllowCredentials: true,
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Authorization", "Retry-After"},
		Debug:            debug,
	})
	return c
}
