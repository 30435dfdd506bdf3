package controllers

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"memory-lane-backend/controllers/authentication"
	"memory-lane-backend/controllers/geospatial"
	"memory-lane-backend/controllers/httpCors"
	"memory-lane-backend/controllers/interactions"
	"memory-lane-backend/controllers/memories"
	"memory-lane-backend/controllers/realtime"
	"memory-lane-backend/controllers/respond"
	"memory-lane-backend/controllers/uploads"
)

// Deps - собранные обработчики для роутера
type Deps struct {
	DB           *gorm.DB
	Auth         *authentication.Handler
	Memories     *memories.Handler
	Geo          *geospatial.Handler
	Interactions *interactions.Handler
	Uploads      *uploads.Handler
	Realtime     *realtime.Handler
	// UploadDir - каталог локального бэкенда; пусто, если файлы в Drive
	UploadDir   string
	CorsOrigins []string
	Debug       bool
	Log         *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(recoverer(d.Log), requestLogger(d.Log))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health(w, r, d.DB)
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	a := api.PathPrefix("/auth").Subrouter()
	a.HandleFunc("/register", d.Auth.Register).Methods(http.MethodPost)
	a.HandleFunc("/login", d.Auth.Login).Methods(http.MethodPost)
	a.HandleFunc("/refresh", d.Auth.Refresh).Methods(http.MethodPost)
	a.HandleFunc("/logout", d.Auth.Logout).Methods(http.MethodPost)
	a.HandleFunc("/verify-token", d.Auth.VerifyToken).Methods(http.MethodGet)
	a.HandleFunc("/change-password", d.Auth.ChangePassword).Methods(http.MethodPost)
	a.HandleFunc("/check-username", d.Auth.CheckUsername).Methods(http.MethodGet)
	a.HandleFunc("/check-email", d.Auth.CheckEmail).Methods(http.MethodGet)
	a.HandleFunc("/profile", d.Auth.GetProfile).Methods(http.MethodGet)
	a.HandleFunc("/profile", d.Auth.UpdateProfile).Methods(http.MethodPut)
	a.HandleFunc("/privacy", d.Auth.UpdatePrivacy).Methods(http.MethodPut)

	u := api.PathPrefix("/users").Subrouter()
	u.HandleFunc("/search", d.Auth.SearchUsers).Methods(http.MethodGet)
	u.HandleFunc("/me/stats/refresh", d.Memories.RefreshStats).Methods(http.MethodPost)
	u.HandleFunc("/{id}", d.Auth.GetUser).Methods(http.MethodGet)
	u.HandleFunc("/{id}/memories", d.Memories.UserMemories).Methods(http.MethodGet)

	m := api.PathPrefix("/memories").Subrouter()
	m.HandleFunc("", d.Memories.CreateMemory).Methods(http.MethodPost)
	m.HandleFunc("/feed", d.Memories.Feed).Methods(http.MethodGet)
	m.HandleFunc("/search", d.Memories.Search).Methods(http.MethodGet)
	m.HandleFunc("/{id}", d.Memories.GetMemory).Methods(http.MethodGet)
	m.HandleFunc("/{id}", d.Memories.UpdateMemory).Methods(http.MethodPut)
	m.HandleFunc("/{id}", d.Memories.DeleteMemory).Methods(http.MethodDelete)
	m.HandleFunc("/{id}/tags", d.Memories.AddTags).Methods(http.MethodPost)

	g := api.PathPrefix("/geo").Subrouter()
	g.HandleFunc("/discover", d.Geo.Discover).Methods(http.MethodGet)
	g.HandleFunc("/heatmap", d.Geo.Heatmap).Methods(http.MethodGet)
	g.HandleFunc("/popular-areas", d.Geo.PopularAreas).Methods(http.MethodGet)
	g.HandleFunc("/discover-route", d.Geo.DiscoverRoute).Methods(http.MethodPost)
	g.HandleFunc("/distance", d.Geo.Distance).Methods(http.MethodGet)
	g.HandleFunc("/nearby-users", d.Geo.NearbyUsers).Methods(http.MethodGet)
	g.HandleFunc("/location-stats", d.Geo.LocationStats).Methods(http.MethodGet)

	i := api.PathPrefix("/interactions").Subrouter()
	i.HandleFunc("/memories/{id}/like", d.Interactions.Like).Methods(http.MethodPost)
	i.HandleFunc("/memories/{id}/like", d.Interactions.Unlike).Methods(http.MethodDelete)
	i.HandleFunc("/memories/{id}/like", d.Interactions.CheckLike).Methods(http.MethodGet)
	i.HandleFunc("/memories/{id}/likes", d.Interactions.Likes).Methods(http.MethodGet)
	i.HandleFunc("/memories/{id}/comments", d.Interactions.CreateComment).Methods(http.MethodPost)
	i.HandleFunc("/memories/{id}/comments", d.Interactions.Comments).Methods(http.MethodGet)
	i.HandleFunc("/memories/{id}/share", d.Interactions.Share).Methods(http.MethodPost)
	i.HandleFunc("/memories/{id}/report", d.Interactions.Report).Methods(http.MethodPost)
	i.HandleFunc("/comments/{id}", d.Interactions.UpdateComment).Methods(http.MethodPut)
	i.HandleFunc("/comments/{id}", d.Interactions.DeleteComment).Methods(http.MethodDelete)
	i.HandleFunc("/users/{id}", d.Interactions.UserInteractions).Methods(http.MethodGet)

	n := api.PathPrefix("/notifications").Subrouter()
	n.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		interactions.GetNotifications(w, r, d.DB, d.Auth)
	}).Methods(http.MethodGet)
	n.HandleFunc("/read-all", func(w http.ResponseWriter, r *http.Request) {
		interactions.MarkAllNotificationsAsRead(w, r, d.DB, d.Auth)
	}).Methods(http.MethodPost)
	n.HandleFunc("/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		interactions.MarkNotificationAsRead(w, r, d.DB, d.Auth)
	}).Methods(http.MethodPost)
	n.HandleFunc("/{id}", func(w http.ResponseWriter, r *http.Request) {
		interactions.DeleteNotification(w, r, d.DB, d.Auth)
	}).Methods(http.MethodDelete)

	api.HandleFunc("/uploads/limits", d.Uploads.Limits).Methods(http.MethodGet)
	api.HandleFunc("/uploads/{kind}", d.Uploads.Upload).Methods(http.MethodPost)
	if d.UploadDir != "" {
		r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(d.UploadDir))))
	}

	r.HandleFunc("/ws", d.Realtime.ServeWS)

	return httpCors.CorsSettings(d.CorsOrigins, d.Debug).Handler(r)
}

func health(w http.ResponseWriter, r *http.Request, db *gorm.DB) {
	status := map[string]string{"status": "ok", "database": "ok"}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		status["status"] = "degraded"
		status["database"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	respond.JSON(w, code, status)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap - для http.ResponseController
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func requestLogger(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func recoverer(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic in handler",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
