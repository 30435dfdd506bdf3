package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"memory-lane-backend/config"
	"memory-lane-backend/controllers"
	"memory-lane-backend/controllers/authentication"
	"memory-lane-backend/controllers/geospatial"
	"memory-lane-backend/controllers/interactions"
	"memory-lane-backend/controllers/memories"
	"memory-lane-backend/controllers/realtime"
	"memory-lane-backend/controllers/uploads"
	"memory-lane-backend/logger"
	"memory-lane-backend/services/discovery"
	"memory-lane-backend/services/engagement"
	"memory-lane-backend/services/memorystore"
	"memory-lane-backend/services/notify"
	"memory-lane-backend/services/ratelimit"
	"memory-lane-backend/services/storage"
)

const shutdownTimeout = 15 * time.Second

var migrateOnStart bool

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and websocket server",
		RunE:  runServe,
	}
	cmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Apply migrations before serving")
	RootCmd.AddCommand(cmd)
}

func newStorage(ctx context.Context) (storage.Backend, string, error) {
	if cfg.UploadBackend == "drive" {
		d, err := storage.NewDrive(ctx, cfg.DriveJSON, cfg.DriveFolderID)
		return d, "", err
	}
	l, err := storage.NewLocal(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, "", err
	}
	return l, l.Dir(), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Get()
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB()
	if err != nil {
		return err
	}
	if migrateOnStart {
		if err := config.Migrate(db); err != nil {
			return err
		}
	}

	rdb, err := config.InitRedis(cfg)
	if err != nil {
		return err
	}
	var blocklist authentication.Blocklist
	if rdb != nil {
		defer rdb.Close()
		blocklist = authentication.NewRedisBlocklist(rdb)
	} else {
		log.Warn("REDIS_ADDR not set: token revocation is process-local and rate limits are off")
	}
	limiter := ratelimit.New(rdb, log.Named("ratelimit"))

	hub := realtime.NewHub(log.Named("realtime"))
	defer hub.Close()

	nc, err := connectNATS(log)
	if err != nil {
		return err
	}
	var events notify.Publisher = realtime.Publisher{Hub: hub}
	if nc != nil {
		defer nc.Close()
		events = nc
		if _, err := hub.Subscribe(nc.Conn()); err != nil {
			return fmt.Errorf("subscribe realtime hub: %w", err)
		}
	}

	backend, uploadDir, err := newStorage(ctx)
	if err != nil {
		return err
	}

	tokens := authentication.NewTokenManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, blocklist)
	auth := authentication.New(db, tokens, config.InitSessions(cfg), log.Named("auth"))

	router := controllers.NewRouter(controllers.Deps{
		DB:           db,
		Auth:         auth,
		Memories:     memories.New(memorystore.New(db, events, log.Named("memorystore")), auth, limiter, log.Named("memories")),
		Geo:          geospatial.New(discovery.New(db, cfg.Geo, log.Named("discovery")), auth, limiter, log.Named("geo")),
		Interactions: interactions.New(engagement.New(db, events, log.Named("engagement")), auth),
		Uploads:      uploads.New(storage.NewService(backend, cfg.MaxUploadMB), auth, limiter, log.Named("uploads")),
		Realtime:     realtime.NewHandler(hub, auth, cfg.CorsOrigins),
		UploadDir:    uploadDir,
		CorsOrigins:  cfg.CorsOrigins,
		Debug:        !cfg.IsProduction(),
		Log:          log.Named("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server started", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
