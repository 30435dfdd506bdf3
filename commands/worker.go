package commands

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"memory-lane-backend/logger"
	"memory-lane-backend/services/discovery"
	"memory-lane-backend/services/memorystore"
	"memory-lane-backend/worker"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "worker",
		Short: "Consume notification and proximity jobs, expire old memories",
		RunE:  runWorker,
	})
}

func runWorker(cmd *cobra.Command, args []string) error {
	log := logger.Get()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB()
	if err != nil {
		return err
	}
	nc, err := connectNATS(log)
	if err != nil {
		return err
	}
	if nc == nil {
		return errors.New("worker requires NATS_URL")
	}
	defer nc.Close()

	w := worker.New(
		db,
		discovery.New(db, cfg.Geo, log.Named("discovery")),
		memorystore.New(db, nc, log.Named("memorystore")),
		nc,
		log.Named("worker"),
		worker.Options{ProximityRadius: cfg.ProximityRadius, CleanupInterval: cfg.CleanupInterval},
	)
	return w.Run(ctx, nc.Conn())
}
