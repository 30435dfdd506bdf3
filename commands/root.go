// Package commands wires configuration, storage and transports into the
// memory-lane binary: serve, worker and migrate.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"memory-lane-backend/config"
	"memory-lane-backend/logger"
	"memory-lane-backend/services/notify"
)

var (
	envFile string
	cfg     *config.Config
)

// RootCmd - корневая команда
var RootCmd = &cobra.Command{
	Use:           "memory-lane",
	Short:         "Location-based memories backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load env file %s: %w", envFile, err)
			}
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger.Init(cfg.AppEnv)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to an env file loaded before the process environment (default: .env if present)")
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		logger.Get().Error("command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// openDB - подключение к PostgreSQL
func openDB() (*gorm.DB, error) {
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	logger.Get().Info("database connected", zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))
	return db, nil
}

// connectNATS - nil без NATS_URL
func connectNATS(log *zap.Logger) (*notify.NATS, error) {
	if cfg.NatsURL == "" {
		log.Warn("NATS_URL not set: background jobs and cross-process realtime events are disabled")
		return nil, nil
	}
	return notify.Connect(cfg.NatsURL, log)
}
