package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"careerchat/internal/config"
	"careerchat/internal/logging"
	"careerchat/internal/storage"
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "careerchat",
		Short:         "Career counseling chat server and terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("CAREERCHAT_CONFIG"), "path to config.json")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newMigrateCmd(&cfgPath),
		newChatCmd(),
	)
	return root
}

func newMigrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap(*cfgPath)
			if err != nil {
				return err
			}
			db, dbType, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			logger.WithField("database", dbType).Info("schema is up to date")
			return nil
		},
	}
}

func bootstrap(cfgPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.New(cfg.Log), nil
}

// openDatabase opens the configured database and applies the schema.
func openDatabase(cfg *config.Config, logger logrus.FieldLogger) (*sql.DB, string, error) {
	dbType, _ := cfg.Database()
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(db, dbType); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("migrate database: %w", err)
	}
	logger.WithField("database", dbType).Debug("database ready")
	return db, dbType, nil
}
