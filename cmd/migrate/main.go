package main

import (
	"context"
	"os"

	"mapmates-ledger/internal/config"
	"mapmates-ledger/internal/util"
	"mapmates-ledger/pkg/db"
)

// Applies the ledger schema and exits.
func main() {
	util.InitLogger()
	logger := util.GetLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	database, err := db.NewPostgresDB(cfg.DB)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(context.Background(), database); err != nil {
		logger.Error("Migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Migration completed.")
}
