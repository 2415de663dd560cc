package main

import (
	"os"

	"github.com/joho/godotenv"

	"lifelog-ingest/internal/app"
	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/config"
)

func main() {
	// Optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logging.Init()
	logger := logging.Global()
	defer logging.MustSync()

	cfg := config.Load()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("Startup failed", err)
		os.Exit(1)
	}

	if err := a.Run(); err != nil {
		logger.Error("Server exited with error", err)
		os.Exit(1)
	}
}
