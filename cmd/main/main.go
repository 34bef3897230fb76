package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"aliexpress/scraper/internal/config"
	"aliexpress/scraper/internal/container"

	log "github.com/sirupsen/logrus"
)

func main() {
	log.Info("Starting AliExpress listing scraper...")

	// Load configuration using viper
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Info("Configuration loaded successfully")

	// Initialize container with all dependencies
	app, err := container.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the scrape
	result, err := app.Run(ctx)
	if err != nil {
		log.Fatalf("Scrape exited with error: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}

	log.Infof("Scrape finished: %d suppliers, %d products for %q",
		len(result.Suppliers), result.TotalProducts(), result.Query)
}
