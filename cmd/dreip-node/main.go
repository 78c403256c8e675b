package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/verivote/dreip-node/authority"
	"github.com/verivote/dreip-node/db"
	"github.com/verivote/dreip-node/db/metadb"
	"github.com/verivote/dreip-node/log"
	"github.com/verivote/dreip-node/service"
	"github.com/verivote/dreip-node/storage"
)

// Services holds all the running services
type Services struct {
	Storage *storage.Storage
	API     *service.APIService
	Closer  *service.ElectionCloser
}

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting dreip-node", "version", Version)

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup services
	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}

	// Open the database
	database, err := metadb.New(db.TypePebble, cfg.Datadir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	services.Storage = storage.New(database)

	auth := authority.New(services.Storage)

	// Start the API service
	services.API = service.NewAPI(auth, cfg.API.Host, cfg.API.Port, false)
	if err := services.API.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start API service: %w", err)
	}

	// Start the election closer unless disabled
	if cfg.Closer.Interval > 0 {
		services.Closer = service.NewElectionCloser(auth, cfg.Closer.Interval)
		if err := services.Closer.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start election closer: %w", err)
		}
	}

	return services, nil
}

// shutdownServices stops all services in reverse order of startup
func shutdownServices(services *Services) {
	if services.Closer != nil {
		services.Closer.Stop()
	}
	if services.API != nil {
		services.API.Stop()
	}
	if services.Storage != nil {
		services.Storage.Close()
	}
	log.Infow("services stopped")
}
