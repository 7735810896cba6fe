package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/accessops/idm-access-manager/internal/api"
	"github.com/accessops/idm-access-manager/internal/backup"
	"github.com/accessops/idm-access-manager/internal/catalog"
	"github.com/accessops/idm-access-manager/internal/config"
	"github.com/accessops/idm-access-manager/internal/ipa"
	"github.com/accessops/idm-access-manager/internal/obs"
	"github.com/accessops/idm-access-manager/internal/planner"
	"github.com/accessops/idm-access-manager/internal/service"
	"github.com/accessops/idm-access-manager/internal/storage/sql"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				log.Fatalf("Failed to create data directory: %v", err)
			}
		}
	}

	// Initialize storage
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Initialize the identity management client (or file shim for testing)
	var client ipa.Client
	if cfg.UseFileShim() {
		log.Printf("Using file shim for the identity management server: %s", cfg.IPA.FileShim)
		client = ipa.NewFileShim(cfg.IPA.FileShim)
	} else {
		client = ipa.NewCLIClient(ipa.Credential{
			Principal: cfg.IPA.Principal,
			Keytab:    cfg.IPA.Keytab,
			CachePath: cfg.IPA.CachePath,
		})
		if err := client.Ping(context.Background()); err != nil {
			log.Printf("Warning: identity management server not reachable at startup: %v", err)
		}
	}

	// Metrics
	obs.MustRegister()

	// Services
	cat := catalog.Default()
	reconciler := service.NewReconciler(store, client, planner.New(cat), cfg.Apply.ObjectTimeout)
	access := service.NewAccessService(store, client, cat)
	backups := backup.NewWriter(cfg.Backup.Dir, cfg.Backup.Prefix)

	// Expiry sweeper
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go access.RunSweeper(sweepCtx, cfg.Access.SweepInterval)

	// Create router
	router := api.NewRouter(store, client, cat, reconciler, access, backups, cfg.Server.BootstrapAPIKey)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting IdM Access Manager on http://%s", cfg.Server.Addr())
	log.Printf("Press Ctrl+C to stop")

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stopSweep()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
