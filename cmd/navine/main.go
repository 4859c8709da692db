package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NavineDevs/Navine-File-Sharer/internal/server"
	"github.com/NavineDevs/Navine-File-Sharer/internal/store"
)

func main() {
	cfg, err := server.ConfigFromEnv()
	if err != nil {
		log.Printf("service=navine msg=%q err=%v", "bad_configuration", err)
		os.Exit(1)
	}

	st, err := openStore(cfg)
	if err != nil {
		log.Printf("service=navine msg=%q err=%v", "store_open_failed", err)
		os.Exit(1)
	}

	objects, err := openObjects(cfg)
	if err != nil {
		log.Printf("service=navine msg=%q err=%v", "object_store_open_failed", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg, st, objects)
	if err != nil {
		log.Printf("service=navine msg=%q err=%v", "server_init_failed", err)
		os.Exit(1)
	}

	// Background retention sweeper, cancelled on shutdown.
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go srv.Sweeper().Run(sweepCtx)

	// Start the HTTP server in a background goroutine so we can listen for
	// OS signals while it runs.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("service=navine msg=%q addr=%s version=%s commit=%s",
			"starting", cfg.Addr, cfg.Build.Version, cfg.Build.Commit)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("service=navine msg=%q signal=%s", "shutting_down", sig.String())
		stopSweeper()
		// Give the server 5 seconds to finish in-flight requests.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("service=navine msg=%q err=%v", "shutdown_error", err)
			os.Exit(1)
		}
		log.Printf("service=navine msg=%q", "shutdown_complete")
	case err := <-errCh:
		if err != nil {
			log.Printf("service=navine msg=%q err=%v", "server_error", err)
			os.Exit(1)
		}
	}
}

// openStore selects the metadata backend: a single JSON file replaced
// atomically on each mutation, or PostgreSQL.
func openStore(cfg server.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := store.OpenDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Printf("service=navine msg=%q", "running_migrations")
		return store.NewPGStore(db)
	default:
		return store.NewFileStore(filepath.Join(cfg.DataDir, "metadata.json"))
	}
}

// openObjects selects where finished objects live: the local objects
// directory or an S3-compatible bucket.
func openObjects(cfg server.Config) (server.ObjectStore, error) {
	switch cfg.ObjectBackend {
	case "s3":
		return server.NewS3Objects(cfg)
	default:
		return server.NewDiskObjects(filepath.Join(cfg.DataDir, "objects"))
	}
}
