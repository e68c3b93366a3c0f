package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"siteplan/internal/capability"
	"siteplan/internal/config"
	"siteplan/internal/gateway/handler"
	"siteplan/internal/gateway/server"
	"siteplan/internal/raster"
	"siteplan/internal/session"
	"siteplan/internal/snapshot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	caps, err := buildAdapter(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize adapter: %v", err)
	}

	store := buildStore(cfg)
	mgr := session.NewManager(caps, raster.NewPoppler(cfg.Raster.PopplerBinary), store)
	mgr.SetRasterMaxDim(cfg.Raster.MaxDim)

	sessions := handler.NewSessionHandler(mgr)
	watch := handler.NewWatchHandler(mgr)
	srv := server.New(cfg.Port, server.NewMux(sessions, watch))

	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

func buildAdapter(cfg *config.Config) (capability.Adapter, error) {
	if cfg.Gemini.Fake {
		log.Println("Using fake capability adapter")
		return capability.NewFake(), nil
	}
	return capability.NewGeminiAdapter(context.Background(), cfg.Gemini.TextModel, cfg.Gemini.ImageModel)
}

// buildStore picks the snapshot backend: postgres, then s3, then local JSON
// files. Every backend sits behind the LRU cache.
func buildStore(cfg *config.Config) snapshot.Store {
	var backend snapshot.Store
	if dsn := cfg.Snapshot.PostgresDSN; dsn != "" {
		pg, err := snapshot.NewPostgresStore(dsn)
		if err != nil {
			log.Printf("Postgres snapshot store unavailable, falling back: %v", err)
		} else {
			backend = pg
		}
	}
	if backend == nil && cfg.Snapshot.S3.Endpoint != "" {
		s3, err := snapshot.NewS3Store(snapshot.S3Config{
			Endpoint:  cfg.Snapshot.S3.Endpoint,
			Region:    cfg.Snapshot.S3.Region,
			AccessKey: cfg.Snapshot.S3.AccessKey,
			SecretKey: cfg.Snapshot.S3.SecretKey,
			Bucket:    cfg.Snapshot.S3.Bucket,
			UseSSL:    cfg.Snapshot.S3.UseSSL,
		})
		if err != nil {
			log.Printf("S3 snapshot store unavailable, falling back: %v", err)
		} else {
			backend = s3
		}
	}
	if backend == nil {
		backend = snapshot.NewFileStore(cfg.Snapshot.Dir)
	}
	cached, err := snapshot.NewCached(backend, cfg.Snapshot.CacheSize)
	if err != nil {
		return backend
	}
	return cached
}
