package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/scribely/backend/internal/api"
	"github.com/scribely/backend/internal/cache"
	"github.com/scribely/backend/internal/config"
	"github.com/scribely/backend/internal/database"
)

func main() {
	// Load .env in development; ignore absence in production
	_ = godotenv.Load()

	cfg := config.Load()

	log.Printf("[main] Starting Scribely API (env=%s)", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database (optional: the resolver runs cookie-only without it)
	var db *database.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.New(ctx, database.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			log.Fatalf("[main] Failed to connect to database: %v", err)
		}
		defer db.Close()
	} else {
		log.Println("[main] DATABASE_URL not set, durable entitlements disabled")
	}

	// Connect to Redis (optional: second-ranked counter backend)
	var redisCache *cache.Redis
	if cfg.RedisURL != "" {
		var err error
		redisCache, err = cache.NewRedisFromURL(cfg.RedisURL)
		if err != nil {
			log.Printf("[main] Redis unavailable, continuing without it: %v", err)
		} else {
			defer redisCache.Close()
		}
	}

	router := api.NewRouter(cfg, db, redisCache)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // generation calls are slow
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[main] Server listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[main] Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] Server forced to shutdown: %v", err)
	}

	log.Println("[main] Server stopped")
}
