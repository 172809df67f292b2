package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/calql/internal/api"
	"github.com/rpattn/calql/internal/auth"
	"github.com/rpattn/calql/internal/calendar"
	"github.com/rpattn/calql/internal/config"
	"github.com/rpattn/calql/internal/db"
	"github.com/rpattn/calql/internal/export"
	"github.com/rpattn/calql/internal/middleware"
	"github.com/rpattn/calql/internal/notify"
	"github.com/rpattn/calql/internal/repository"

	"github.com/rs/cors"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, conn.Pool, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	eventRepo := repository.NewEventRepository(conn.Pool)
	roleRepo := repository.NewRoleRepository(conn.Pool)
	historyRepo := repository.NewHistoryRepository(conn.Pool)
	userRepo := repository.NewUserRepository(conn.Pool)

	// Wire services
	service := calendar.NewService(eventRepo, roleRepo, historyRepo, userRepo, notify.NewLogNotifier())
	exportService := export.NewService(eventRepo, historyRepo, userRepo)

	mux := http.NewServeMux()
	api.NewHandler(service).Register(mux)
	export.NewHTTPHandler(exportService).Register(mux)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	verifier := auth.NewTokenVerifier(cfg.AuthSecret)
	handler := corsHandler.Handler(
		middleware.LoggingMiddleware(
			middleware.AuthMiddleware(verifier)(
				middleware.DataLoaderMiddleware(userRepo)(mux),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting calendar API on %s", cfg.ServerAddr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
