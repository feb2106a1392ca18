package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mirage-backend/internal/config"
	"mirage-backend/internal/database"
	"mirage-backend/internal/handlers"
	"mirage-backend/internal/middleware"
	"mirage-backend/internal/repository"
	"mirage-backend/internal/router"
	"mirage-backend/internal/services"
	"mirage-backend/internal/websocket"
	"mirage-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting Mirage Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	modelRepo := repository.NewModelRepo(pool)
	rateLimitRepo := repository.NewRateLimitRepo(pool)
	historyRepo := repository.NewHistoryRepo(redisClients.Queue)

	// ──── Step 5: Initialize Gemini Client ────
	llmService, err := services.NewLLMService(cfg.GeminiAPIKey)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer llmService.Close()
	log.Println("✓ Gemini Flash client initialized")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.SupabaseJWTSecret, cfg.AuthRequired)
	scrapeService := services.NewScrapeService(cfg.ScrapeEndpoint, cfg.ModalAuthToken)
	ragService := services.NewRAGService(cfg.RAGEndpoint, cfg.GetDataEndpoint, cfg.ModalAuthToken)
	notifier := services.NewNotifier(redisClients.Queue)

	chatService := services.NewChatService(
		modelRepo,
		rateLimitRepo,
		historyRepo,
		scrapeService,
		ragService,
		llmService,
		notifier,
		cfg.RateLimit,
		time.Duration(cfg.RateLimitWindowSeconds)*time.Second,
	)

	// ──── Initialize Handlers ────
	chatHandler := handlers.NewChatHandler(chatService)
	historyHandler := handlers.NewHistoryHandler(historyRepo)

	// ──── Step 6: Start Cleanup Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, modelRepo, ragService, 2)
	workerPool.Start()
	log.Println("✓ Cleanup worker pool started (2 goroutines)")

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, cfg.AuthRequired)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		chatHandler,
		historyHandler,
		wsHub,
		cfg.FrontendURL,
		cfg.StaticDir,
		cfg.IPRateLimit,
		time.Duration(cfg.IPRateLimitWindowSeconds)*time.Second,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // scrape + ingest can run long
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Mirage Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
