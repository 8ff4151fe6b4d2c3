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

	"bridge-backend/internal/app"
	"bridge-backend/internal/config"
	"bridge-backend/internal/db"
	"bridge-backend/internal/handlers"
	"bridge-backend/internal/router"

	"github.com/sirupsen/logrus"
)

func main() {
	log.Println("🚀 Starting bridge backend...")

	if err := config.LoadConfig(os.Getenv("CONFIG_PATH")); err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	db.InitDB()

	container, err := app.InitializeContainer()
	if err != nil {
		log.Fatalf("❌ Failed to initialize services: %v", err)
	}
	defer container.Cleanup()

	logger := logrus.New()

	authHandler := handlers.NewAuthHandler()
	adminAuthHandler := handlers.NewAdminAuthHandler()
	bridgeHandler := handlers.NewBridgeHandler(
		container.Orchestrator,
		container.StateTracker,
		container.TransactionRepo,
		logger,
	)
	adminBridgeHandler := handlers.NewAdminBridgeHandler(
		container.StateTracker,
		container.TransactionRepo,
		logger,
	)
	wsHandler := handlers.NewWebSocketHandler(container.Broadcaster, container.StateTracker)

	r := router.SetupRouter(
		authHandler,
		adminAuthHandler,
		bridgeHandler,
		adminBridgeHandler,
		wsHandler,
		handlers.ReadinessCheckHandler(container.NATSClient),
	)

	host := config.AppConfig.Server.Host
	port := config.AppConfig.Server.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Printf("✅ HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Forced shutdown: %v", err)
	}
	log.Println("✅ Server stopped")
}
