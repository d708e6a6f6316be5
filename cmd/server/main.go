package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"relay-chat/internal/app"
	"relay-chat/internal/config"
)

func main() {
	// 1. Config & Flags
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage, services, routes
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to start: %v", err)
	}
	defer application.Close()

	// 3. Serve until interrupted
	if err := application.Run(ctx); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}
