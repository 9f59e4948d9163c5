package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/promptshield/promptshield/pkg/config"
	"github.com/promptshield/promptshield/pkg/registry"
	"github.com/promptshield/promptshield/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "path to server config YAML (defaults apply when omitted)")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Container platforms inject the port via the environment
	if port := os.Getenv("PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := registry.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	srv := server.New(reg, cfg)
	if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
