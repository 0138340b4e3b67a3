package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrew/rag-chat/pkg/app"
	"github.com/andrew/rag-chat/pkg/config"
	"github.com/andrew/rag-chat/pkg/logging"
	"github.com/andrew/rag-chat/pkg/server"
)

func main() {
	cfg := config.Load()

	port := flag.Int("port", cfg.HTTPPort, "Port to listen on")
	debug := flag.Bool("debug", cfg.Debug, "Enable debug output")
	provider := flag.String("llm", cfg.LLMProvider, "Completion provider (ollama or groq)")
	sessionStore := flag.String("session-store", cfg.SessionStore, "Session store backend (memory, sqlite or bolt)")
	sessionDSN := flag.String("session-dsn", cfg.SessionDSN, "Session store path for sqlite or bolt")
	flag.Parse()

	cfg.HTTPPort = *port
	cfg.Debug = *debug
	cfg.LLMProvider = *provider
	cfg.SessionStore = *sessionStore
	cfg.SessionDSN = *sessionDSN
	logging.SetDebug(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rag, err := app.Build(ctx, cfg)
	if err != nil {
		logging.Fatal(err)
	}
	defer rag.Close()

	e := server.New(server.NewHandler(rag.Chat))

	go func() {
		log.Printf("Starting RAG service on port %d (provider: %s, sessions: %s)", cfg.HTTPPort, cfg.LLMProvider, cfg.SessionStore)
		if err := e.Start(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}
