package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/andrew/rag-chat/pkg/app"
	"github.com/andrew/rag-chat/pkg/config"
	"github.com/andrew/rag-chat/pkg/logging"
)

func main() {
	cfg := config.Load()

	debug := flag.Bool("debug", cfg.Debug, "Enable debug output")
	provider := flag.String("llm", cfg.LLMProvider, "Completion provider (ollama or groq)")
	model := flag.String("model", cfg.OllamaModel, "Model name to use with Ollama")
	qdrantHost := flag.String("qdrant-host", cfg.QdrantHost, "Qdrant server host")
	qdrantPort := flag.Int("qdrant-port", cfg.QdrantPort, "Qdrant server gRPC port")
	sessionID := flag.String("session", "", "Session ID to resume (default: new session)")
	flag.Parse()

	cfg.Debug = *debug
	cfg.LLMProvider = *provider
	cfg.OllamaModel = *model
	cfg.QdrantHost = *qdrantHost
	cfg.QdrantPort = *qdrantPort
	logging.SetDebug(cfg.Debug)

	if *sessionID == "" {
		*sessionID = uuid.New().String()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rag, err := app.Build(ctx, cfg)
	if err != nil {
		logging.Fatal(err)
	}
	defer rag.Close()

	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Println(boldGreen("🤖 RAG Chat"))
	fmt.Printf("Provider: %s, session: %s\n", boldCyan(cfg.LLMProvider), boldCyan(*sessionID))
	fmt.Println("Type your message and press Enter. '/clear' resets the conversation, 'exit' or 'quit' ends it.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n" + boldGreen("👤 You: "))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			fmt.Println("\n👋 Goodbye!")
			return
		case "/clear":
			if err := rag.Chat.ClearSession(ctx, *sessionID); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			fmt.Println(faint("History cleared."))
			continue
		}

		seq, err := rag.Chat.RespondStream(ctx, *sessionID, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		fmt.Print("\n" + boldCyan("🤖 Assistant: "))
		for fragment, err := range seq {
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
				break
			}
			fmt.Print(fragment)
		}
		fmt.Println()

		if ctx.Err() != nil {
			return
		}
	}
}
