package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"qna-agent/internal/adapter/gateway"
	"qna-agent/internal/adapter/knowledge"
	"qna-agent/internal/adapter/llm"
	"qna-agent/internal/adapter/store"
	"qna-agent/internal/adapter/tool"
	"qna-agent/internal/domain"
	"qna-agent/internal/infra/config"
	"qna-agent/internal/infra/logger"
	"qna-agent/internal/infra/tracer"
	"qna-agent/internal/usecase"
	"qna-agent/internal/usecase/eventhub"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Stores
	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()

	kb, err := knowledge.NewLocalStore(cfg.Knowledge.Path, log)
	if err != nil {
		return fmt.Errorf("knowledge: %w", err)
	}

	// 4. Tools
	registry := tool.NewRegistry(log)
	if err := tool.RegisterKnowledgeTools(registry, kb); err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	// 5. LLM provider (circuit breaker wrapped unless disabled)
	var provider domain.LLMProvider = llm.NewOpenAIProvider(cfg.LLM, log)
	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
	}

	// 6. Event hub
	hub := eventhub.New(cfg.Events.BufferSize, log)

	// 7. Usecases
	agent := usecase.NewAgent(usecase.AgentDeps{
		LLM:           provider,
		Tools:         registry,
		Events:        hub,
		Logger:        log,
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
		MaxIterations: cfg.Agent.MaxIterations,
		SystemPrompt:  cfg.Agent.SystemPrompt,
	})
	chats := usecase.NewChatService(db, log)
	messages := usecase.NewMessageService(agent, db, db, hub, log, cfg.Agent.HistoryLimit)

	// 8. Gateway
	srv := gateway.NewServer(gateway.ServerDeps{
		Chats:     chats,
		Messages:  messages,
		Hub:       hub,
		Logger:    log,
		Server:    cfg.Server,
		KeepAlive: cfg.Events.KeepAliveInterval,
	})

	log.Info("starting qna-agent",
		"addr", cfg.Server.Addr,
		"model", cfg.LLM.Model,
		"knowledge_path", cfg.Knowledge.Path,
	)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
