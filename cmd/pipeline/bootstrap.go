package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jonathan/content-pipeline/internal/llm"
	"github.com/jonathan/content-pipeline/internal/pipeline"
	"github.com/jonathan/content-pipeline/internal/store"
	"github.com/jonathan/content-pipeline/pkg/logger"
)

// app bundles the long-lived dependencies shared by the subcommands.
type app struct {
	store       *store.Store
	gateway     *llm.Gateway
	coordinator *pipeline.Coordinator
	log         *zap.Logger
	client      llm.Client
}

// bootstrap connects the store and the model provider from environment
// configuration.
func bootstrap(ctx context.Context) (*app, error) {
	log, err := logger.New(logger.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		File:   os.Getenv("LOG_FILE"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	st, err := store.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewGeminiClient(ctx, apiKey)
	if err != nil {
		st.Close()
		return nil, err
	}
	gateway := llm.NewGateway(client, log)

	return &app{
		store:       st,
		gateway:     gateway,
		coordinator: pipeline.New(st, gateway, log),
		log:         log,
		client:      client,
	}, nil
}

func (a *app) close() {
	if err := a.client.Close(); err != nil {
		a.log.Warn("failed to close model client", zap.Error(err))
	}
	a.store.Close()
	_ = a.log.Sync()
}
