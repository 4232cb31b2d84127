package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"care-intake/internal/config"
	"care-intake/internal/core"
	"care-intake/internal/db"
	httpserver "care-intake/internal/http"
	"care-intake/internal/llm"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to construct logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalw("failed to open database", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dbConn.PingContext(ctx); err != nil {
		sugar.Fatalw("failed to ping database", "error", err)
	}
	if err := db.Migrate(context.Background(), dbConn); err != nil {
		sugar.Fatalw("failed to run migrations", "error", err)
	}
	repo := db.NewRepository(dbConn)

	store := core.NewStore(core.StoreConfig{
		MinStep:     cfg.MinStep,
		MaxStep:     cfg.MaxStep,
		AllowCreate: cfg.AllowCreateOnSubmit,
		SessionTTL:  cfg.SessionTTL,
	}, repo, sugar)

	summaryClient := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.Model)
	questionClient := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.QuestionsModel)

	assembler := core.NewAssembler(store, sugar)
	summarizer := core.NewSummarizer(assembler, summaryClient, cfg.LLMTimeout, sugar)
	questions := core.NewQuestionGenerator(store, questionClient, sugar)

	srv := httpserver.NewServer(store, summarizer, questions, sugar)

	addr := ":" + cfg.Port
	sugar.Infow("listening", "addr", addr)
	if err := http.ListenAndServe(addr, srv); err != nil {
		sugar.Fatalw("server error", "error", err)
	}
}
