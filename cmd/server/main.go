package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rszirpe/reaserch-ai/internal/config"
	"github.com/rszirpe/reaserch-ai/internal/gate"
	"github.com/rszirpe/reaserch-ai/internal/handler"
	"github.com/rszirpe/reaserch-ai/internal/llm"
	"github.com/rszirpe/reaserch-ai/internal/repository"
	"github.com/rszirpe/reaserch-ai/internal/router"
	"github.com/rszirpe/reaserch-ai/internal/seqmodel"
	"github.com/rszirpe/reaserch-ai/internal/vocab"
	"github.com/rszirpe/reaserch-ai/internal/web"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to config file")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting research assistant server...")

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	store, err := repository.NewCorpusStore(cfg.Storage.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to initialize corpus store", zap.Error(err))
	}
	defer store.Close()

	qualityGate, err := gate.New(cfg.Storage.StatusPath, cfg.Training.QualityThreshold, cfg.Training.GrammarThreshold, logger)
	if err != nil {
		logger.Fatal("Failed to initialize quality gate", zap.Error(err))
	}

	// Vocabulary and checkpoint are written by the trainer process;
	// either may be missing on a fresh install and that is fine.
	vocabulary := vocab.New(cfg.Model.VocabCapacity)
	if err := vocabulary.Load(cfg.Storage.VocabPath); err != nil {
		logger.Warn("No vocabulary loaded, starting empty", zap.Error(err))
	} else {
		logger.Info("Vocabulary loaded", zap.Int("size", vocabulary.Size()))
	}

	var generator router.Generator
	model := seqmodel.New(seqmodel.Config{
		VocabSize:    cfg.Model.VocabCapacity,
		EmbeddingDim: cfg.Model.EmbeddingDim,
		HiddenDim:    cfg.Model.HiddenDim,
		LearningRate: cfg.Model.LearningRate,
		GradClip:     cfg.Model.GradClip,
	})
	if err := model.LoadCheckpoint(cfg.Storage.CheckpointPath); err != nil {
		logger.Warn("No model checkpoint loaded, using external service only", zap.Error(err))
	} else {
		logger.Info("Model checkpoint loaded", zap.Int("step", model.Step()))
		generator = model
	}

	llmClient, err := llm.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", zap.Error(err))
	}
	defer llmClient.Close()

	provider := web.NewDuckDuckGo(&http.Client{Timeout: 10 * time.Second}, logger)

	answerRouter := router.New(provider, llmClient, qualityGate, store, vocabulary, generator, router.Config{
		MaxResults:   cfg.Scraper.MaxResults,
		Workers:      cfg.Scraper.Workers,
		FetchTimeout: time.Duration(cfg.Scraper.FetchTimeoutSec) * time.Second,
		MaxSourceLen: cfg.Model.MaxSourceLen,
		MaxGenTokens: cfg.Model.MaxGenTokens,
	}, logger)

	apiHandler := handler.NewHandler(answerRouter, qualityGate, store, logger)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.Default()

	// CORS for the browser UI.
	engine.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	apiHandler.RegisterRoutes(engine)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server is running", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
