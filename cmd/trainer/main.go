package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rszirpe/reaserch-ai/internal/config"
	"github.com/rszirpe/reaserch-ai/internal/gate"
	"github.com/rszirpe/reaserch-ai/internal/harvester"
	"github.com/rszirpe/reaserch-ai/internal/repository"
	"github.com/rszirpe/reaserch-ai/internal/seqmodel"
	"github.com/rszirpe/reaserch-ai/internal/trainer"
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

	logger.Info("Starting background trainer...")

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

	vocabulary := vocab.New(cfg.Model.VocabCapacity)
	if err := vocabulary.Load(cfg.Storage.VocabPath); err != nil {
		logger.Info("No existing vocabulary, will build from scratch")
	} else {
		logger.Info("Vocabulary loaded", zap.Int("size", vocabulary.Size()))
	}

	model := seqmodel.New(seqmodel.Config{
		VocabSize:    cfg.Model.VocabCapacity,
		EmbeddingDim: cfg.Model.EmbeddingDim,
		HiddenDim:    cfg.Model.HiddenDim,
		LearningRate: cfg.Model.LearningRate,
		GradClip:     cfg.Model.GradClip,
	})
	if err := model.LoadCheckpoint(cfg.Storage.CheckpointPath); err != nil {
		logger.Info("No existing checkpoint, training from scratch")
	} else {
		logger.Info("Checkpoint loaded", zap.Int("step", model.Step()))
	}

	qualityGate, err := gate.New(cfg.Storage.StatusPath, cfg.Training.QualityThreshold, cfg.Training.GrammarThreshold, logger)
	if err != nil {
		logger.Fatal("Failed to initialize quality gate", zap.Error(err))
	}

	provider := web.NewDuckDuckGo(&http.Client{Timeout: 10 * time.Second}, logger)
	fetchTimeout := time.Duration(cfg.Scraper.FetchTimeoutSec) * time.Second
	h := harvester.New(provider, store, fetchTimeout, logger)

	loop := trainer.New(store, vocabulary, model, qualityGate, h, trainer.Config{
		BatchSize:             cfg.Training.BatchSize,
		CheckpointInterval:    cfg.Training.CheckpointInterval,
		CheckpointPath:        cfg.Storage.CheckpointPath,
		VocabPath:             cfg.Storage.VocabPath,
		HarvestInterval:       time.Duration(cfg.Training.HarvestIntervalSec) * time.Second,
		MinTrainingExamples:   cfg.Training.MinTrainingExamples,
		EvalIntervalCycles:    cfg.Training.EvalIntervalCycles,
		MinVocabSize:          cfg.Training.MinVocabSize,
		VocabBuildMinExamples: cfg.Training.VocabBuildMinExamples,
		MaxSourceLen:          cfg.Model.MaxSourceLen,
		MaxTargetLen:          cfg.Model.MaxTargetLen,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("Stop signal received")
		cancel()
	}()

	loop.Run(ctx)

	logger.Info("Trainer exited")
}
