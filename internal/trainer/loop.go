// Package trainer runs the unbounded background training cycle: harvest
// one example, keep the vocabulary alive, consume untrained examples in
// whole batches, checkpoint, and periodically evaluate into the quality
// gate.
package trainer

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/rszirpe/reaserch-ai/internal/gate"
	"github.com/rszirpe/reaserch-ai/internal/harvester"
	"github.com/rszirpe/reaserch-ai/internal/models"
	"github.com/rszirpe/reaserch-ai/internal/repository"
	"github.com/rszirpe/reaserch-ai/internal/vocab"
)

// Model is the trainable sequence model as the loop consumes it.
type Model interface {
	TrainStep(src, trg []int) (float64, error)
	SaveCheckpoint(path string) error
	Step() int
	AvgLoss() float64
}

// Config for the training loop; all cadence and sizing knobs.
type Config struct {
	BatchSize             int
	CheckpointInterval    int
	CheckpointPath        string
	VocabPath             string
	HarvestInterval       time.Duration
	MinTrainingExamples   int
	EvalIntervalCycles    int
	MinVocabSize          int
	VocabBuildMinExamples int
	MaxSourceLen          int
	MaxTargetLen          int
	VocabMinFrequency     int
}

// Loop owns the background training cycle.
type Loop struct {
	store      *repository.CorpusStore
	vocabulary *vocab.Vocabulary
	model      Model
	gate       *gate.Gate
	harvester  *harvester.Harvester
	cfg        Config
	logger     *zap.Logger
}

// New creates a training loop.
func New(store *repository.CorpusStore, vocabulary *vocab.Vocabulary, model Model, qualityGate *gate.Gate, h *harvester.Harvester, cfg Config, logger *zap.Logger) *Loop {
	if cfg.VocabMinFrequency == 0 {
		cfg.VocabMinFrequency = 2
	}
	return &Loop{
		store:      store,
		vocabulary: vocabulary,
		model:      model,
		gate:       qualityGate,
		harvester:  h,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes cycles until the context is cancelled, then saves a final
// checkpoint. Every per-cycle error is logged and followed by the normal
// inter-cycle delay; the loop never terminates on its own.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("Training loop started",
		zap.Int("batch_size", l.cfg.BatchSize),
		zap.Duration("interval", l.cfg.HarvestInterval))

	cycle := 0
	for {
		cycle++
		if err := l.RunCycle(ctx, cycle); err != nil {
			l.logger.Error("Training cycle failed", zap.Int("cycle", cycle), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			l.shutdown()
			return
		case <-time.After(l.cfg.HarvestInterval):
		}
	}
}

func (l *Loop) shutdown() {
	l.logger.Info("Training loop stopping, saving final checkpoint")
	if err := l.model.SaveCheckpoint(l.cfg.CheckpointPath); err != nil {
		l.logger.Error("Final checkpoint save failed", zap.Error(err))
	}
}

// RunCycle performs one full training cycle.
func (l *Loop) RunCycle(ctx context.Context, cycle int) error {
	l.logger.Info("Training cycle starting", zap.Int("cycle", cycle))

	// 1. Harvest one new example, best effort.
	if err := l.harvester.LearnOneCycle(ctx); err != nil {
		l.logger.Warn("Harvest failed this cycle", zap.Error(err))
	}

	total, err := l.store.TotalExamples()
	if err != nil {
		return fmt.Errorf("failed to count examples: %w", err)
	}
	l.logger.Info("Corpus size", zap.Int("total_examples", total))

	// 2. Rebuild the vocabulary once enough examples exist. Full,
	// non-incremental rebuild; skipped once populated.
	if l.vocabulary.Size() < l.cfg.MinVocabSize && total >= l.cfg.VocabBuildMinExamples {
		if err := l.rebuildVocabulary(total); err != nil {
			return err
		}
	}

	// 3+4. Train on a full batch, or wait.
	if err := l.trainBatch(); err != nil {
		return err
	}

	// 6. Periodic evaluation.
	if cycle%l.cfg.EvalIntervalCycles == 0 && total >= l.cfg.MinTrainingExamples {
		if err := l.evaluate(total); err != nil {
			return err
		}
	}

	return nil
}

func (l *Loop) rebuildVocabulary(total int) error {
	examples, err := l.store.AllForVocab(total)
	if err != nil {
		return fmt.Errorf("failed to load corpus for vocab: %w", err)
	}

	texts := make([]string, 0, len(examples)*3)
	for _, ex := range examples {
		texts = append(texts, ex.Question, ex.Context, ex.Answer)
	}

	l.logger.Info("Building vocabulary", zap.Int("texts", len(texts)))
	l.vocabulary.Build(texts, l.cfg.VocabMinFrequency)

	if err := l.vocabulary.Save(l.cfg.VocabPath); err != nil {
		return fmt.Errorf("failed to save vocabulary: %w", err)
	}

	l.logger.Info("Vocabulary built", zap.Int("size", l.vocabulary.Size()))
	return nil
}

func (l *Loop) trainBatch() error {
	untrained, err := l.store.GetUntrained(l.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to load untrained examples: %w", err)
	}

	// No partial-batch training: wait for a full batch.
	if len(untrained) < l.cfg.BatchSize {
		l.logger.Info("Waiting for more data",
			zap.Int("untrained", len(untrained)),
			zap.Int("batch_size", l.cfg.BatchSize))
		return nil
	}

	var batchLoss float64
	trained := 0
	for _, ex := range untrained {
		loss, err := l.trainOne(&ex)
		if err != nil {
			// Examples stay unmarked and eligible for retry next cycle.
			return fmt.Errorf("training step failed after %d examples: %w", trained, err)
		}
		batchLoss += loss
		trained++
	}

	// Mark only after every step in the batch succeeded.
	ids := make([]int64, len(untrained))
	for i, ex := range untrained {
		ids[i] = ex.ID
	}
	if err := l.store.MarkTrained(ids); err != nil {
		return fmt.Errorf("failed to mark examples trained: %w", err)
	}

	l.logger.Info("Batch trained",
		zap.Int("examples", trained),
		zap.Float64("loss", batchLoss/float64(trained)),
		zap.Int("step", l.model.Step()))

	// 5. Periodic checkpoint.
	if l.model.Step() > 0 && l.model.Step()%l.cfg.CheckpointInterval == 0 {
		l.logger.Info("Saving checkpoint", zap.Int("step", l.model.Step()))
		if err := l.model.SaveCheckpoint(l.cfg.CheckpointPath); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
	}

	return nil
}

func (l *Loop) trainOne(ex *models.TrainingExample) (float64, error) {
	src := l.vocabulary.Encode(ex.Question+" "+ex.Context, l.cfg.MaxSourceLen, true)
	trg := l.vocabulary.Encode(ex.TrainingTarget(), l.cfg.MaxTargetLen, true)
	return l.model.TrainStep(src, trg)
}

func (l *Loop) evaluate(total int) error {
	avgLoss := l.model.AvgLoss()

	// Loss bounded into a 0-1 quality estimate; grammar rises slowly
	// with corpus size.
	qualityScore := math.Max(0, math.Min(1, 1-avgLoss/10))
	grammarScore := math.Min(0.95, qualityScore+float64(total)/10000)

	l.logger.Info("Evaluating model",
		zap.Float64("avg_loss", avgLoss),
		zap.Float64("quality", qualityScore),
		zap.Float64("grammar", grammarScore))

	if err := l.gate.UpdateMetrics(total, qualityScore, grammarScore); err != nil {
		return fmt.Errorf("failed to update model status: %w", err)
	}

	status := l.gate.Current()
	if err := l.store.SavePerformance(total, qualityScore, grammarScore, status.State); err != nil {
		return fmt.Errorf("failed to save performance snapshot: %w", err)
	}

	l.logger.Info("Evaluation recorded", zap.String("status", gate.StatusDisplay(status, total)))
	return nil
}
