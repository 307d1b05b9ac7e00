package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// State names for the routing decision.
const (
	StateTraining = "training"
	StateReady    = "ready"
	StateExpert   = "expert"
)

// Status is the single authoritative routing decision, persisted as a
// JSON file read by the server and written by the trainer.
type Status struct {
	State                string     `json:"state"`
	TotalExamples        int        `json:"total_examples"`
	QualityScore         float64    `json:"quality_score"`
	GrammarScore         float64    `json:"grammar_score"`
	UseLocalModel        bool       `json:"use_local_model"`
	UseGrammarCorrection bool       `json:"use_grammar_correction"`
	LastEvaluation       *time.Time `json:"last_evaluation"`
}

func defaultStatus() Status {
	return Status{
		State:                StateTraining,
		UseLocalModel:        false,
		UseGrammarCorrection: true,
	}
}

// Transition is the pure state function: given the two scores and the two
// thresholds it yields the state and both derived flags. There is no
// hysteresis; a score regression demotes immediately.
func Transition(qualityScore, grammarScore, qualityThreshold, grammarThreshold float64) (state string, useLocalModel, useGrammarCorrection bool) {
	switch {
	case qualityScore >= qualityThreshold && grammarScore >= grammarThreshold:
		return StateExpert, true, false
	case qualityScore >= qualityThreshold:
		return StateReady, true, true
	default:
		return StateTraining, false, true
	}
}

// Gate owns ModelStatus persistence. The trainer calls UpdateMetrics; the
// server re-reads the file on every request via Current.
type Gate struct {
	path             string
	qualityThreshold float64
	grammarThreshold float64
	status           Status
	logger           *zap.Logger
}

// New loads the status file, initializing to the training defaults (and
// persisting them) when the file is missing on first boot.
func New(path string, qualityThreshold, grammarThreshold float64, logger *zap.Logger) (*Gate, error) {
	g := &Gate{
		path:             path,
		qualityThreshold: qualityThreshold,
		grammarThreshold: grammarThreshold,
		logger:           logger,
	}

	status, err := readStatus(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Status file unreadable, falling back to defaults", zap.Error(err))
		}
		g.status = defaultStatus()
		if err := g.save(); err != nil {
			return nil, err
		}
	} else {
		g.status = status
	}

	return g, nil
}

func readStatus(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Status{}, err
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return Status{}, fmt.Errorf("failed to parse status file: %w", err)
	}
	return status, nil
}

func (g *Gate) save() error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.MarshalIndent(g.status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	// Atomic replace so the server never observes a half-written status.
	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := os.Rename(tmp, g.path); err != nil {
		return fmt.Errorf("failed to replace status file: %w", err)
	}

	return nil
}

// UpdateMetrics records the latest evaluation, recomputes the state from
// the two scores and persists the result.
func (g *Gate) UpdateMetrics(totalExamples int, qualityScore, grammarScore float64) error {
	now := time.Now().UTC()

	g.status.TotalExamples = totalExamples
	g.status.QualityScore = qualityScore
	g.status.GrammarScore = grammarScore
	g.status.LastEvaluation = &now
	g.status.State, g.status.UseLocalModel, g.status.UseGrammarCorrection =
		Transition(qualityScore, grammarScore, g.qualityThreshold, g.grammarThreshold)

	if err := g.save(); err != nil {
		return err
	}

	g.logger.Info("Model status updated",
		zap.String("state", g.status.State),
		zap.Float64("quality", qualityScore),
		zap.Float64("grammar", grammarScore),
		zap.Int("total_examples", totalExamples))

	return nil
}

// Current re-reads the persisted status. A missing or momentarily
// unparseable file (the trainer may be mid-write) yields the training
// defaults rather than an error.
func (g *Gate) Current() Status {
	status, err := readStatus(g.path)
	if err != nil {
		return defaultStatus()
	}
	return status
}

// ShouldUseLocalModel reports whether the router should answer with the
// local model.
func (g *Gate) ShouldUseLocalModel() bool {
	return g.Current().UseLocalModel
}

// ShouldUseGrammarCorrection reports whether local answers need polishing
// by the external service.
func (g *Gate) ShouldUseGrammarCorrection() bool {
	return g.Current().UseGrammarCorrection
}

// StatusDisplay derives the human-readable status string. Display only;
// nothing routes on it.
func StatusDisplay(status Status, currentTotal int) string {
	total := status.TotalExamples
	if currentTotal >= 0 {
		total = currentTotal
	}

	switch status.State {
	case StateTraining:
		return fmt.Sprintf("TRAINING: %d examples | Quality: %.0f%%", total, status.QualityScore*100)
	case StateReady:
		return fmt.Sprintf("LOCAL AI: Quality %.0f%%", status.QualityScore*100)
	case StateExpert:
		return "EXPERT MODE: 100% Independent"
	}
	return "INITIALIZING..."
}
