package models

import "time"

// TrainingExample is one harvested or served question/answer interaction.
// Rows are append-only; the trainer is the only writer of UsedForTraining.
type TrainingExample struct {
	ID              int64     `db:"id" json:"id"`
	Question        string    `db:"question" json:"question"`
	Context         string    `db:"context" json:"context"`
	Answer          string    `db:"answer" json:"answer"`
	CorrectedAnswer *string   `db:"corrected_answer" json:"corrected_answer,omitempty"`
	QualityScore    float64   `db:"quality_score" json:"quality_score"`
	GrammarScore    float64   `db:"grammar_score" json:"grammar_score"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UsedForTraining bool      `db:"used_for_training" json:"used_for_training"`
}

// TrainingTarget returns the text the model should learn to produce:
// the polished answer when one exists, the raw draft otherwise.
func (e *TrainingExample) TrainingTarget() string {
	if e.CorrectedAnswer != nil && *e.CorrectedAnswer != "" {
		return *e.CorrectedAnswer
	}
	return e.Answer
}

// PerformanceSnapshot is a point-in-time evaluation written by the trainer.
// It is diagnostic only and is never read back into control flow.
type PerformanceSnapshot struct {
	ID            int64     `db:"id" json:"id"`
	TotalExamples int       `db:"total_examples" json:"total_examples"`
	QualityScore  float64   `db:"quality_score" json:"quality_score"`
	GrammarScore  float64   `db:"grammar_score" json:"grammar_score"`
	Status        string    `db:"status" json:"status"`
	Timestamp     time.Time `db:"timestamp" json:"timestamp"`
}

// ExampleText is the (question, context, answer) projection used for
// vocabulary building.
type ExampleText struct {
	Question string `db:"question"`
	Context  string `db:"context"`
	Answer   string `db:"answer"`
}
