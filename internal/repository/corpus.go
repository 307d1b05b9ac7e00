package repository

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rszirpe/reaserch-ai/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrInvalidID is returned when MarkTrained is asked to flip an example
// that does not exist.
var ErrInvalidID = errors.New("training example id does not exist")

// CorpusStore is the durable, append-only record of training examples and
// performance snapshots. Both the server and the trainer open the same
// SQLite file; WAL mode and a busy timeout arbitrate concurrent access.
type CorpusStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewCorpusStore opens (creating if needed) the corpus database and runs
// schema migrations.
func NewCorpusStore(dbPath string, logger *zap.Logger) (*CorpusStore, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus database: %w", err)
	}

	// Two processes share this file; never fail on a transient lock.
	for _, pragma := range []string{`PRAGMA journal_mode = WAL`, `PRAGMA busy_timeout = 5000`} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &CorpusStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate corpus database: %w", err)
	}

	logger.Info("Corpus store initialized", zap.String("db_path", dbPath))
	return store, nil
}

func (s *CorpusStore) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	driver, err := sqlitemigrate.WithInstance(s.db.DB, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// AddExample appends a new training example and returns its id. Duplicate
// content is allowed; the harvester controls diversity, not the store.
func (s *CorpusStore) AddExample(question, context, answer string, correctedAnswer *string, qualityScore float64) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO training_examples
			(question, context, answer, corrected_answer, quality_score, created_at, used_for_training)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		question, context, answer, correctedAnswer, qualityScore, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert training example: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return id, nil
}

// GetUntrained returns up to limit examples not yet consumed by training,
// oldest first. Fewer than limit rows is the normal low-data condition,
// not an error.
func (s *CorpusStore) GetUntrained(limit int) ([]models.TrainingExample, error) {
	var examples []models.TrainingExample
	err := s.db.Select(&examples, `
		SELECT id, question, context, answer, corrected_answer,
		       quality_score, grammar_score, created_at, used_for_training
		FROM training_examples
		WHERE used_for_training = 0
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query untrained examples: %w", err)
	}
	return examples, nil
}

// MarkTrained flips used_for_training for exactly the given ids. An id
// that does not exist fails the whole call with ErrInvalidID; repeating
// the call with the same ids is harmless.
func (s *CorpusStore) MarkTrained(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`SELECT COUNT(*) FROM training_examples WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build id query: %w", err)
	}

	var count int
	if err := s.db.Get(&count, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to verify example ids: %w", err)
	}
	if count != len(uniqueIDs(ids)) {
		return fmt.Errorf("%w: %v", ErrInvalidID, ids)
	}

	query, args, err = sqlx.In(`UPDATE training_examples SET used_for_training = 1 WHERE id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}
	if _, err := s.db.Exec(s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to mark examples trained: %w", err)
	}

	return nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// TotalExamples returns the size of the corpus.
func (s *CorpusStore) TotalExamples() (int, error) {
	var count int
	if err := s.db.Get(&count, `SELECT COUNT(*) FROM training_examples`); err != nil {
		return 0, fmt.Errorf("failed to count examples: %w", err)
	}
	return count, nil
}

// AllForVocab returns (question, context, answer) triples for vocabulary
// building, in insertion order. limit <= 0 means no limit.
func (s *CorpusStore) AllForVocab(limit int) ([]models.ExampleText, error) {
	query := `SELECT question, context, answer FROM training_examples ORDER BY id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var texts []models.ExampleText
	if err := s.db.Select(&texts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query examples for vocab: %w", err)
	}
	return texts, nil
}

// RandomSample returns up to limit random examples, used for validation.
func (s *CorpusStore) RandomSample(limit int) ([]models.TrainingExample, error) {
	var examples []models.TrainingExample
	err := s.db.Select(&examples, `
		SELECT id, question, context, answer, corrected_answer,
		       quality_score, grammar_score, created_at, used_for_training
		FROM training_examples
		ORDER BY RANDOM()
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query random sample: %w", err)
	}
	return examples, nil
}

// SavePerformance appends a performance snapshot.
func (s *CorpusStore) SavePerformance(totalExamples int, qualityScore, grammarScore float64, status string) error {
	_, err := s.db.Exec(`
		INSERT INTO model_performance (total_examples, quality_score, grammar_score, status, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		totalExamples, qualityScore, grammarScore, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save performance snapshot: %w", err)
	}
	return nil
}

// LatestPerformance returns the most recent snapshot, or nil if none exists.
func (s *CorpusStore) LatestPerformance() (*models.PerformanceSnapshot, error) {
	snapshot := &models.PerformanceSnapshot{}
	err := s.db.Get(snapshot, `
		SELECT id, total_examples, quality_score, grammar_score, status, timestamp
		FROM model_performance
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest performance: %w", err)
	}
	return snapshot, nil
}

// Close closes the database connection.
func (s *CorpusStore) Close() error {
	return s.db.Close()
}
