package seqmodel

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var errDimensionMismatch = errors.New("checkpoint dimensions do not match model config")

// checkpoint is the on-disk form: weights, optimizer moments, step
// counter and cumulative loss, so training resumes exactly where it
// stopped.
type checkpoint struct {
	VocabSize    int
	EmbeddingDim int
	HiddenDim    int

	Emb, Wc, Wx, Wh, Wo matrixState
	Bc, Bh, Bo          vectorState

	Step      int
	TotalLoss float64
	AdamT     int
	SavedAt   time.Time
}

type matrixState struct {
	Rows, Cols int
	W, M, V    []float64
}

type vectorState struct {
	W, M, V []float64
}

func saveMatrix(m *matrix) matrixState {
	return matrixState{Rows: m.rows, Cols: m.cols, W: m.w, M: m.m, V: m.v}
}

func loadMatrix(dst *matrix, src matrixState) error {
	if src.Rows != dst.rows || src.Cols != dst.cols {
		return errDimensionMismatch
	}
	dst.w, dst.m, dst.v = src.W, src.M, src.V
	return nil
}

func saveVector(v *vector) vectorState {
	return vectorState{W: v.w, M: v.m, V: v.v}
}

func loadVector(dst *vector, src vectorState) error {
	if len(src.W) != len(dst.w) {
		return errDimensionMismatch
	}
	dst.w, dst.m, dst.v = src.W, src.M, src.V
	return nil
}

// SaveCheckpoint persists the full model state via temp-file rename.
func (m *Model) SaveCheckpoint(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	ckpt := checkpoint{
		VocabSize:    m.cfg.VocabSize,
		EmbeddingDim: m.cfg.EmbeddingDim,
		HiddenDim:    m.cfg.HiddenDim,
		Emb:          saveMatrix(m.emb),
		Wc:           saveMatrix(m.wc),
		Wx:           saveMatrix(m.wx),
		Wh:           saveMatrix(m.wh),
		Wo:           saveMatrix(m.wo),
		Bc:           saveVector(m.bc),
		Bh:           saveVector(m.bh),
		Bo:           saveVector(m.bo),
		Step:         m.step,
		TotalLoss:    m.totalLoss,
		AdamT:        m.adamT,
		SavedAt:      time.Now().UTC(),
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(&ckpt); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	return nil
}

// LoadCheckpoint restores model state saved by SaveCheckpoint. A missing
// or corrupt file is a plain error; callers fall back to a fresh model or
// the external service.
func (m *Model) LoadCheckpoint(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var ckpt checkpoint
	if err := gob.NewDecoder(file).Decode(&ckpt); err != nil {
		return fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	if ckpt.VocabSize != m.cfg.VocabSize || ckpt.EmbeddingDim != m.cfg.EmbeddingDim || ckpt.HiddenDim != m.cfg.HiddenDim {
		return errDimensionMismatch
	}

	for _, pair := range []struct {
		dst *matrix
		src matrixState
	}{
		{m.emb, ckpt.Emb}, {m.wc, ckpt.Wc}, {m.wx, ckpt.Wx}, {m.wh, ckpt.Wh}, {m.wo, ckpt.Wo},
	} {
		if err := loadMatrix(pair.dst, pair.src); err != nil {
			return err
		}
	}
	for _, pair := range []struct {
		dst *vector
		src vectorState
	}{
		{m.bc, ckpt.Bc}, {m.bh, ckpt.Bh}, {m.bo, ckpt.Bo},
	} {
		if err := loadVector(pair.dst, pair.src); err != nil {
			return err
		}
	}

	m.step = ckpt.Step
	m.totalLoss = ckpt.TotalLoss
	m.adamT = ckpt.AdamT

	return nil
}
