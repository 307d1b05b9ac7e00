// Package seqmodel implements the local trainable sequence model: a
// compact embedding + recurrent encoder-decoder written in plain Go, no
// BLAS, no bindings. It is deliberately small; the orchestration around
// it treats it as an opaque trainable function.
package seqmodel

import (
	"errors"
	"math"
	"math/rand"
	"sync"
)

// Config fixes the model dimensions. Changing any of them invalidates
// existing checkpoints.
type Config struct {
	VocabSize    int
	EmbeddingDim int
	HiddenDim    int
	LearningRate float64
	GradClip     float64
}

// Model is a word-level encoder-decoder. The encoder is a mean-pooled
// embedding of the source; the decoder a single tanh recurrent layer with
// a softmax projection over the vocabulary. Trained with teacher forcing
// and an Adam-style update.
type Model struct {
	mu  sync.Mutex
	cfg Config

	emb *matrix // [vocab][emb] shared embeddings
	wc  *matrix // [hidden][emb] encoder context -> initial hidden
	bc  *vector // [hidden]
	wx  *matrix // [hidden][emb] decoder input weights
	wh  *matrix // [hidden][hidden] decoder recurrent weights
	bh  *vector // [hidden]
	wo  *matrix // [vocab][hidden] output projection
	bo  *vector // [vocab]

	step      int
	totalLoss float64
	adamT     int
}

// Reserved ids, mirrored from the vocabulary package to keep this package
// free of internal imports.
const (
	padID   = 0
	startID = 2
	endID   = 3
)

// New creates a model with small random weights.
func New(cfg Config) *Model {
	rng := rand.New(rand.NewSource(42))
	m := &Model{
		cfg: cfg,
		emb: newMatrix(cfg.VocabSize, cfg.EmbeddingDim, rng),
		wc:  newMatrix(cfg.HiddenDim, cfg.EmbeddingDim, rng),
		bc:  newVector(cfg.HiddenDim),
		wx:  newMatrix(cfg.HiddenDim, cfg.EmbeddingDim, rng),
		wh:  newMatrix(cfg.HiddenDim, cfg.HiddenDim, rng),
		bh:  newVector(cfg.HiddenDim),
		wo:  newMatrix(cfg.VocabSize, cfg.HiddenDim, rng),
		bo:  newVector(cfg.VocabSize),
	}
	return m
}

// Step returns the number of completed training steps.
func (m *Model) Step() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// AvgLoss returns cumulative average training loss, 0 before any step.
func (m *Model) AvgLoss() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step == 0 {
		return 0
	}
	return m.totalLoss / float64(m.step)
}

// encode mean-pools the embeddings of non-pad source tokens and maps the
// result through a tanh layer to the decoder's initial hidden state.
// Returns the context vector too, for backprop.
func (m *Model) encode(src []int) (h0, context []float64) {
	context = make([]float64, m.cfg.EmbeddingDim)
	n := 0
	for _, id := range src {
		if id == padID || id < 0 || id >= m.cfg.VocabSize {
			continue
		}
		row := m.emb.row(id)
		for j := range context {
			context[j] += row[j]
		}
		n++
	}
	if n > 0 {
		for j := range context {
			context[j] /= float64(n)
		}
	}

	h0 = make([]float64, m.cfg.HiddenDim)
	for i := 0; i < m.cfg.HiddenDim; i++ {
		sum := m.bc.w[i]
		row := m.wc.row(i)
		for j := 0; j < m.cfg.EmbeddingDim; j++ {
			sum += row[j] * context[j]
		}
		h0[i] = math.Tanh(sum)
	}
	return h0, context
}

// decoderStep advances the recurrent state by one input token.
func (m *Model) decoderStep(inputID int, hPrev []float64) []float64 {
	x := m.emb.row(clampID(inputID, m.cfg.VocabSize))
	h := make([]float64, m.cfg.HiddenDim)
	for i := 0; i < m.cfg.HiddenDim; i++ {
		sum := m.bh.w[i]
		wxRow := m.wx.row(i)
		for j := 0; j < m.cfg.EmbeddingDim; j++ {
			sum += wxRow[j] * x[j]
		}
		whRow := m.wh.row(i)
		for j := 0; j < m.cfg.HiddenDim; j++ {
			sum += whRow[j] * hPrev[j]
		}
		h[i] = math.Tanh(sum)
	}
	return h
}

func (m *Model) logits(h []float64) []float64 {
	out := make([]float64, m.cfg.VocabSize)
	for i := 0; i < m.cfg.VocabSize; i++ {
		sum := m.bo.w[i]
		row := m.wo.row(i)
		for j := 0; j < m.cfg.HiddenDim; j++ {
			sum += row[j] * h[j]
		}
		out[i] = sum
	}
	return out
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(l - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// TrainStep runs one teacher-forced pass over a single (source, target)
// pair and applies one parameter update. Returns the mean cross-entropy
// over non-pad target positions.
func (m *Model) TrainStep(src, trg []int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(trg) < 2 {
		return 0, errors.New("target sequence too short to train on")
	}

	g := m.newGradients()

	h0, context := m.encode(src)

	// Forward with teacher forcing, recording everything backprop needs.
	type stepRecord struct {
		inputID int
		target  int
		h       []float64
		probs   []float64
	}
	var records []stepRecord
	h := h0
	for t := 1; t < len(trg); t++ {
		target := trg[t]
		if target == padID {
			break
		}
		inputID := clampID(trg[t-1], m.cfg.VocabSize)
		h = m.decoderStep(inputID, h)
		probs := softmax(m.logits(h))
		records = append(records, stepRecord{inputID: inputID, target: target, h: h, probs: probs})
	}
	if len(records) == 0 {
		return 0, errors.New("no trainable positions in target")
	}

	n := float64(len(records))
	var loss float64
	for _, r := range records {
		loss += -math.Log(math.Max(r.probs[r.target], 1e-12))
	}
	loss /= n

	// Backward through time.
	dhNext := make([]float64, m.cfg.HiddenDim)
	for t := len(records) - 1; t >= 0; t-- {
		r := records[t]

		// Softmax + cross-entropy.
		dlogits := make([]float64, m.cfg.VocabSize)
		copy(dlogits, r.probs)
		dlogits[r.target] -= 1
		for i := range dlogits {
			dlogits[i] /= n
		}

		dh := make([]float64, m.cfg.HiddenDim)
		copy(dh, dhNext)
		for i := 0; i < m.cfg.VocabSize; i++ {
			if dlogits[i] == 0 {
				continue
			}
			woRow := m.wo.row(i)
			gRow := g.wo.row(i)
			for j := 0; j < m.cfg.HiddenDim; j++ {
				gRow[j] += dlogits[i] * r.h[j]
				dh[j] += woRow[j] * dlogits[i]
			}
			g.bo.w[i] += dlogits[i]
		}

		// Through the tanh recurrence.
		da := make([]float64, m.cfg.HiddenDim)
		for i := range da {
			da[i] = dh[i] * (1 - r.h[i]*r.h[i])
		}

		var hPrev []float64
		if t == 0 {
			hPrev = h0
		} else {
			hPrev = records[t-1].h
		}
		x := m.emb.row(r.inputID)
		dx := make([]float64, m.cfg.EmbeddingDim)
		dhPrev := make([]float64, m.cfg.HiddenDim)
		for i := 0; i < m.cfg.HiddenDim; i++ {
			if da[i] == 0 {
				continue
			}
			gwx := g.wx.row(i)
			wxRow := m.wx.row(i)
			for j := 0; j < m.cfg.EmbeddingDim; j++ {
				gwx[j] += da[i] * x[j]
				dx[j] += wxRow[j] * da[i]
			}
			gwh := g.wh.row(i)
			whRow := m.wh.row(i)
			for j := 0; j < m.cfg.HiddenDim; j++ {
				gwh[j] += da[i] * hPrev[j]
				dhPrev[j] += whRow[j] * da[i]
			}
			g.bh.w[i] += da[i]
		}
		gEmbRow := g.emb.row(r.inputID)
		for j := range dx {
			gEmbRow[j] += dx[j]
		}
		dhNext = dhPrev
	}

	// Into the encoder: dhNext now holds dL/dh0.
	da0 := make([]float64, m.cfg.HiddenDim)
	for i := range da0 {
		da0[i] = dhNext[i] * (1 - h0[i]*h0[i])
	}
	dContext := make([]float64, m.cfg.EmbeddingDim)
	for i := 0; i < m.cfg.HiddenDim; i++ {
		if da0[i] == 0 {
			continue
		}
		gwc := g.wc.row(i)
		wcRow := m.wc.row(i)
		for j := 0; j < m.cfg.EmbeddingDim; j++ {
			gwc[j] += da0[i] * context[j]
			dContext[j] += wcRow[j] * da0[i]
		}
		g.bc.w[i] += da0[i]
	}
	srcCount := 0
	for _, id := range src {
		if id != padID && id >= 0 && id < m.cfg.VocabSize {
			srcCount++
		}
	}
	if srcCount > 0 {
		for _, id := range src {
			if id == padID || id < 0 || id >= m.cfg.VocabSize {
				continue
			}
			gRow := g.emb.row(id)
			for j := range dContext {
				gRow[j] += dContext[j] / float64(srcCount)
			}
		}
	}

	g.clip(m.cfg.GradClip)

	m.adamT++
	m.applyAdam(g)

	m.step++
	m.totalLoss += loss

	return loss, nil
}

// Generate greedily decodes up to maxLength tokens for the given source.
// The returned sequence includes the end marker when one is produced.
func (m *Model) Generate(src []int, maxLength int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, _ := m.encode(src)
	input := startID

	var out []int
	for i := 0; i < maxLength; i++ {
		h = m.decoderStep(input, h)
		logits := m.logits(h)

		best := 1
		for id := 1; id < m.cfg.VocabSize; id++ { // never emit pad
			if logits[id] > logits[best] {
				best = id
			}
		}

		out = append(out, best)
		if best == endID {
			break
		}
		input = best
	}
	return out
}

func clampID(id, vocabSize int) int {
	if id < 0 || id >= vocabSize {
		return 1 // unknown
	}
	return id
}

func adamUpdate(w, grad, mom, vel []float64, lr float64, t int) {
	const beta1, beta2, eps = 0.9, 0.999, 1e-8
	bc1 := 1 - math.Pow(beta1, float64(t))
	bc2 := 1 - math.Pow(beta2, float64(t))
	for i := range w {
		if grad[i] == 0 && mom[i] == 0 && vel[i] == 0 {
			continue
		}
		mom[i] = beta1*mom[i] + (1-beta1)*grad[i]
		vel[i] = beta2*vel[i] + (1-beta2)*grad[i]*grad[i]
		mHat := mom[i] / bc1
		vHat := vel[i] / bc2
		w[i] -= lr * mHat / (math.Sqrt(vHat) + eps)
	}
}

func (m *Model) applyAdam(g *gradients) {
	pairs := []struct {
		p *matrix
		g *matrix
	}{
		{m.emb, g.emb}, {m.wc, g.wc}, {m.wx, g.wx}, {m.wh, g.wh}, {m.wo, g.wo},
	}
	for _, pair := range pairs {
		adamUpdate(pair.p.w, pair.g.w, pair.p.m, pair.p.v, m.cfg.LearningRate, m.adamT)
	}
	vpairs := []struct {
		p *vector
		g *vector
	}{
		{m.bc, g.bc}, {m.bh, g.bh}, {m.bo, g.bo},
	}
	for _, pair := range vpairs {
		adamUpdate(pair.p.w, pair.g.w, pair.p.m, pair.p.v, m.cfg.LearningRate, m.adamT)
	}
}

type gradients struct {
	emb, wc, wx, wh, wo *matrix
	bc, bh, bo          *vector
}

func (m *Model) newGradients() *gradients {
	return &gradients{
		emb: zeroMatrix(m.cfg.VocabSize, m.cfg.EmbeddingDim),
		wc:  zeroMatrix(m.cfg.HiddenDim, m.cfg.EmbeddingDim),
		wx:  zeroMatrix(m.cfg.HiddenDim, m.cfg.EmbeddingDim),
		wh:  zeroMatrix(m.cfg.HiddenDim, m.cfg.HiddenDim),
		wo:  zeroMatrix(m.cfg.VocabSize, m.cfg.HiddenDim),
		bc:  newVector(m.cfg.HiddenDim),
		bh:  newVector(m.cfg.HiddenDim),
		bo:  newVector(m.cfg.VocabSize),
	}
}

func (g *gradients) clip(maxNorm float64) {
	if maxNorm <= 0 {
		return
	}
	var sq float64
	all := [][]float64{g.emb.w, g.wc.w, g.wx.w, g.wh.w, g.wo.w, g.bc.w, g.bh.w, g.bo.w}
	for _, w := range all {
		for _, v := range w {
			sq += v * v
		}
	}
	norm := math.Sqrt(sq)
	if norm <= maxNorm {
		return
	}
	scale := maxNorm / norm
	for _, w := range all {
		for i := range w {
			w[i] *= scale
		}
	}
}

// matrix is a dense row-major parameter with Adam moments alongside.
type matrix struct {
	rows, cols int
	w, m, v    []float64
}

func newMatrix(rows, cols int, rng *rand.Rand) *matrix {
	mat := zeroMatrix(rows, cols)
	scale := 0.08
	for i := range mat.w {
		mat.w[i] = (rng.Float64()*2 - 1) * scale
	}
	return mat
}

func zeroMatrix(rows, cols int) *matrix {
	return &matrix{
		rows: rows,
		cols: cols,
		w:    make([]float64, rows*cols),
		m:    make([]float64, rows*cols),
		v:    make([]float64, rows*cols),
	}
}

func (m *matrix) row(i int) []float64 {
	return m.w[i*m.cols : (i+1)*m.cols]
}

type vector struct {
	w, m, v []float64
}

func newVector(n int) *vector {
	return &vector{w: make([]float64, n), m: make([]float64, n), v: make([]float64, n)}
}
