// Package classifier turns normalized token sequences into sentiment labels
// using a fitted vocabulary and a served Keras model.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrModelUnavailable means the vocabulary or the model could not be loaded.
var ErrModelUnavailable = errors.New("sentiment model unavailable")

// DefaultSequenceLength is the padded input length the model expects.
const DefaultSequenceLength = 100

// Config locates both model artifacts.
type Config struct {
	TokenizerPath  string
	Endpoint       string
	ModelName      string
	Timeout        time.Duration
	SequenceLength int
}

// Model bundles the vocabulary and the predictor. It is built once by Load
// and shared read-only by every query.
type Model struct {
	vocab     *Vocabulary
	predictor Predictor
	seqLen    int
}

// statusChecker is implemented by predictors that can report readiness.
type statusChecker interface {
	Status(ctx context.Context) error
}

// Load reads the vocabulary and confirms the model server has the model.
// A failure on either artifact is reported as ErrModelUnavailable.
func Load(ctx context.Context, cfg Config) (*Model, error) {
	vocab, err := LoadVocabulary(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	predictor := NewServingPredictor(cfg.Endpoint, cfg.ModelName, cfg.Timeout)
	return NewModel(ctx, vocab, predictor, cfg.SequenceLength)
}

// NewModel assembles a Model from already loaded parts. When predictor can
// report readiness it is checked here.
func NewModel(ctx context.Context, vocab *Vocabulary, predictor Predictor, seqLen int) (*Model, error) {
	if vocab == nil || predictor == nil {
		return nil, fmt.Errorf("%w: missing vocabulary or predictor", ErrModelUnavailable)
	}
	if seqLen <= 0 {
		seqLen = DefaultSequenceLength
	}
	if sc, ok := predictor.(statusChecker); ok {
		if err := sc.Status(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
		}
	}
	return &Model{vocab: vocab, predictor: predictor, seqLen: seqLen}, nil
}

// Encode converts token lists into padded model input.
func (m *Model) Encode(tokens [][]string) [][]int {
	seqs := make([][]int, len(tokens))
	for i, t := range tokens {
		seqs[i] = m.vocab.Sequence(t)
	}
	return PadPre(seqs, m.seqLen)
}

// Ready re-checks the model server, for health endpoints.
func (m *Model) Ready(ctx context.Context) error {
	if sc, ok := m.predictor.(statusChecker); ok {
		return sc.Status(ctx)
	}
	return nil
}
