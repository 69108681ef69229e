package classifier

import (
	"context"
	"fmt"

	"github.com/DeafMist/gpu-opinion-radar/internal/models"
)

// DefaultBatchSize bounds how many sequences go into one predict call.
const DefaultBatchSize = 256

// Adapter classifies normalized items with a loaded Model.
type Adapter struct {
	model     *Model
	batchSize int
}

// NewAdapter creates an Adapter sending at most batchSize items per call.
func NewAdapter(model *Model, batchSize int) *Adapter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Adapter{model: model, batchSize: batchSize}
}

// Classify returns one result per item, in input order.
func (a *Adapter) Classify(ctx context.Context, items []models.NormalizedItem) ([]models.ClassificationResult, error) {
	results := make([]models.ClassificationResult, 0, len(items))

	for start := 0; start < len(items); start += a.batchSize {
		end := min(start+a.batchSize, len(items))

		tokens := make([][]string, 0, end-start)
		for _, it := range items[start:end] {
			tokens = append(tokens, it.Tokens)
		}

		probs, err := a.model.predictor.Predict(ctx, a.model.Encode(tokens))
		if err != nil {
			return nil, fmt.Errorf("predict batch at %d: %w", start, err)
		}
		if len(probs) != end-start {
			return nil, fmt.Errorf("predict batch at %d: got %d results for %d items", start, len(probs), end-start)
		}

		for i, p := range probs {
			res, err := Decide(p)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", start+i, err)
			}
			results = append(results, res)
		}
	}

	return results, nil
}

// Decide picks the most probable label. The first maximum wins a tie.
func Decide(probs []float64) (models.ClassificationResult, error) {
	if len(probs) != len(models.Labels) {
		return models.ClassificationResult{}, fmt.Errorf("expected %d probabilities, got %d", len(models.Labels), len(probs))
	}

	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}

	return models.ClassificationResult{
		Label:      models.Labels[best],
		Confidence: probs[best] * 100,
	}, nil
}
