package classifier_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/gpu-opinion-radar/internal/classifier"
	"github.com/DeafMist/gpu-opinion-radar/internal/models"
)

type fixedPredictor struct {
	probs   [][]float64
	batches []int
	err     error
}

func (f *fixedPredictor) Predict(_ context.Context, batch [][]int) ([][]float64, error) {
	f.batches = append(f.batches, len(batch))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(batch))
	for i := range batch {
		out[i] = f.probs[i%len(f.probs)]
	}
	return out, nil
}

func newModel(t *testing.T, p classifier.Predictor) *classifier.Model {
	t.Helper()
	vocab := classifier.NewVocabulary(map[string]int{"좋다": 1, "발열": 2}, 0, "")
	m, err := classifier.NewModel(context.Background(), vocab, p, 100)
	require.NoError(t, err)
	return m
}

func TestClassifyPicksArgmax(t *testing.T) {
	adapter := classifier.NewAdapter(newModel(t, &fixedPredictor{probs: [][]float64{{0.1, 0.7, 0.2}}}), 0)

	got, err := adapter.Classify(context.Background(), []models.NormalizedItem{{Tokens: []string{"발열"}}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, models.LabelNegative, got[0].Label)
	require.InDelta(t, 70.0, got[0].Confidence, 1e-9)
}

func TestClassifyBatchesAndKeepsOrder(t *testing.T) {
	p := &fixedPredictor{probs: [][]float64{
		{0.8, 0.1, 0.1},
		{0.2, 0.3, 0.5},
		{0.1, 0.6, 0.3},
	}}
	adapter := classifier.NewAdapter(newModel(t, p), 2)

	items := make([]models.NormalizedItem, 5)
	got, err := adapter.Classify(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, []int{2, 2, 1}, p.batches)

	labels := make([]models.Label, 0, len(got))
	for _, r := range got {
		labels = append(labels, r.Label)
	}
	// Each batch restarts the stub's probability cycle.
	require.Equal(t, []models.Label{
		models.LabelPositive, models.LabelNegative,
		models.LabelPositive, models.LabelNegative,
		models.LabelPositive,
	}, labels)
}

func TestClassifyEmptyInputMakesNoCall(t *testing.T) {
	p := &fixedPredictor{probs: [][]float64{{1, 0, 0}}}
	got, err := classifier.NewAdapter(newModel(t, p), 10).Classify(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, p.batches)
}

func TestClassifyPropagatesPredictorError(t *testing.T) {
	boom := errors.New("server gone")
	adapter := classifier.NewAdapter(newModel(t, &fixedPredictor{err: boom}), 10)

	_, err := adapter.Classify(context.Background(), []models.NormalizedItem{{Tokens: []string{"좋다"}}})
	require.ErrorIs(t, err, boom)
}

func TestDecide(t *testing.T) {
	res, err := classifier.Decide([]float64{0.4, 0.4, 0.2})
	require.NoError(t, err)
	require.Equal(t, models.LabelPositive, res.Label)

	res, err = classifier.Decide([]float64{0.2, 0.3, 0.5})
	require.NoError(t, err)
	require.Equal(t, models.LabelNeutral, res.Label)
	require.InDelta(t, 50.0, res.Confidence, 1e-9)

	_, err = classifier.Decide([]float64{1})
	require.Error(t, err)
}

func TestEncodePadsToSequenceLength(t *testing.T) {
	m := newModel(t, &fixedPredictor{probs: [][]float64{{1, 0, 0}}})

	encoded := m.Encode([][]string{{"발열", "좋다"}})
	require.Len(t, encoded, 1)
	require.Len(t, encoded[0], 100)
	require.Equal(t, []int{2, 1}, encoded[0][98:])
}

func TestLoadRequiresBothArtifacts(t *testing.T) {
	stub := &servingStub{state: "AVAILABLE", probs: [][]float64{{0.1, 0.7, 0.2}}}
	srv := httptest.NewServer(stub.handler(t))
	defer srv.Close()

	tokenizer := writeTokenizer(t, kerasTokenizer)

	t.Run("ok", func(t *testing.T) {
		m, err := classifier.Load(context.Background(), classifier.Config{
			TokenizerPath: tokenizer, Endpoint: srv.URL, ModelName: "sentiment", Timeout: time.Second,
		})
		require.NoError(t, err)
		require.NoError(t, m.Ready(context.Background()))
	})

	t.Run("missing tokenizer", func(t *testing.T) {
		_, err := classifier.Load(context.Background(), classifier.Config{
			TokenizerPath: tokenizer + ".gone", Endpoint: srv.URL, ModelName: "sentiment",
		})
		require.ErrorIs(t, err, classifier.ErrModelUnavailable)
	})

	t.Run("unknown model", func(t *testing.T) {
		_, err := classifier.Load(context.Background(), classifier.Config{
			TokenizerPath: tokenizer, Endpoint: srv.URL, ModelName: "other",
		})
		require.ErrorIs(t, err, classifier.ErrModelUnavailable)
	})
}
