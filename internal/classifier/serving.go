package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 10 * time.Second

// Predictor returns one class-probability vector per input sequence.
type Predictor interface {
	Predict(ctx context.Context, batch [][]int) ([][]float64, error)
}

// ServingPredictor calls a TensorFlow Serving REST endpoint.
type ServingPredictor struct {
	endpoint string
	model    string
	client   *http.Client
}

type predictRequest struct {
	Instances [][]int `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

type statusResponse struct {
	ModelVersionStatus []struct {
		Version string `json:"version"`
		State   string `json:"state"`
	} `json:"model_version_status"`
}

// NewServingPredictor creates a client for model name served at endpoint.
func NewServingPredictor(endpoint, model string, timeout time.Duration) *ServingPredictor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ServingPredictor{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
	}
}

// Predict sends the whole batch in a single request.
func (s *ServingPredictor) Predict(ctx context.Context, batch [][]int) ([][]float64, error) {
	body, err := json.Marshal(predictRequest{Instances: batch})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.modelURL()+":predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	var out predictResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("model server returned %d", resp.StatusCode)
	}
	if len(out.Predictions) != len(batch) {
		return nil, fmt.Errorf("model server returned %d predictions for %d inputs", len(out.Predictions), len(batch))
	}

	return out.Predictions, nil
}

// Status checks that at least one version of the model is AVAILABLE.
func (s *ServingPredictor) Status(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.modelURL(), http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model status returned %d", resp.StatusCode)
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	for _, v := range status.ModelVersionStatus {
		if v.State == "AVAILABLE" {
			return nil
		}
	}
	return errors.New("no model version is AVAILABLE")
}

func (s *ServingPredictor) modelURL() string {
	return s.endpoint + "/v1/models/" + url.PathEscape(s.model)
}
