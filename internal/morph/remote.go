package morph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnavailable indicates the analyzer sidecar is unreachable.
var ErrUnavailable = errors.New("morph analyzer unavailable")

// Remote calls an analyzer sidecar over HTTP.
type Remote struct {
	baseURL string
	client  *http.Client
}

type morphsRequest struct {
	Text string `json:"text"`
	Stem bool   `json:"stem"`
}

type morphsResponse struct {
	Tokens []string `json:"tokens"`
}

// NewRemote creates a client for the sidecar at baseURL.
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Morphs sends POST /morphs with stemming enabled.
func (r *Remote) Morphs(ctx context.Context, text string) ([]string, error) {
	body, err := json.Marshal(morphsRequest{Text: text, Stem: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/morphs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("morph analyzer returned %d", resp.StatusCode)
	}

	var out morphsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Tokens, nil
}

// Health checks GET /health.
func (r *Remote) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unhealthy status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
