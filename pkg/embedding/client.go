// Package embedding turns chunk text into fixed-dimension vectors via the
// embedding sidecar, with an LRU cache keyed by content hash and batched
// requests to keep the sidecar's GPU fed without overwhelming it.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/faults"
	"github.com/aetherfm/station/pkg/models"
)

// Client calls the embedding sidecar's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the sidecar at cfg.URL.
func NewClient(cfg *config.EmbeddingConfig) *Client {
	return &Client{
		baseURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: cfg.Timeout,
				IdleConnTimeout:       30 * time.Second,
			},
		},
	}
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// Embed sends one batch of texts and returns one vector per input, in order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.Transient(fmt.Errorf("embedding request failed: %w", err))
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, faults.Transientf(faults.CodeRateLimited, "embedding service rate limited")
	case http.StatusServiceUnavailable:
		return nil, faults.Transientf(faults.CodeModelLoading, "embedding model still loading")
	default:
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("embedding service returned status %d: %s", res.StatusCode, string(errBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(res.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, faults.Semanticf(faults.CodeDimMismatch,
			"embedding service returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != models.EmbeddingDim {
			return nil, faults.Semanticf(faults.CodeDimMismatch,
				"embedding %d has dimension %d, expected %d", i, len(v), models.EmbeddingDim)
		}
	}
	return vectors, nil
}
