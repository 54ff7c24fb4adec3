// Package tts calls the external speech synthesis server.
package tts

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/faults"
)

// Result is one synthesized utterance.
type Result struct {
	Audio       []byte  // decoded WAV bytes
	DurationSec float64
	Model       string
	Cached      bool
}

// Client calls the TTS server's HTTP API.
type Client struct {
	baseURL    string
	model      string
	speed      float64
	httpClient *http.Client
}

// NewClient creates a client for the server at cfg.URL.
func NewClient(cfg *config.TTSConfig) *Client {
	return &Client{
		baseURL: cfg.URL,
		model:   cfg.Model,
		speed:   cfg.Speed,
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

type synthesizeRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice,omitempty"`
	Model    string  `json:"model"`
	Speed    float64 `json:"speed"`
	UseCache bool    `json:"use_cache"`
}

type synthesizeResponse struct {
	Audio       string  `json:"audio"` // hex-encoded WAV
	DurationSec float64 `json:"duration_sec"`
	Model       string  `json:"model"`
	Cached      bool    `json:"cached"`
}

// Synthesize renders text with the given voice. Server-side caching is always
// requested; repeated station IDs and jingles come back instantly.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (*Result, error) {
	body, err := json.Marshal(synthesizeRequest{
		Text:     text,
		Voice:    voiceID,
		Model:    c.model,
		Speed:    c.speed,
		UseCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.Transient(fmt.Errorf("TTS request failed: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, faults.Transient(fmt.Errorf("TTS server returned status %d: %s", res.StatusCode, string(errBody)))
	}
	if res.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("TTS server returned status %d: %s", res.StatusCode, string(errBody))
	}

	var resp synthesizeResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode synthesize response: %w", err)
	}

	audio, err := hex.DecodeString(resp.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio hex: %w", err)
	}
	if len(audio) == 0 {
		return nil, faults.Transient(fmt.Errorf("TTS server returned empty audio"))
	}

	return &Result{
		Audio:       audio,
		DurationSec: resp.DurationSec,
		Model:       resp.Model,
		Cached:      resp.Cached,
	}, nil
}
