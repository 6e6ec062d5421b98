package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const DefaultTurnstileURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// TurnstileClient verifies Cloudflare Turnstile tokens.
type TurnstileClient struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

type turnstileResponse struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts"`
	Hostname    string   `json:"hostname"`
	ErrorCodes  []string `json:"error-codes"`
}

func NewTurnstileClient(url string, logger *zap.Logger) *TurnstileClient {
	if url == "" {
		url = DefaultTurnstileURL
	}
	return &TurnstileClient{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Verify never returns an error: anything other than a well-formed
// success=true answer counts as not verified.
func (t *TurnstileClient) Verify(ctx context.Context, token, secret string) bool {
	resp, err := t.siteverify(ctx, token, secret)
	if err != nil {
		t.logger.Warn("turnstile verification error", zap.Error(err))
		return false
	}
	if !resp.Success {
		t.logger.Info("turnstile rejected token", zap.Strings("error_codes", resp.ErrorCodes))
	}
	return resp.Success
}

func (t *TurnstileClient) siteverify(ctx context.Context, token, secret string) (*turnstileResponse, error) {
	body, err := json.Marshal(map[string]string{"secret": secret, "response": token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out turnstileResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return &out, nil
}
