package moderation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
)

// HTTP calls a remote moderation service.
type HTTP struct {
	url     string
	retries uint64
	client  *http.Client
}

// NewHTTP creates a new HTTP moderation client.
func NewHTTP(url string, timeout time.Duration, retries uint64) *HTTP {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTP{
		url:     url,
		retries: retries,
		client:  &http.Client{Timeout: timeout},
	}
}

type reviewRequest struct {
	Text string `json:"text"`
}

type reviewResponse struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

// Review posts text to the service's /v1/review endpoint. Transport errors and
// 5xx responses are retried with exponential backoff; other failures are not.
func (h *HTTP) Review(ctx context.Context, text string) (*Decision, error) {
	body, err := sonic.Marshal(reviewRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var decision *Decision
	op := func() error {
		d, err := h.post(ctx, body)
		if err != nil {
			return err
		}
		decision = d
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(100*time.Millisecond),
				backoff.WithMaxInterval(2*time.Second),
			),
			h.retries,
		),
		ctx,
	)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return decision, nil
}

func (h *HTTP) post(ctx context.Context, body []byte) (*Decision, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", h.url+"/v1/review", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("moderation api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("moderation api status %d: %s", resp.StatusCode, respBody)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("moderation api status %d: %s", resp.StatusCode, respBody))
	}

	var result reviewResponse
	if err := sonic.Unmarshal(respBody, &result); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}

	switch v := Verdict(result.Verdict); v {
	case Allow, Block:
		return &Decision{Verdict: v, Reason: result.Reason, Provider: "http"}, nil
	default:
		return nil, backoff.Permanent(fmt.Errorf("unknown verdict %q", result.Verdict))
	}
}
