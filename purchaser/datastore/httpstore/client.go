// Package httpstore writes purchases and deployments to the application
// backend over authenticated HTTP.
package httpstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/datastore"
	"github.com/cyberdreadx/rougee-play-beats-sub001/purchaser/models"
	"github.com/tidwall/gjson"
)

// TokenSource provides the bearer token for each request
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource with a fixed token
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", datastore.ErrUnauthorized
	}
	return string(s), nil
}

// RetryConfig controls retries of failed writes.
// Only transport errors, 429 and 5xx responses are retried; the backend answers
// 409 for a record it already has, so a retried write that landed is harmless.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// RetryDelay is the initial delay between attempts (doubles with each retry)
	RetryDelay time.Duration
	// Timeout is the HTTP request timeout
	Timeout time.Duration
}

// DefaultRetryConfig returns the retry settings used by NewClient
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
		Timeout:    10 * time.Second,
	}
}

// Client implements datastore.Store against the backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	retry      RetryConfig
}

// Compile-time interface check.
var _ datastore.Store = (*Client)(nil)

// NewClient creates a client for baseURL, e.g., "https://api.example.com/v1"
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	cfg := DefaultRetryConfig()
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return NewClientWithRetry(baseURL, tokens, cfg)
}

// NewClientWithRetry creates a client with explicit retry settings
func NewClientWithRetry(baseURL string, tokens TokenSource, cfg RetryConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryConfig().RetryDelay
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
		retry:      cfg,
	}
}

type purchaseBody struct {
	TokenID   string `json:"token_id"`
	Buyer     string `json:"buyer"`
	Issuer    string `json:"issuer"`
	Timestamp string `json:"timestamp"`
	TxHash    string `json:"tx_hash"`
}

type deploymentBody struct {
	ContentID  string `json:"content_id"`
	Token      string `json:"token_address"`
	Issuer     string `json:"issuer"`
	TxHash     string `json:"tx_hash"`
	DeployedAt string `json:"deployed_at"`
}

// AppendPurchase implements datastore.PurchaseWriter
func (c *Client) AppendPurchase(ctx context.Context, rec models.PurchaseRecord) error {
	if err := datastore.ValidatePurchase(rec); err != nil {
		return err
	}
	return c.post(ctx, "/purchases", purchaseBody{
		TokenID:   rec.TokenID.Hex(),
		Buyer:     rec.Buyer.Hex(),
		Issuer:    rec.Issuer.Hex(),
		Timestamp: rec.Timestamp.UTC().Format(time.RFC3339),
		TxHash:    rec.TxHash,
	})
}

// SaveTokenAddress implements datastore.TokenAddressWriter
func (c *Client) SaveTokenAddress(ctx context.Context, dep models.TokenDeployment) error {
	if err := datastore.ValidateDeployment(dep); err != nil {
		return err
	}
	return c.post(ctx, "/deployments", deploymentBody{
		ContentID:  dep.ContentID,
		Token:      dep.Token.Hex(),
		Issuer:     dep.Issuer.Hex(),
		TxHash:     dep.TxHash,
		DeployedAt: dep.DeployedAt.UTC().Format(time.RFC3339),
	})
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bearer token: %w", err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.retry.RetryDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	), uint64(c.retry.MaxRetries)), ctx)

	var (
		attempts  int
		retryable bool
	)
	err = backoff.Retry(func() error {
		attempts++
		var sendErr error
		retryable, sendErr = c.send(ctx, path, token, payload)
		if sendErr != nil && !retryable {
			return backoff.Permanent(sendErr)
		}
		return sendErr
	}, policy)
	if err != nil && retryable {
		return fmt.Errorf("request failed after %d attempts: %w", attempts, err)
	}
	return err
}

// send performs one attempt and reports whether a failure may be retried
func (c *Client) send(ctx context.Context, path, token string, payload []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, fmt.Errorf("%w: %s", datastore.ErrUnauthorized, errorMessage(respBody, resp.Status))
	case resp.StatusCode == http.StatusConflict:
		return false, datastore.ErrDuplicateKey
	default:
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retryable, fmt.Errorf("%s returned %s: %s", path, resp.Status, errorMessage(respBody, resp.Status))
	}
}

// errorMessage extracts a message from the common backend error shapes
func errorMessage(body []byte, fallback string) string {
	if !gjson.ValidBytes(body) {
		if len(body) > 0 {
			return strings.TrimSpace(string(body))
		}
		return fallback
	}
	for _, path := range []string{"error.message", "message", "error", "msg"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	return fallback
}
