// Package exchange implements domain.ExchangeClient against a generic
// perpetual-futures REST venue, following the post/get/parseResponse HTTP
// idiom the teacher uses for its broker client.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/errclass"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client is a rate-limited REST client for the venue's futures API.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// Config configures a new Client.
type Config struct {
	BaseURL         string
	APIKey          string
	APISecret       string
	TimeoutSeconds  int
	RateLimitPerSec float64
}

// New creates a new exchange client.
func New(cfg Config, log zerolog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := cfg.RateLimitPerSec
	if limit <= 0 {
		limit = 5
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(limit), int(limit)+1),
		log:       log.With().Str("client", "exchange").Logger(),
	}
}

// envelope is the venue's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
	Code    int             `json:"code"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %v", errclass.ErrTransportFatal, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errclass.ErrTransportFatal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errclass.ErrTransportRetryable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errclass.ErrTransportRetryable, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", errclass.ErrTransportRetryable, resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d: %s", errclass.ErrTransportFatal, resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: parse envelope: %v", errclass.ErrTransportFatal, err)
	}
	if !env.Success {
		msg := "unknown error"
		if env.Error != nil {
			msg = *env.Error
		}
		return fmt.Errorf("%w: venue error: %s", errclass.ErrTransportFatal, msg)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: unmarshal data: %v", errclass.ErrTransportFatal, err)
		}
	}

	return nil
}

var _ domain.ExchangeClient = (*Client)(nil)
