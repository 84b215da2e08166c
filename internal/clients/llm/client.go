// Package llm implements domain.Reviewer against two JSON-only chat
// endpoints — a cheap, fast model tried first and a premium model used as
// fallback or for higher-stakes reviews — following the teacher pack's
// markdown-code-block-stripping idiom for parsing model output.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/kairoslabs/perpsentinel/internal/domain"
	"github.com/kairoslabs/perpsentinel/internal/errclass"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client implements domain.Reviewer using two configured model endpoints.
type Client struct {
	cheapURL   string
	premiumURL string
	cheapKey   string
	premiumKey string
	cheapModel string
	premiumModel string
	http       *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// Config configures a new Client.
type Config struct {
	CheapBaseURL    string
	PremiumBaseURL  string
	CheapAPIKey     string
	PremiumAPIKey   string
	CheapModel      string
	PremiumModel    string
	TimeoutSeconds  int
	RateLimitPerSec float64
}

// New creates a new LLM client.
func New(cfg Config, log zerolog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	limit := cfg.RateLimitPerSec
	if limit <= 0 {
		limit = 2
	}

	return &Client{
		cheapURL:     cfg.CheapBaseURL,
		premiumURL:   cfg.PremiumBaseURL,
		cheapKey:     cfg.CheapAPIKey,
		premiumKey:   cfg.PremiumAPIKey,
		cheapModel:   cfg.CheapModel,
		premiumModel: cfg.PremiumModel,
		http:         &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(limit), int(limit)+1),
		log:          log.With().Str("client", "llm").Logger(),
	}
}

var _ domain.Reviewer = (*Client)(nil)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ReviewSignal sends prompt to the cheap model (useCheap true) or premium
// model, parses the JSON response (tolerating a surrounding markdown code
// fence), and returns the decoded domain.ReviewResult.
func (c *Client) ReviewSignal(ctx context.Context, prompt string, useCheap bool) (*domain.ReviewResult, error) {
	baseURL, apiKey, model, source := c.premiumURL, c.premiumKey, c.premiumModel, "premium"
	if useCheap {
		baseURL, apiKey, model, source = c.cheapURL, c.cheapKey, c.cheapModel, "cheap"
	}

	raw, err := c.chat(ctx, baseURL, apiKey, model, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s reviewer: %v", errclass.ErrAIUnavailable, source, err)
	}

	var result domain.ReviewResult
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(raw)), &result); err != nil {
		return nil, fmt.Errorf("%w: %s reviewer returned non-JSON: %v", errclass.ErrAIUnavailable, source, err)
	}
	result.Source = source
	return &result, nil
}

func (c *Client) chat(ctx context.Context, baseURL, apiKey, model, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	reqBody := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errclass.ErrTransportRetryable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: status %d", errclass.ErrTransportRetryable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: status %d: %s", errclass.ErrTransportFatal, resp.StatusCode, string(body))
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", err
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return decoded.Choices[0].Message.Content, nil
}

// stripMarkdownCodeBlock removes a ```json ... ``` or ``` ... ``` fence a
// chat model sometimes wraps its JSON answer in.
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	re := regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")
	if matches := re.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}
