// Name-service client (username generator)
//
// Env:
//   - NAME_SERVICE_URL, or NAME_SERVICE_HOST + NAME_SERVICE_PORT
//   - NAME_SERVICE_TIMEOUT (default: 5s)
//
// POST /generate {"prefix": "...", "style": "default|funny|serious"} -> {"username": "..."}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kube-rca/auth-service/internal/config"
	"github.com/sony/gobreaker"
)

var ErrNameServiceUnavailable = errors.New("name service unavailable")

type NameClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

type generateRequest struct {
	Prefix *string `json:"prefix"`
	Style  string  `json:"style"`
}

type generateResponse struct {
	Username string `json:"username"`
}

func NewNameClient(cfg config.NameServiceConfig) (*NameClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("name service url is empty")
	}

	timeout := 5 * time.Second
	if cfg.Timeout != "" {
		parsed, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid NAME_SERVICE_TIMEOUT: %w", err)
		}
		timeout = parsed
	}

	return &NameClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "name-service",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}, nil
}

// Generate asks the name service for a username. Any failure, including an
// open circuit, wraps ErrNameServiceUnavailable.
func (c *NameClient) Generate(ctx context.Context, prefix, style string) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.generate(ctx, prefix, style)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNameServiceUnavailable, err)
	}
	return result.(string), nil
}

func (c *NameClient) generate(ctx context.Context, prefix, style string) (string, error) {
	req := generateRequest{Style: style}
	if prefix != "" {
		req.Prefix = &prefix
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request to name service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("name service returned status %d: %s", resp.StatusCode, string(body))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Username == "" {
		return "", errors.New("name service returned an empty username")
	}
	return out.Username, nil
}
