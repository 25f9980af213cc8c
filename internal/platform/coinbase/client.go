// Package coinbase fetches signed Open Oracle price messages from the
// Coinbase Exchange API.
package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/openoracle/internal/crypto"
	"github.com/alanyoungcy/openoracle/internal/domain"
	"github.com/alanyoungcy/openoracle/internal/platform"
)

// Compile-time check that Client implements domain.AttestationSource.
var _ domain.AttestationSource = (*Client)(nil)

const (
	// Name is the venue label used in result keys.
	Name = "Coinbase"

	// DefaultPublisher is the address Coinbase signs its Open Oracle messages with.
	DefaultPublisher = "0xfCEAdAFab14d46e20144F48824d0C09B1a03F2BC"

	oraclePath = "/oracle"
)

// ClientConfig holds configuration for the Coinbase client.
type ClientConfig struct {
	// Auth carries the Exchange API key. Required.
	Auth crypto.HMACAuth

	// BaseURL defaults to https://api.exchange.coinbase.com.
	BaseURL string

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	// RateLimitPerMin is the request budget per minute.
	RateLimitPerMin int

	Logger *slog.Logger

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client

	// Now defaults to time.Now; it stamps the signed request.
	Now func() time.Time
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         "https://api.exchange.coinbase.com",
		Timeout:         10 * time.Second,
		RateLimitPerMin: 60,
		Logger:          slog.Default(),
		Now:             time.Now,
	}
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RateLimitPerMin == 0 {
		config.RateLimitPerMin = defaults.RateLimitPerMin
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
}

// Client is the REST client for the Coinbase oracle endpoint.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
}

// NewClient creates a new Coinbase client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Auth.Key == "" || config.Auth.Secret == "" {
		return nil, errors.New("coinbase: API key and secret are required")
	}
	applyDefaults(&config, ClientConfigDefaults())

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	rps := float64(config.RateLimitPerMin) / 60.0
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     config.Logger.With(slog.String("component", "coinbase-client")),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Name returns the venue label.
func (c *Client) Name() string {
	return Name
}

type oracleResponse struct {
	Timestamp  string            `json:"timestamp"`
	Messages   []string          `json:"messages"`
	Signatures []string          `json:"signatures"`
	Prices     map[string]string `json:"prices"`
}

// Fetch returns the full signed batch Coinbase currently publishes.
func (c *Client) Fetch(ctx context.Context, assets []string) ([]domain.SignedAttestation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("coinbase: rate limiter: %w", err)
	}

	headers, err := c.config.Auth.CoinbaseHeadersAt(http.MethodGet, oraclePath, "", c.config.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("coinbase: sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+oraclePath, nil)
	if err != nil {
		return nil, fmt.Errorf("coinbase: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coinbase: %w: %w", domain.ErrTransport, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", slog.String("error", closeErr.Error()))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coinbase: %w: read response: %w", domain.ErrTransport, err)
	}
	if err := platform.CheckStatus("coinbase", resp.StatusCode, body); err != nil {
		return nil, err
	}

	var payload oracleResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("coinbase: %w: decode response: %w", domain.ErrTransport, err)
	}

	batch, err := platform.ParseBatch(payload.Messages, payload.Signatures, c.logger)
	if err != nil {
		return nil, fmt.Errorf("coinbase: %w", err)
	}

	c.logger.DebugContext(ctx, "fetched signed batch",
		slog.Int("messages", len(batch)),
		slog.Any("requested", assets),
	)
	return batch, nil
}
