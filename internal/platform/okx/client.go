// Package okx fetches signed Open Oracle price messages from OKX.
package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/openoracle/internal/domain"
	"github.com/alanyoungcy/openoracle/internal/platform"
)

// Compile-time check that Client implements domain.AttestationSource.
var _ domain.AttestationSource = (*Client)(nil)

const (
	// Name is the venue label used in result keys.
	Name = "OKX"

	// DefaultPublisher is the address OKX signs its Open Oracle messages with.
	DefaultPublisher = "0x85615b076615317c80f14cbad6501eec031cd51c"

	oraclePath = "/api/v5/market/open-oracle"
)

// ClientConfig holds configuration for the OKX client.
type ClientConfig struct {
	// BaseURL defaults to https://www.okx.com.
	BaseURL string

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	// RateLimitPerMin is the request budget per minute.
	RateLimitPerMin int

	Logger *slog.Logger

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         "https://www.okx.com",
		Timeout:         10 * time.Second,
		RateLimitPerMin: 60,
		Logger:          slog.Default(),
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
}

// Client is the REST client for the OKX open-oracle endpoint. The endpoint is
// public; no credentials are needed.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
}

// NewClient creates a new OKX client.
func NewClient(config ClientConfig) *Client {
	applyDefaults(&config, ClientConfigDefaults())

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	rps := float64(config.RateLimitPerMin) / 60.0
	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     config.Logger.With(slog.String("component", "okx-client")),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name returns the venue label.
func (c *Client) Name() string {
	return Name
}

// oracleResponse is the OKX API envelope around the oracle payload.
type oracleResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Messages   []string          `json:"messages"`
		Signatures []string          `json:"signatures"`
		Prices     map[string]string `json:"prices"`
		Timestamp  string            `json:"timestamp"`
	} `json:"data"`
}

// Fetch returns the full signed batch OKX currently publishes. The endpoint
// always serves every asset, so assets only feeds the debug log.
func (c *Client) Fetch(ctx context.Context, assets []string) ([]domain.SignedAttestation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("okx: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+oraclePath, nil)
	if err != nil {
		return nil, fmt.Errorf("okx: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("okx: %w: %w", domain.ErrTransport, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", slog.String("error", closeErr.Error()))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("okx: %w: read response: %w", domain.ErrTransport, err)
	}
	if err := platform.CheckStatus("okx", resp.StatusCode, body); err != nil {
		return nil, err
	}

	var env oracleResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("okx: %w: decode response: %w", domain.ErrTransport, err)
	}
	if env.Code != "0" {
		return nil, fmt.Errorf("okx: %w: API code %s: %s", domain.ErrTransport, env.Code, env.Msg)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("okx: %w: empty data", domain.ErrTransport)
	}

	batch, err := platform.ParseBatch(env.Data[0].Messages, env.Data[0].Signatures, c.logger)
	if err != nil {
		return nil, fmt.Errorf("okx: %w", err)
	}

	c.logger.DebugContext(ctx, "fetched signed batch",
		slog.Int("messages", len(batch)),
		slog.Any("requested", assets),
	)
	return batch, nil
}
