// Package providerapi fetches full resources from provider APIs when a
// webhook payload is too sparse to process directly. Fetches carry a bounded
// timeout and run through a circuit breaker per source, so a flapping
// provider API fails fast back to thin-payload processing instead of
// stalling deliveries.
package providerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"lifelog-ingest/internal/common/errors"
	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/config"
)

// Client fetches a full resource by id for a (source, kind) pair.
type Client interface {
	Fetch(ctx context.Context, source, kind, id string) (map[string]interface{}, error)
}

// HTTPClient is the production client. One breaker per source keeps an
// unhealthy provider from affecting the others.
type HTTPClient struct {
	providers map[string]config.ProviderConfig
	client    *http.Client
	logger    logging.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewHTTPClient creates a client with the configured per-source endpoints
// and fetch timeout.
func NewHTTPClient(providers map[string]config.ProviderConfig, timeout time.Duration, logger logging.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &HTTPClient{
		providers: providers,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *HTTPClient) breaker(source string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[source]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "provider-api-" + source,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Provider API breaker state change",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()),
			)
		},
	})
	c.breakers[source] = cb
	return cb
}

// Fetch retrieves /<kind>/<id> from the source's configured API.
func (c *HTTPClient) Fetch(ctx context.Context, source, kind, id string) (map[string]interface{}, error) {
	provider, ok := c.providers[source]
	if !ok || provider.BaseURL == "" {
		return nil, errors.ConfigError("no provider API configured for source " + source)
	}

	result, err := c.breaker(source).Execute(func() (interface{}, error) {
		return c.fetch(ctx, provider, kind, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]interface{}), nil
}

func (c *HTTPClient) fetch(ctx context.Context, provider config.ProviderConfig, kind, id string) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/%s/%s", provider.BaseURL, kind, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider request: %w", err)
	}
	if provider.Token != "" {
		req.Header.Set("Authorization", "Bearer "+provider.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body))
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	return payload, nil
}
