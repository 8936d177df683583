package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps http.Client with a timeout and bearer auth.
type HTTPClient struct {
	client *http.Client
	token  string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(timeout time.Duration, token string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
		token:  token,
	}
}

// GetJSON performs a GET request and decodes the JSON response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.send(req, out)
}

// PostJSON performs a POST request with a JSON body and decodes the
// response into out when out is non-nil.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, body, out interface{}) (int, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *HTTPClient) send(req *http.Request, out interface{}) (int, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// checkServiceHealth verifies the service answers on /healthz.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout, "")
	status, err := client.GetJSON(ctx, config.BaseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("service unreachable at %s: %w", config.BaseURL, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("service health check returned status %d", status)
	}
	return nil
}
