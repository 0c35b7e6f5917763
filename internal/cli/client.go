// =============================================================================
// CLI HTTP CLIENT - ADMIN INTERFACE TO A FETCHQ SERVER
// =============================================================================
//
// HTTP ENDPOINTS USED:
//
//   GET    /health                              Health check
//   GET    /partitions                          Fetch order
//   PUT    /assignment                          Replace assignment
//   GET    /plan                                Next fetch plan
//   POST   /partitions/{topic}/{partition}/served
//   POST   /partitions/{topic}/{partition}/skip
//   DELETE /partitions/{topic}/{partition}
//
// SERVER RESOLUTION (highest to lowest):
//   1. --server flag
//   2. FETCHQ_SERVER environment variable
//   3. http://localhost:8080
//
// =============================================================================

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"fetchq/internal/api"
	"fetchq/internal/fetcher"
	"fetchq/pkg/fetchorder"
)

// EnvServer names the environment variable holding the server URL.
const EnvServer = "FETCHQ_SERVER"

// DefaultServer is used when neither flag nor environment names a server.
const DefaultServer = "http://localhost:8080"

// ResolveServer picks the server URL from flag, environment or default.
func ResolveServer(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvServer); env != "" {
		return env
	}
	return DefaultServer
}

// ClientConfig holds configuration for the CLI HTTP client.
type ClientConfig struct {
	ServerURL string
	Timeout   time.Duration
}

// Client talks to the fetchq admin API.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new CLI client.
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// ErrorResponse is the JSON error body the server writes.
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	u, err := url.JoinPath(c.config.ServerURL, path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status" yaml:"status"`
	Partitions int    `json:"partitions" yaml:"partitions"`
	Uptime     string `json:"uptime" yaml:"uptime"`
	Timestamp  string `json:"timestamp" yaml:"timestamp"`
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Partitions returns the server's fetch order.
func (c *Client) Partitions(ctx context.Context) ([]fetcher.PartitionView, error) {
	var resp api.PartitionsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/partitions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Partitions, nil
}

// Assign replaces the server's assignment, keeping the order of a.
func (c *Client) Assign(ctx context.Context, a *fetchorder.Assignment[int64]) ([]fetcher.PartitionView, error) {
	req := api.AssignmentRequest{Partitions: make([]api.AssignmentEntry, 0, a.Len())}
	for _, tp := range a.Partitions() {
		offset, _ := a.Get(tp)
		req.Partitions = append(req.Partitions, api.AssignmentEntry{
			Topic:     tp.Topic,
			Partition: tp.Partition,
			Offset:    offset,
		})
	}

	var resp api.PartitionsResponse
	if err := c.doRequest(ctx, http.MethodPut, "/assignment", req, &resp); err != nil {
		return nil, err
	}
	return resp.Partitions, nil
}

// Plan returns the server's next fetch plan.
func (c *Client) Plan(ctx context.Context) (*fetcher.FetchPlan, error) {
	var plan fetcher.FetchPlan
	if err := c.doRequest(ctx, http.MethodGet, "/plan", nil, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// Served records data for tp and rotates it.
func (c *Client) Served(ctx context.Context, tp fetchorder.TopicPartition, nextOffset int64) (*fetcher.PartitionView, error) {
	var view fetcher.PartitionView
	if err := c.doRequest(ctx, http.MethodPost, partitionPath(tp, "served"), api.ServedRequest{NextOffset: nextOffset}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Skip rotates tp without data.
func (c *Client) Skip(ctx context.Context, tp fetchorder.TopicPartition) error {
	return c.doRequest(ctx, http.MethodPost, partitionPath(tp, "skip"), nil, nil)
}

// Revoke removes tp.
func (c *Client) Revoke(ctx context.Context, tp fetchorder.TopicPartition) error {
	return c.doRequest(ctx, http.MethodDelete, partitionPath(tp), nil, nil)
}

func partitionPath(tp fetchorder.TopicPartition, suffix ...string) string {
	elems := append([]string{"partitions", url.PathEscape(tp.Topic), strconv.Itoa(int(tp.Partition))}, suffix...)
	p := ""
	for _, e := range elems {
		p += "/" + e
	}
	return p
}
