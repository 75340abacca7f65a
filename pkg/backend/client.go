// Package backend implements the REST client for the external agent
// management API: historical event pages, task creation, status lookup and
// task control.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/agentops/taskwatch/pkg/events"
)

// statusCacheSize bounds the terminal-status cache.
const statusCacheSize = 256

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration
	// Custom HTTP client (optional)
	HTTPClient *http.Client
	// Base URL for the backend API
	BaseURL string
	// Additional headers to include in requests
	Headers map[string]string
}

// DefaultClientConfig returns a default client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 30 * time.Second,
		Headers: make(map[string]string),
	}
}

// Client talks to the agent management backend.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	baseURL    string

	// Completed and failed statuses never change again, so they are safe
	// to cache; pending statuses are always refetched.
	statusCache *lru.Cache[string, *TaskStatus]
}

// NewClient creates a backend client.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	cache, err := lru.New[string, *TaskStatus](statusCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create status cache: %w", err)
	}

	return &Client{
		config:      config,
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		statusCache: cache,
	}, nil
}

// SendMessageResult is the immediate response to a chat send.
type SendMessageResult struct {
	TaskID    string `json:"task_id"`
	Timestamp string `json:"timestamp"`
}

// TaskStatus is the polled status of a task.
type TaskStatus struct {
	Status    string `json:"status"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Terminal reports whether the status will never change again.
func (s *TaskStatus) Terminal() bool {
	return s.Status == "completed" || s.Status == "failed"
}

// CreateTaskRequest describes a form-mode task creation.
type CreateTaskRequest struct {
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ControlResult is the response envelope of pause/resume/cancel calls.
type ControlResult struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// ListTaskEvents fetches one page of historical events for a task.
func (c *Client) ListTaskEvents(ctx context.Context, agentID, taskID string, page, pageSize int) (*events.EventPage, error) {
	endpoint := fmt.Sprintf("%s/v1/agents/%s/tasks/%s/events", c.baseURL, agentID, taskID)
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	var result events.EventPage
	if err := c.doJSON(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list task events: %w", err)
	}
	return &result, nil
}

// SendMessage posts a chat message to an agent; the backend responds
// immediately with the task id to poll.
func (c *Client) SendMessage(ctx context.Context, agentID, message string) (*SendMessageResult, error) {
	endpoint := fmt.Sprintf("%s/v1/agents/%s/messages", c.baseURL, agentID)
	body := map[string]string{"message": message}

	var result SendMessageResult
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, &result); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return &result, nil
}

// CreateTaskSync creates a task in form mode.
func (c *Client) CreateTaskSync(ctx context.Context, agentID string, req *CreateTaskRequest) (*SendMessageResult, error) {
	endpoint := fmt.Sprintf("%s/v1/agents/%s/tasks/sync", c.baseURL, agentID)

	var result SendMessageResult
	if err := c.doJSON(ctx, http.MethodPost, endpoint, req, &result); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &result, nil
}

// GetTaskStatus fetches the current status of a task. Terminal statuses are
// served from the cache.
func (c *Client) GetTaskStatus(ctx context.Context, agentID, taskID string) (*TaskStatus, error) {
	cacheKey := agentID + "/" + taskID
	if status, ok := c.statusCache.Get(cacheKey); ok {
		return status, nil
	}

	endpoint := fmt.Sprintf("%s/v1/agents/%s/tasks/%s/status", c.baseURL, agentID, taskID)
	var result TaskStatus
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	if result.Terminal() {
		c.statusCache.Add(cacheKey, &result)
	}
	return &result, nil
}

// PauseTask pauses a running task.
func (c *Client) PauseTask(ctx context.Context, agentID, taskID string) (*ControlResult, error) {
	return c.control(ctx, agentID, taskID, "pause")
}

// ResumeTask resumes a paused task.
func (c *Client) ResumeTask(ctx context.Context, agentID, taskID string) (*ControlResult, error) {
	return c.control(ctx, agentID, taskID, "resume")
}

// CancelTask cancels a task.
func (c *Client) CancelTask(ctx context.Context, agentID, taskID string) (*ControlResult, error) {
	return c.control(ctx, agentID, taskID, "cancel")
}

func (c *Client) control(ctx context.Context, agentID, taskID, action string) (*ControlResult, error) {
	endpoint := fmt.Sprintf("%s/v1/agents/%s/tasks/%s/%s", c.baseURL, agentID, taskID, action)

	var result ControlResult
	if err := c.doJSON(ctx, http.MethodPost, endpoint, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to %s task: %w", action, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("backend rejected %s: %s", action, result.Error)
	}
	return &result, nil
}

// doJSON sends one JSON request and unmarshals the response.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, response any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.config.Headers {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(httpResp.Body).Decode(response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
