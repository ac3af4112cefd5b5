package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPClient implements Service against a JSON-over-HTTP synthesis API.
//
//	POST {endpoint}/v1/synthesisTasks        -> {"SynthesisTask": {...}}
//	GET  {endpoint}/v1/synthesisTasks/{id}   -> {"SynthesisTask": {...}}
type HTTPClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ Service = (*HTTPClient)(nil)

type taskEnvelope struct {
	SynthesisTask Task `json:"SynthesisTask"`
}

// NewHTTPClient creates a client. A nil httpClient gets a 15s timeout client.
func NewHTTPClient(endpoint, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     httpClient,
	}
}

// StartTask submits a new synthesis task.
func (c *HTTPClient) StartTask(ctx context.Context, req StartRequest) (Task, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Task{}, fmt.Errorf("marshal start request: %w", err)
	}

	var env taskEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/synthesisTasks", bytes.NewReader(body), &env); err != nil {
		return Task{}, fmt.Errorf("start task: %w", err)
	}
	if env.SynthesisTask.TaskID == "" {
		return Task{}, fmt.Errorf("start task: response has no task id")
	}
	return env.SynthesisTask, nil
}

// GetTask fetches the current state of a task.
func (c *HTTPClient) GetTask(ctx context.Context, taskID string) (Task, error) {
	var env taskEnvelope
	path := "/v1/synthesisTasks/" + url.PathEscape(taskID)
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return Task{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return env.SynthesisTask, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrTaskNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
