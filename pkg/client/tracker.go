// Package client provides an HTTP client for a running peakwatch tracker.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/HatiCode/peakwatch/pkg/records"
)

// TrackerClient fetches the record state from the tracker's HTTP API.
// It is safe for concurrent use by multiple goroutines.
type TrackerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewTrackerClient creates a new client for the tracker service.
// The baseURL should include the scheme and host (e.g., "http://localhost:3000").
// A default timeout of 5 seconds is used for HTTP requests.
func NewTrackerClient(baseURL string) *TrackerClient {
	return NewTrackerClientWithTimeout(baseURL, 5*time.Second)
}

// NewTrackerClientWithTimeout creates a new client with a custom timeout.
func NewTrackerClientWithTimeout(baseURL string, timeout time.Duration) *TrackerClient {
	return &TrackerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RecordResponse is one history entry in StateResponse.
type RecordResponse struct {
	Value      int64     `json:"value"`
	ObservedAt time.Time `json:"observedAt"`
}

// StateResponse is the JSON body of GET /api/state.
type StateResponse struct {
	Metric      string           `json:"metric"`
	CurrentHigh int64            `json:"currentHigh"`
	History     []RecordResponse `json:"history"`
	Capacity    int              `json:"capacity"`
	UpdatedAt   *time.Time       `json:"updatedAt"`
}

// StateResult is the decoded state plus the metric it belongs to.
type StateResult struct {
	Metric string
	State  records.State
}

// GetState fetches the current high and record history.
func (c *TrackerClient) GetState(ctx context.Context) (*StateResult, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u = u.JoinPath("/api/state")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var stateResp StateResponse
	if err := json.NewDecoder(resp.Body).Decode(&stateResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	state := records.State{CurrentHigh: stateResp.CurrentHigh}
	for _, r := range stateResp.History {
		state.History = append(state.History, records.Record{Value: r.Value, ObservedAt: r.ObservedAt})
	}

	return &StateResult{
		Metric: stateResp.Metric,
		State:  state,
	}, nil
}
