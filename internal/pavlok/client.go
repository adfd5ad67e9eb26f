// Package pavlok is the client for the Pavlok stimulus API.
package pavlok

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

	"github.com/onicoach/oni/internal/escalate"
)

const (
	defaultBaseURL = "https://app.pavlok-the-api.com/api/v5"
	defaultTimeout = 10 * time.Second
)

// ErrRateLimited is returned when the API rejects a delivery for quota
// reasons (HTTP 429). Callers must not retry it; the escalation path
// absorbs the skipped step.
var ErrRateLimited = errors.New("pavlok: rate limited")

// Client talks to the Pavlok device API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a Client with the given API key.
func New(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewWithBaseURL(apiKey, baseURL string) *Client {
	c := New(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type stimulusPayload struct {
	Stimulus struct {
		StimulusType  string `json:"stimulusType"`
		StimulusValue int    `json:"stimulusValue"`
	} `json:"stimulus"`
}

// Deliver sends one stimulus. Kind and value are validated locally so a
// bad escalation result never reaches the device. HTTP 429 maps to
// ErrRateLimited; any other non-2xx status is a transport error.
func (c *Client) Deliver(ctx context.Context, kind escalate.Kind, value int) error {
	if !kind.Valid() {
		return fmt.Errorf("pavlok: invalid stimulus kind %q", kind)
	}
	if value < 0 || value > 100 {
		return fmt.Errorf("pavlok: value must be in [0, 100], got %d", value)
	}

	var payload stimulusPayload
	payload.Stimulus.StimulusType = string(kind)
	payload.Stimulus.StimulusValue = value
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pavlok: marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stimulus/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pavlok: creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pavlok: executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pavlok: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// DeviceStatus is the subset of /me the operator CLI shows.
type DeviceStatus struct {
	Battery    int  `json:"battery"`
	IsCharging bool `json:"isCharging"`
}

// Status fetches the device battery state.
func (c *Client) Status(ctx context.Context) (DeviceStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("pavlok: creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("pavlok: executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DeviceStatus{}, fmt.Errorf("pavlok: unexpected status %d", resp.StatusCode)
	}

	var status DeviceStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return DeviceStatus{}, fmt.Errorf("pavlok: decoding status: %w", err)
	}
	return status, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
