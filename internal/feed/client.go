package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
)

// DetectionsPath is the feed endpoint on the monitor service.
const DetectionsPath = "/api/detections"

// Client talks to the monitor's detection feed over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a feed client for a monitor at baseURL. A zero timeout
// leaves requests bounded only by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch returns the current feed page. Caching is disabled so every poll
// sees fresh data.
func (c *Client) Fetch(ctx context.Context) (domain.FeedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+DetectionsPath, nil)
	if err != nil {
		return domain.FeedPage{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.FeedPage{}, fmt.Errorf("fetch detections: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.FeedPage{}, fmt.Errorf("feed responded %d: %s", resp.StatusCode, readMessage(resp.Body))
	}

	var page domain.FeedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return domain.FeedPage{}, fmt.Errorf("decode feed: %w", err)
	}
	if page.Detections == nil {
		page.Detections = []domain.Detection{}
	}
	return page, nil
}

// SubmitResult is the monitor's reply to a POST.
type SubmitResult struct {
	OK      bool   `json:"ok"`
	Stored  int    `json:"stored"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Submit posts readings to the monitor. A single reading is sent as an
// object, several as an array.
func (c *Client) Submit(ctx context.Context, readings ...domain.Reading) (SubmitResult, error) {
	if len(readings) == 0 {
		return SubmitResult{}, fmt.Errorf("submit: %w", domain.ErrNoValidReadings)
	}

	var payload any = readings
	if len(readings) == 1 {
		payload = readings[0]
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("encode readings: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+DetectionsPath, bytes.NewReader(body))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("post detections: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result := rejection(resp.Body)
		return result, fmt.Errorf("monitor responded %d: %s", resp.StatusCode, result.Message)
	}

	var result SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return SubmitResult{}, fmt.Errorf("decode submit result: %w", err)
	}
	return result, nil
}

// rejection decodes an error reply. A body that is not a SubmitResult is
// kept verbatim as the message.
func rejection(r io.Reader) SubmitResult {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return SubmitResult{Message: fmt.Sprintf("read body: %v", err)}
	}
	var result SubmitResult
	if err := json.Unmarshal(raw, &result); err != nil || result.Message == "" {
		result.Message = strings.TrimSpace(string(raw))
	}
	return result
}

// readMessage pulls "message" out of an error body, or returns the body text.
func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(raw))
}
