// Package textanalysis is the HTTP client for the external text-analysis
// collaborator used by content anomaly checks.
package textanalysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the text-analysis service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new text-analysis client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type sentimentResponse struct {
	Label string `json:"label"`
}

type entitiesResponse struct {
	Entities []string `json:"entities"`
}

// Sentiment returns the sentiment label for the given text
func (c *Client) Sentiment(ctx context.Context, text string) (string, error) {
	var resp sentimentResponse
	if err := c.post(ctx, "/v1/sentiment", analyzeRequest{Text: text}, &resp); err != nil {
		return "", err
	}
	return resp.Label, nil
}

// ExtractEntities returns the named entities found in the given text
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	var resp entitiesResponse
	if err := c.post(ctx, "/v1/entities", analyzeRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Entities, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("text analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("text analysis returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(respData, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
