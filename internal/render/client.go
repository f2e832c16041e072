// Package render is the HTTP client for the external document-rendering
// collaborator that turns a sealed certificate into a downloadable document.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clearsure/certledger/internal/models"
)

// Client talks to the document-render service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new document-render client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Render submits the certificate and returns the rendered document bytes and
// their content type
func (c *Client) Render(ctx context.Context, cert *models.CertificateRecord) ([]byte, string, error) {
	data, err := json.Marshal(cert)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode certificate: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/render", bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("render request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("renderer returned status %d", resp.StatusCode)
	}

	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read rendered document: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	return doc, contentType, nil
}
