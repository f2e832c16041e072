package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clearsure/certledger/internal/models"
)

// HTTPClient talks to a JSON ledger gateway
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a ledger client against the given gateway endpoint
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// gatewayError is the error body returned by the ledger gateway
type gatewayError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// EstimateFee queries the current network fee state
func (c *HTTPClient) EstimateFee(ctx context.Context) (*models.FeeEstimate, error) {
	var estimate models.FeeEstimate
	if err := c.do(ctx, http.MethodGet, "/v1/fees/estimate", nil, &estimate); err != nil {
		return nil, err
	}
	return &estimate, nil
}

// Submit submits a commitment transaction
func (c *HTTPClient) Submit(ctx context.Context, tx *models.Transaction) (*models.TransactionRef, error) {
	var ref models.TransactionRef
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", tx, &ref); err != nil {
		return nil, err
	}
	if ref.TxID == "" {
		return nil, fmt.Errorf("%w: gateway returned no transaction id", ErrUnavailable)
	}
	return &ref, nil
}

// Query reads the current commitment state for a hash
func (c *HTTPClient) Query(ctx context.Context, hash string) (*models.CommitmentState, error) {
	var state models.CommitmentState
	if err := c.do(ctx, http.MethodGet, "/v1/commitments/"+hash, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// QueryEvents reads the event log for a hash
func (c *HTTPClient) QueryEvents(ctx context.Context, hash string) ([]models.LedgerEvent, error) {
	var events []models.LedgerEvent
	if err := c.do(ctx, http.MethodGet, "/v1/commitments/"+hash+"/events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// do performs one gateway request and maps failure modes onto the package's
// error taxonomy
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Idempotency-Key", uuid.NewString())
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors and timeouts are retryable
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", ErrUnavailable, err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrUnknownHash
	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadyRevoked
	default:
		var gerr gatewayError
		if json.Unmarshal(data, &gerr) == nil && gerr.Message != "" {
			return fmt.Errorf("%w: gateway status %d: %s", ErrUnavailable, resp.StatusCode, gerr.Message)
		}
		return fmt.Errorf("%w: gateway status %d", ErrUnavailable, resp.StatusCode)
	}
}
