package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ClientConfig holds the vendor API settings.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	SecretKey string
	Timeout   time.Duration
}

// HTTPClient talks to the vendor's HTTP API and normalizes its responses.
type HTTPClient struct {
	cfg    ClientConfig
	client *http.Client
}

func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
	}
}

// payRequest is the vendor's purchase payload.
type payRequest struct {
	RequestID string `json:"request_id"`
	ServiceID string `json:"serviceID"`
	Amount    string `json:"amount"`
	Recipient string `json:"billersCode"`
	Type      string `json:"type"`
}

// payResponse is the vendor's purchase response.
type payResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

// Fulfill submits the purchase to the vendor. Timeouts come back as a
// pending result with no error; hard transport failures and vendor
// rejections come back as errors for the caller to reverse.
func (c *HTTPClient) Fulfill(ctx context.Context, req FulfillRequest) (*FulfillResult, error) {
	body, err := json.Marshal(payRequest{
		RequestID: req.IdempotencyRef,
		ServiceID: req.ServiceID,
		Amount:    req.Amount.StringFixed(2),
		Recipient: req.Recipient,
		Type:      string(req.Kind),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pay request: %w", err)
	}

	result, err := c.post(ctx, c.cfg.BaseURL+"/pay", body)
	if err != nil {
		if isTimeout(err) {
			// The vendor may have accepted the request; leave it pending for
			// reconciliation rather than reversing a possibly-delivered spend.
			return &FulfillResult{
				Status:  OutcomePending,
				Message: "vendor response timed out",
			}, nil
		}
		if errors.Is(err, ErrVendorRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrVendorUnavailable, err)
	}
	return result, nil
}

// QueryStatus requeries the vendor for the state of an earlier request.
func (c *HTTPClient) QueryStatus(ctx context.Context, idempotencyRef string) (*FulfillResult, error) {
	body, err := json.Marshal(map[string]string{"request_id": idempotencyRef})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal requery request: %w", err)
	}

	result, err := c.post(ctx, c.cfg.BaseURL+"/requery", body)
	if err != nil {
		if isTimeout(err) {
			return &FulfillResult{Status: OutcomePending, Message: "requery timed out"}, nil
		}
		if errors.Is(err, ErrVendorRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrVendorUnavailable, err)
	}
	return result, nil
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, body []byte) (*FulfillResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)
	req.Header.Set("secret-key", c.cfg.SecretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("vendor returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrVendorRejected, resp.StatusCode, string(respBody))
	}

	var pr payResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vendor response: %w", err)
	}

	result := &FulfillResult{
		VendorRef: pr.Reference,
		Message:   pr.Message,
		Raw:       respBody,
	}
	switch pr.Status {
	case "success", "delivered":
		result.Status = OutcomeSuccess
	case "pending", "processing", "initiated":
		result.Status = OutcomePending
	case "failed", "reversed":
		return nil, fmt.Errorf("%w: %s", ErrVendorRejected, pr.Message)
	default:
		return nil, fmt.Errorf("%w: unrecognized vendor status %q", ErrVendorRejected, pr.Status)
	}
	return result, nil
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
