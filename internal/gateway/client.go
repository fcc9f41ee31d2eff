// Package gateway talks to the external payment gateway's query API. The
// webhook receiver never trusts client-supplied status; it fetches the
// authoritative payment record through this client instead.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StatusApproved is the gateway status that settles a payment; every other
// status leaves the ledger untouched.
const StatusApproved = "approved"

// PaymentInfo is the authoritative record the gateway reports for a payment.
type PaymentInfo struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	Method            string `json:"payment_method_id"`
	ExternalReference string `json:"external_reference"`
}

// Client fetches payment records from the gateway.
type Client interface {
	GetPayment(ctx context.Context, externalPaymentID string) (*PaymentInfo, error)
}

// HTTPClient queries GET {base}/v1/payments/{id} with a bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) GetPayment(ctx context.Context, externalPaymentID string) (*PaymentInfo, error) {
	url := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, externalPaymentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d for payment %s", resp.StatusCode, externalPaymentID)
	}

	var info PaymentInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	return &info, nil
}
