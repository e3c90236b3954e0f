package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
)

// LineItem is what the payment provider displays to the payer. Name and
// price come from the order's enriched read, quantity from the stored item.
type LineItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type SessionRequest struct {
	OrderID  uuid.UUID  `json:"order_id"`
	Currency string     `json:"currency"`
	Items    []LineItem `json:"items"`
}

// Session is the provider's session handle, returned to the caller verbatim.
type Session struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	CancelURL  string `json:"cancel_url,omitempty"`
	SuccessURL string `json:"success_url,omitempty"`
}

// Confirmation is the asynchronous payment-completion event delivered by the
// payment collaborator once a session has been charged.
type Confirmation struct {
	OrderID         uuid.UUID `json:"order_id"`
	ChargeReference string    `json:"charge_reference"`
	ReceiptURL      string    `json:"receipt_url"`
}

// Client requests payment sessions from the payment service. Session
// creation is not idempotent at the provider, so callers must never retry
// it automatically.
type Client interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) CreateSession(ctx context.Context, sessionReq SessionRequest) (*Session, error) {
	body, err := json.Marshal(sessionReq)
	if err != nil {
		return nil, fmt.Errorf("payment: failed to encode session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment-sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payment: failed to build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment: session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment: session creation returned unexpected status %d", resp.StatusCode)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("payment: failed to decode session response: %w", err)
	}

	return &session, nil
}
