package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// PaymentStatus is the cloud's answer to a payment check for a plate.
type PaymentStatus struct {
	LicensePlate string `json:"licensePlate"`
	Paid         bool   `json:"paid"`
	PriceCents   int    `json:"priceCents"`
}

// Client defines the billing/occupancy service façade. Every call is
// idempotent from the orchestrator's perspective: skipping a failed call
// never corrupts local state.
type Client interface {
	Health(ctx context.Context) bool
	RegisterLot(ctx context.Context, facilityID string, maxCapacity int, lat, lng float64) error
	DeregisterLot(ctx context.Context, facilityID string) error
	PushOccupancy(ctx context.Context, facilityID string, occupancy int) error
	RecordEntry(ctx context.Context, plate string) error
	CheckPayment(ctx context.Context, plate string) (PaymentStatus, error)
	Pay(ctx context.Context, plate string) (PaymentStatus, error)
	RecordExit(ctx context.Context, plate string) error
}

// httpClient talks to the remote parking cloud over HTTP.
type httpClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a cloud client with a bounded per-request timeout.
// The timeout should be shorter than the barrier timeout so a slow cloud
// never delays barrier actuation.
func NewHTTPClient(baseURL string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *httpClient) RegisterLot(ctx context.Context, facilityID string, maxCapacity int, lat, lng float64) error {
	payload := map[string]any{
		"parkId":      facilityID,
		"maxCapacity": maxCapacity,
		"latitude":    lat,
		"longitude":   lng,
	}
	_, err := c.do(ctx, http.MethodPost, "/api/parking-lots", payload)
	if err != nil {
		return fmt.Errorf("failed to register parking lot %s: %w", facilityID, err)
	}
	return nil
}

func (c *httpClient) DeregisterLot(ctx context.Context, facilityID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/parking-lots/"+url.PathEscape(facilityID), nil)
	if err != nil {
		return fmt.Errorf("failed to deregister parking lot %s: %w", facilityID, err)
	}
	return nil
}

func (c *httpClient) PushOccupancy(ctx context.Context, facilityID string, occupancy int) error {
	payload := map[string]any{
		"parkId":           facilityID,
		"currentOccupancy": occupancy,
	}
	_, err := c.do(ctx, http.MethodPost, "/api/occupancy", payload)
	if err != nil {
		return fmt.Errorf("failed to push occupancy for %s: %w", facilityID, err)
	}
	return nil
}

func (c *httpClient) RecordEntry(ctx context.Context, plate string) error {
	payload := map[string]any{"licensePlate": plate}
	_, err := c.do(ctx, http.MethodPost, "/api/payment/enter", payload)
	if err != nil {
		return fmt.Errorf("failed to record entry for plate %s: %w", plate, err)
	}
	return nil
}

func (c *httpClient) CheckPayment(ctx context.Context, plate string) (PaymentStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/payment/"+url.PathEscape(plate), nil)
	if err != nil {
		return PaymentStatus{}, fmt.Errorf("failed to check payment for plate %s: %w", plate, err)
	}
	var status PaymentStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return PaymentStatus{}, fmt.Errorf("failed to unmarshal payment status for plate %s: %w", plate, err)
	}
	return status, nil
}

func (c *httpClient) Pay(ctx context.Context, plate string) (PaymentStatus, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/payment/"+url.PathEscape(plate)+"/pay", nil)
	if err != nil {
		return PaymentStatus{}, fmt.Errorf("failed to pay for plate %s: %w", plate, err)
	}
	var status PaymentStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return PaymentStatus{}, fmt.Errorf("failed to unmarshal payment status for plate %s: %w", plate, err)
	}
	return status, nil
}

func (c *httpClient) RecordExit(ctx context.Context, plate string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/payment/"+url.PathEscape(plate), nil)
	if err != nil {
		return fmt.Errorf("failed to record exit for plate %s: %w", plate, err)
	}
	return nil
}

// do performs one request against the cloud and returns the response body.
func (c *httpClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("received non-2xx status code: %d", resp.StatusCode)
	}

	return body, nil
}
