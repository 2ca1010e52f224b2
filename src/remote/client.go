package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/smalcash/backend/src/logger"
	"github.com/smalcash/backend/src/models"
	"resty.dev/v3"
)

// ErrUnavailable marks transient failures: network errors, timeouts, 5xx.
// Callers retry with backoff; it is never data loss.
var ErrUnavailable = errors.New("remote store unavailable")

// ErrRejected marks permanent failures (the store refused the record).
// Callers must not retry indefinitely.
var ErrRejected = errors.New("remote store rejected record")

// Store is the network-backed persistence for sales and catalog data. It is
// eventually consistent and unreliable; every method may fail with
// ErrUnavailable.
type Store interface {
	PushSale(ctx context.Context, sale *models.Sale) (string, error)
	FetchItems(ctx context.Context, vendorID string) ([]models.Item, error)
	FetchVendor(ctx context.Context, vendorID string) (*models.Vendor, error)
	FetchRegisters(ctx context.Context, vendorID string) ([]models.Register, error)
}

// Client talks to the SmalCash document API over HTTP.
type Client struct {
	http *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: client}
}

type pushSaleRequest struct {
	IdempotencyKey string            `json:"idempotencyKey"`
	VendorID       string            `json:"vendorId"`
	RegisterID     string            `json:"registerId"`
	Operator       string            `json:"operator"`
	Lines          []models.SaleLine `json:"lines"`
	GrossTotal     float64           `json:"grossTotal"`
	Fee            float64           `json:"fee"`
	Day            string            `json:"day"`
	CreatedAt      time.Time         `json:"createdAt"`
}

type pushSaleResponse struct {
	ID string `json:"id"`
}

// PushSale appends the sale remotely and lets the server fold it into the
// per-vendor-per-day aggregate in one atomic read-modify-write. The sale's
// UUID travels as the idempotency key, so a retry after a lost
// acknowledgment cannot double-count the aggregate.
func (c *Client) PushSale(ctx context.Context, sale *models.Sale) (string, error) {
	body := pushSaleRequest{
		IdempotencyKey: sale.UUID,
		VendorID:       sale.VendorID,
		RegisterID:     sale.RegisterID,
		Operator:       sale.Operator,
		Lines:          sale.Lines,
		GrossTotal:     sale.GrossTotal,
		Fee:            sale.Fee,
		Day:            sale.CreatedAt.Format("2006-01-02"),
		CreatedAt:      sale.CreatedAt,
	}

	var result pushSaleResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", sale.UUID).
		SetBody(body).
		SetResult(&result).
		Post("/api/v1/sales")
	if err != nil {
		return "", fmt.Errorf("%w: pushing sale %s: %v", ErrUnavailable, sale.UUID, err)
	}
	if err := classifyStatus(resp.StatusCode()); err != nil {
		logger.L.Warn("Remote rejected or failed sale push",
			"uuid", sale.UUID, "status", resp.StatusCode(), "body", resp.String())
		return "", fmt.Errorf("%w: status %d pushing sale %s", err, resp.StatusCode(), sale.UUID)
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: empty remote id for sale %s", ErrRejected, sale.UUID)
	}
	return result.ID, nil
}

func (c *Client) FetchItems(ctx context.Context, vendorID string) ([]models.Item, error) {
	var items []models.Item
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("active", "true").
		SetResult(&items).
		Get(fmt.Sprintf("/api/v1/vendors/%s/items", vendorID))
	if err != nil {
		return nil, fmt.Errorf("%w: fetching items for vendor %s: %v", ErrUnavailable, vendorID, err)
	}
	if err := classifyStatus(resp.StatusCode()); err != nil {
		return nil, fmt.Errorf("%w: status %d fetching items for vendor %s", err, resp.StatusCode(), vendorID)
	}
	for i := range items {
		items[i].VendorID = vendorID
	}
	return items, nil
}

func (c *Client) FetchVendor(ctx context.Context, vendorID string) (*models.Vendor, error) {
	var vendor models.Vendor
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&vendor).
		Get(fmt.Sprintf("/api/v1/vendors/%s", vendorID))
	if err != nil {
		return nil, fmt.Errorf("%w: fetching vendor %s: %v", ErrUnavailable, vendorID, err)
	}
	if err := classifyStatus(resp.StatusCode()); err != nil {
		return nil, fmt.Errorf("%w: status %d fetching vendor %s", err, resp.StatusCode(), vendorID)
	}
	return &vendor, nil
}

func (c *Client) FetchRegisters(ctx context.Context, vendorID string) ([]models.Register, error) {
	var registers []models.Register
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("active", "true").
		SetResult(&registers).
		Get(fmt.Sprintf("/api/v1/vendors/%s/registers", vendorID))
	if err != nil {
		return nil, fmt.Errorf("%w: fetching registers for vendor %s: %v", ErrUnavailable, vendorID, err)
	}
	if err := classifyStatus(resp.StatusCode()); err != nil {
		return nil, fmt.Errorf("%w: status %d fetching registers for vendor %s", err, resp.StatusCode(), vendorID)
	}
	return registers, nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy: 5xx and 429
// are transient, other non-2xx are permanent rejections.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 500 || status == http.StatusTooManyRequests:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}
