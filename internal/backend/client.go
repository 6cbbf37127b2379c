// Package backend talks to the external order-management API that persists
// vendors, items, tax rates and purchase orders.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/odyssey-erp/purchasing/internal/pricing"
)

// GenericMessage is shown when the backend gives no usable error message.
const GenericMessage = "Internal server error"

// ErrNotFound matches any *Error with status 404.
var ErrNotFound = errors.New("backend: not found")

// Error is a failed backend call reduced to a status and a user-facing message.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// Is reports 404 responses as ErrNotFound.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Message returns the user-facing message for err.
func Message(err error) string {
	var be *Error
	if errors.As(err, &be) && strings.TrimSpace(be.Message) != "" {
		return be.Message
	}
	return GenericMessage
}

type authKey struct{}

// WithAuthorization stores the caller's Authorization header so outbound calls forward it.
func WithAuthorization(ctx context.Context, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, authKey{}, value)
}

func authorization(ctx context.Context) string {
	v, _ := ctx.Value(authKey{}).(string)
	return v
}

// Client wraps the order-management REST API. Calls are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Ping checks the API health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, "", nil)
}

// GetVendor fetches one vendor.
func (c *Client) GetVendor(ctx context.Context, id string) (Vendor, error) {
	var v Vendor
	err := c.do(ctx, http.MethodGet, "/vendors/"+url.PathEscape(id), nil, "", &v)
	return v, err
}

// ListItems returns the item catalog.
func (c *Client) ListItems(ctx context.Context) ([]Item, error) {
	var items []Item
	err := c.do(ctx, http.MethodGet, "/items", nil, "", &items)
	return items, err
}

// ListTaxRates returns the custom (non-GST) tax table.
func (c *Client) ListTaxRates(ctx context.Context) ([]pricing.CustomTax, error) {
	var rates []pricing.CustomTax
	err := c.do(ctx, http.MethodGet, "/tax-rates", nil, "", &rates)
	return rates, err
}

// GetOrder fetches a purchase order for editing.
func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	err := c.do(ctx, http.MethodGet, "/purchase-orders/"+url.PathEscape(id), nil, "", &o)
	return o, err
}

// CreateOrder posts a new purchase order. The draft is sent as multipart form
// data when uploads are present, as JSON otherwise.
func (c *Client) CreateOrder(ctx context.Context, d pricing.Draft, uploads []Upload, idempotencyKey string) (Order, error) {
	return c.sendOrder(ctx, http.MethodPost, "/purchase-orders", d, uploads, idempotencyKey)
}

// UpdateOrder replaces an existing purchase order.
func (c *Client) UpdateOrder(ctx context.Context, id string, d pricing.Draft, uploads []Upload, idempotencyKey string) (Order, error) {
	return c.sendOrder(ctx, http.MethodPut, "/purchase-orders/"+url.PathEscape(id), d, uploads, idempotencyKey)
}

// RecordInstallmentPayment asks the backend to mark one installment paid and
// returns the updated order.
func (c *Client) RecordInstallmentPayment(ctx context.Context, orderID string, index int, p InstallmentPayment) (Order, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Order{}, err
	}
	var o Order
	path := fmt.Sprintf("/purchase-orders/%s/installments/%d/payments", url.PathEscape(orderID), index)
	err = c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", &o)
	return o, err
}

func (c *Client) sendOrder(ctx context.Context, method, path string, d pricing.Draft, uploads []Upload, key string) (Order, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return Order{}, err
	}
	body := io.Reader(bytes.NewReader(payload))
	contentType := "application/json"
	if len(uploads) > 0 {
		buf, ct, err := multipartBody(payload, uploads)
		if err != nil {
			return Order{}, err
		}
		body, contentType = buf, ct
	}
	if key != "" {
		ctx = context.WithValue(ctx, idempotencyKey{}, key)
	}
	var o Order
	err = c.do(ctx, method, path, body, contentType, &o)
	return o, err
}

type idempotencyKey struct{}

func multipartBody(draft []byte, uploads []Upload) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="draft"`)
	header.Set("Content-Type", "application/json")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(draft); err != nil {
		return nil, "", err
	}
	for _, u := range uploads {
		fw, err := writer.CreateFormFile("files", u.FileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(fw, bytes.NewReader(u.Content)); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth := authorization(ctx); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if key, _ := ctx.Value(idempotencyKey{}).(string); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return &Error{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: read %s %s: %w", method, path, err)
	}
	return decodeData(raw, out)
}

// decodeData accepts either a bare payload or one wrapped as {"data": ...}.
func decodeData(raw []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &envelope); err == nil && len(envelope.Data) > 0 {
			raw = envelope.Data
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return GenericMessage
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return GenericMessage
	}
	for _, m := range []string{body.Message, body.Error, body.Detail} {
		if strings.TrimSpace(m) != "" {
			return m
		}
	}
	return GenericMessage
}
