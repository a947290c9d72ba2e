// Package txapi is the HTTP client for the external transaction API.
package txapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carepos/api/internal/checkout"
)

// Endpoint paths, relative to the configured base URL.
const (
	PathServicesProducts = "/transactions/services-products"
	PathMCP              = "/transactions/mcp"
	PathMemberVoucher    = "/vouchers"
	PathMCPTransfer      = "/transactions/mcp-transfer"
	PathMVTransfer       = "/transactions/mv-transfer"
	PathPackageQueue     = "/mcp/queue"
	PathTransferQueue    = "/mcp/transfer-queue"
	PathVoucherTransfer  = "/voucher/transfer"
)

// maxErrorBody bounds how much of a non-JSON error body is kept.
const maxErrorBody = 512

// APIError is returned when the API answers with a non-2xx status or
// success=false. Message is the server's message when it sent one.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// CallObserver is notified after every call.
type CallObserver func(endpoint string, err error, d time.Duration)

// Client implements checkout.Gateway over HTTP.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	observer CallObserver
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential on every call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCallObserver reports each call's endpoint, error and latency.
func WithCallObserver(o CallObserver) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a client for baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ checkout.Gateway = (*Client)(nil)

// envelope is the response shape shared by every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) CreateServicesProducts(ctx context.Context, req checkout.ServicesProductsRequest) (json.RawMessage, error) {
	return c.create(ctx, PathServicesProducts, req, "Failed to create services/products transaction")
}

func (c *Client) CreateMCP(ctx context.Context, req checkout.LineRequest) (json.RawMessage, error) {
	return c.create(ctx, PathMCP, req, "Failed to create MCP transaction")
}

func (c *Client) CreateMemberVoucher(ctx context.Context, req checkout.LineRequest) (json.RawMessage, error) {
	return c.create(ctx, PathMemberVoucher, req, "Failed to create member voucher")
}

func (c *Client) CreateMCPTransfer(ctx context.Context, req checkout.LineRequest) (json.RawMessage, error) {
	return c.create(ctx, PathMCPTransfer, req, "Failed to create MCP transfer transaction")
}

func (c *Client) CreateMVTransfer(ctx context.Context, req checkout.LineRequest) (json.RawMessage, error) {
	return c.create(ctx, PathMVTransfer, req, "Failed to create MV transfer transaction")
}

type packageAllocation struct {
	MemberCarePackageID int64 `json:"member_care_package_id"`
}

// QueuePackages returns one id per queued package; null entries become zero.
func (c *Client) QueuePackages(ctx context.Context, req checkout.PackageQueueRequest) ([]int64, error) {
	data, err := c.create(ctx, PathPackageQueue, req, "Failed to process package creation queue")
	if err != nil {
		return nil, err
	}
	var allocs []*packageAllocation
	if err := json.Unmarshal(data, &allocs); err != nil {
		return nil, fmt.Errorf("decode package queue result: %w", err)
	}
	ids := make([]int64, len(allocs))
	for i, a := range allocs {
		if a != nil {
			ids[i] = a.MemberCarePackageID
		}
	}
	return ids, nil
}

func (c *Client) QueueTransfers(ctx context.Context, req checkout.TransferQueueRequest) ([]checkout.TransferResult, error) {
	data, err := c.create(ctx, PathTransferQueue, req, "Failed to process transfer queue")
	if err != nil {
		return nil, err
	}
	var results []*checkout.TransferResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode transfer queue result: %w", err)
	}
	out := make([]checkout.TransferResult, len(results))
	for i, r := range results {
		if r != nil {
			out[i] = *r
		}
	}
	return out, nil
}

// TransferVoucher returns the service's verdict as data. Only transport
// failures and unreadable responses are errors.
func (c *Client) TransferVoucher(ctx context.Context, req checkout.VoucherTransferRequest) (checkout.VoucherTransferResult, error) {
	var result checkout.VoucherTransferResult
	status, body, err := c.post(ctx, PathVoucherTransfer, req)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(body, &result); err != nil {
		if status >= 300 {
			return result, &APIError{StatusCode: status, Endpoint: PathVoucherTransfer, Message: bodySnippet(body, "Voucher transfer failed")}
		}
		return result, fmt.Errorf("decode voucher transfer result: %w", err)
	}
	if status >= 300 {
		result.Success = false
	}
	return result, nil
}

// create posts body and unwraps the success envelope.
func (c *Client) create(ctx context.Context, path string, body any, fallback string) (json.RawMessage, error) {
	status, raw, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if status >= 300 {
			return nil, &APIError{StatusCode: status, Endpoint: path, Message: bodySnippet(raw, fallback)}
		}
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	if status >= 300 || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fallback
		}
		return nil, &APIError{StatusCode: status, Endpoint: path, Message: msg}
	}
	return env.Data, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (status int, raw []byte, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			callErr := err
			if callErr == nil && status >= 300 {
				callErr = errors.New(http.StatusText(status))
			}
			c.observer(path, callErr, time.Since(start))
		}
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err = io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", path, err)
	}
	return resp.StatusCode, raw, nil
}

func bodySnippet(body []byte, fallback string) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return fallback
	}
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
