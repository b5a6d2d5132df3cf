// internal/clients/client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"printshop/internal/apperror"
	"printshop/internal/catalog"
	"printshop/internal/membership"
	"printshop/internal/order"
	"printshop/internal/store"
	"printshop/internal/voucher"
)

// Client talks to the print shop HTTP API as one logged-in user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	tracer  trace.Tracer
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		tracer:  otel.Tracer("printshop/clients"),
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) Token() string {
	return c.token
}

// do sends body as JSON and decodes a 2xx response into out. Error bodies are
// returned as *apperror.Error so callers can match them with errors.Is.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, span := c.tracer.Start(ctx, "client "+method+" "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apperror.Error
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return &apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Login returns a client bound to the new session.
func (c *Client) Login(ctx context.Context, username, password string) (*Client, error) {
	var res membership.LoginResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &res)
	if err != nil {
		return nil, err
	}
	return c.WithToken(res.Token), nil
}

func (c *Client) Register(ctx context.Context, in membership.RegisterInput) (store.PublicUser, error) {
	var out store.PublicUser
	err := c.do(ctx, http.MethodPost, "/api/auth/register", in, &out)
	return out, err
}

func (c *Client) CreateStaff(ctx context.Context, in membership.StaffInput) (store.PublicUser, error) {
	var out store.PublicUser
	err := c.do(ctx, http.MethodPost, "/api/users/staff", in, &out)
	return out, err
}

func (c *Client) Me(ctx context.Context) (store.PublicUser, error) {
	var out store.PublicUser
	err := c.do(ctx, http.MethodGet, "/api/me", nil, &out)
	return out, err
}

func (c *Client) Unblock(ctx context.Context, userID int64) (store.PublicUser, error) {
	var out store.PublicUser
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/users/%d/unblock", userID), nil, &out)
	return out, err
}

func (c *Client) GenerateCodes(ctx context.Context, amount, staffID int64, count int) ([]store.VoucherCode, error) {
	var out []store.VoucherCode
	err := c.do(ctx, http.MethodPost, "/api/codes/generate", map[string]any{
		"amount":   amount,
		"staff_id": staffID,
		"count":    count,
	}, &out)
	return out, err
}

func (c *Client) MarkSold(ctx context.Context, codeID int64) (voucher.Sale, error) {
	var out voucher.Sale
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/codes/%d/sell", codeID), nil, &out)
	return out, err
}

func (c *Client) Redeem(ctx context.Context, code string) (voucher.Redemption, error) {
	var out voucher.Redemption
	err := c.do(ctx, http.MethodPost, "/api/codes/redeem", map[string]string{"code": code}, &out)
	return out, err
}

func (c *Client) AddProduct(ctx context.Context, in catalog.ProductInput) (store.Product, error) {
	var out store.Product
	err := c.do(ctx, http.MethodPost, "/api/products", in, &out)
	return out, err
}

func (c *Client) CreateOrder(ctx context.Context, items []order.CartItem) (store.Order, error) {
	var out store.Order
	err := c.do(ctx, http.MethodPost, "/api/orders", map[string]any{"items": items}, &out)
	return out, err
}
