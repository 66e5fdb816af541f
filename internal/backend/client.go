// Package backend is the HTTP client for the REST API that owns products and orders.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/types"
)

const (
	productsPath = "/api/v1/products"
	ordersPath   = "/api/v1/orders"

	defaultTimeout        = 10 * time.Second
	errorBodyReadLimit    = 64 << 10
	generalErrorsKey      = "general"
	defaultFailureMessage = "An unexpected error occurred"
)

var errBaseURLRequired = errors.New("backend base url is required")

// Client talks JSON to the storefront backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	logg       *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithAPIToken sends token as a bearer credential on every request.
func WithAPIToken(token string) Option {
	return func(c *Client) {
		c.apiToken = strings.TrimSpace(token)
	}
}

// WithLogger enables request/response logging.
func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		if logg != nil {
			c.logg = logg
		}
	}
}

// NewClient builds a backend client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logg:       logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ListProducts returns one page of published products.
func (c *Client) ListProducts(ctx context.Context, params ProductSearchParams) (*ProductsPage, error) {
	path := productsPath
	if q := params.query().Encode(); q != "" {
		path += "?" + q
	}
	var page ProductsPage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	if page.Data == nil {
		page.Data = []Product{}
	}
	return &page, nil
}

// GetProduct fetches a single published product.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	var product Product
	if err := c.do(ctx, http.MethodGet, productsPath+"/"+url.PathEscape(trimmed), nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateOrder submits an order and returns the backend's record of it.
func (c *Client) CreateOrder(ctx context.Context, payload OrderPayload) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, ordersPath, payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Ping checks that the backend answers HTTP at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+productsPath+"?limit=1", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backend unreachable")
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("backend returned status %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal backend request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build backend request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{"backend_method": method, "backend_path": path})
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logg.Error(logCtx, "backend request failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backend request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	c.logg.Debug(c.logg.WithFields(logCtx, map[string]any{
		"status":      resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	}), "backend response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return normalizeError(resp)
	}

	var envelope types.BackendEnvelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode backend response")
	}
	if dest == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode backend response data")
	}
	return nil
}

type errorBody struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  json.RawMessage `json:"errors"`
}

// normalizeError turns a non-2xx response into a typed error. A flat errors array is
// reported under the "general" key.
func normalizeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))

	var body errorBody
	_ = json.Unmarshal(raw, &body)

	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = strings.TrimSpace(body.Error)
	}
	if message == "" {
		message = defaultFailureMessage
	}

	code := pkgerrors.CodeForStatus(resp.StatusCode)
	typed := pkgerrors.Wrap(code, fmt.Errorf("backend status %d", resp.StatusCode), message)
	if details := normalizeFieldErrors(body.Errors); details != nil {
		typed = typed.WithDetails(details)
	}
	return typed
}

func normalizeFieldErrors(raw json.RawMessage) map[string][]string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var flat []string
	if err := json.Unmarshal(raw, &flat); err == nil {
		return map[string][]string{generalErrorsKey: flat}
	}
	var keyed map[string][]string
	if err := json.Unmarshal(raw, &keyed); err == nil {
		return keyed
	}
	return nil
}

func (p ProductSearchParams) query() url.Values {
	q := url.Values{}
	if s := strings.TrimSpace(p.Search); s != "" {
		q.Set("search", s)
	}
	if s := strings.TrimSpace(p.Name); s != "" {
		q.Set("name", s)
	}
	if p.MinPrice != nil {
		q.Set("minPrice", strconv.FormatFloat(*p.MinPrice, 'f', -1, 64))
	}
	if p.MaxPrice != nil {
		q.Set("maxPrice", strconv.FormatFloat(*p.MaxPrice, 'f', -1, 64))
	}
	if p.InStock != nil {
		q.Set("inStock", strconv.FormatBool(*p.InStock))
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}
