// Package client talks to the collector API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"innexbot/internal/audit"
	"innexbot/internal/collector/models"
	"innexbot/internal/delivery"
	"innexbot/internal/messaging"
)

const (
	headerAPIKey      = "X-API-Key"
	headerExtensionID = "X-Extension-ID"
	maxErrorBody      = 4 << 10
)

type Client struct {
	BaseURL     string
	HTTPClient  *http.Client
	APIKey      string
	ExtensionID string
	UserAgent   string
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = client
	}
}

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.APIKey = key
	}
}

func WithExtensionID(id string) Option {
	return func(c *Client) {
		c.ExtensionID = id
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.UserAgent = ua
	}
}

func New(baseURL string, opts ...Option) *Client {
	httpClient := &http.Client{
		Timeout:   messaging.NetworkTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
		UserAgent:  "innexbot/" + audit.ExtensionVersion,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts one audit document. Failures are returned as *delivery.SendError
// so the pipeline can classify them.
func (c *Client) Send(ctx context.Context, payload map[string]any) (audit.Receipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return audit.Receipt{}, fmt.Errorf("marshal audit document: %w", err)
	}

	var resp models.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/audit-results", nil, body, &resp); err != nil {
		return audit.Receipt{}, err
	}
	return audit.Receipt{Success: resp.Success, AuditID: resp.AuditID, Message: resp.Message}, nil
}

// Health is unauthenticated.
func (c *Client) Health(ctx context.Context) (models.HealthResponse, error) {
	var resp models.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context) (models.Stats, error) {
	var resp models.Stats
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, nil, &resp)
	return resp, err
}

// Recent lists stored audits; limit <= 0 uses the server default.
func (c *Client) Recent(ctx context.Context, limit int) (models.AuditList, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp models.AuditList
	err := c.do(ctx, http.MethodGet, "/api/v1/audits", q, nil, &resp)
	return resp, err
}

// Checklist fetches the operator-managed checklist.
func (c *Client) Checklist(ctx context.Context) (audit.Checklist, error) {
	var resp models.ExtensionConfig
	q := url.Values{"apiKey": []string{c.APIKey}}
	if err := c.do(ctx, http.MethodGet, "/api/extension-config", q, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &delivery.SendError{Status: http.StatusOK, Message: "extension config unsuccessful"}
	}
	list := make(audit.Checklist, 0, len(resp.Config))
	for _, m := range resp.Config {
		list = append(list, audit.CheckItem{
			EventType:   m.EventType,
			Weight:      m.Weight,
			Category:    m.Category,
			Instruction: m.Instruction,
		})
	}
	return list, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	if c.BaseURL == "" {
		return fmt.Errorf("collector base URL is required")
	}
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)
	if c.APIKey != "" {
		req.Header.Set(headerAPIKey, c.APIKey)
	}
	if c.ExtensionID != "" {
		req.Header.Set(headerExtensionID, c.ExtensionID)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return &delivery.SendError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &delivery.SendError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage prefers the description from a JSON error envelope.
func errorMessage(raw []byte) string {
	var env struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
		Message     string `json:"message"`
	}
	if json.Unmarshal(raw, &env) == nil {
		for _, s := range []string{env.Description, env.Message, env.Error} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(raw))
}
