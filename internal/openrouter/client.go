// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package openrouter is the HTTP client for the model-routing API: the
// public model catalog, the provisioning-key management surface, and the
// chat-completion endpoint requests are forwarded to. Key management is
// authorized with the provisioning credential; completions are authorized
// with the delegated credential supplied per call.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MadsRC/llmbridge"
)

// DefaultBaseURL is the production endpoint of the routing API
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// APIError is a non-2xx upstream response. The body is truncated for logs
// and error chains; it never contains a secret.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

type Client struct {
	options *clientOptions
}

type clientOptions struct {
	Logger          *slog.Logger
	BaseURL         string
	HTTPClient      *http.Client
	ProvisioningKey string
	Referer         string
	Title           string
}

type ClientOption interface {
	apply(*clientOptions)
}

type clientOptionFunc func(*clientOptions)

func (f clientOptionFunc) apply(opts *clientOptions) {
	f(opts)
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.Logger = logger
	})
}

func WithClientBaseURL(baseURL string) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.BaseURL = baseURL
	})
}

func WithClientHTTPClient(client *http.Client) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.HTTPClient = client
	})
}

// WithClientProvisioningKey sets the account-level credential used only to
// manage delegated credentials, never to send completions.
func WithClientProvisioningKey(key string) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.ProvisioningKey = key
	})
}

// WithClientAttribution sets the HTTP-Referer and X-Title headers the
// routing API uses for app attribution.
func WithClientAttribution(referer, title string) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.Referer = referer
		opts.Title = title
	})
}

func New(options ...ClientOption) (*Client, error) {
	opts := &clientOptions{
		Logger:  slog.Default(),
		BaseURL: DefaultBaseURL,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		Title: "llmbridge",
	}

	for _, option := range options {
		option.apply(opts)
	}

	return &Client{options: opts}, nil
}

// catalog wire shapes

type modelsResponse struct {
	Data []modelEntry `json:"data"`
}

type modelEntry struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
	Architecture  struct {
		InputModalities []string `json:"input_modalities"`
	} `json:"architecture"`
}

// ListModels fetches the public model catalog
func (c *Client) ListModels(ctx context.Context) ([]llmbridge.ModelCapabilities, error) {
	var parsed modelsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/models", "", nil, &parsed); err != nil {
		return nil, err
	}

	models := make([]llmbridge.ModelCapabilities, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		models = append(models, llmbridge.ModelCapabilities{
			ID:              entry.ID,
			Name:            entry.Name,
			InputModalities: entry.Architecture.InputModalities,
			ContextLength:   entry.ContextLength,
		})
	}
	return models, nil
}

// key-management wire shapes

type keyEntry struct {
	Hash      string   `json:"hash"`
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Disabled  bool     `json:"disabled"`
	Limit     *float64 `json:"limit"`
	Usage     float64  `json:"usage"`
	CreatedAt string   `json:"created_at"`
}

func (e keyEntry) summary() llmbridge.RemoteCredentialSummary {
	out := llmbridge.RemoteCredentialSummary{
		RemoteID: e.Hash,
		Label:    e.Name,
		Disabled: e.Disabled,
		Usage:    e.Usage,
		Limit:    e.Limit,
	}
	// Some deployments expose the label separately from the display name
	if e.Label != "" {
		out.Label = e.Label
	}
	if ts, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
		out.CreatedAt = &ts
	}
	return out
}

type listKeysResponse struct {
	Data []keyEntry `json:"data"`
}

type createKeyResponse struct {
	Key  string   `json:"key"`
	Data keyEntry `json:"data"`
}

type deleteKeyResponse struct {
	Data struct {
		Deleted bool `json:"deleted"`
		Success bool `json:"success"`
	} `json:"data"`
}

// ListKeys lists the account's delegated credentials. Responses never
// include secret values.
func (c *Client) ListKeys(ctx context.Context) ([]llmbridge.RemoteCredentialSummary, error) {
	var parsed listKeysResponse
	if err := c.doJSON(ctx, http.MethodGet, "/keys", c.options.ProvisioningKey, nil, &parsed); err != nil {
		return nil, err
	}

	summaries := make([]llmbridge.RemoteCredentialSummary, 0, len(parsed.Data))
	for _, entry := range parsed.Data {
		summaries = append(summaries, entry.summary())
	}
	return summaries, nil
}

// CreateKey provisions a delegated credential under the given label. The
// response is the only place the secret value is ever exposed.
func (c *Client) CreateKey(ctx context.Context, label string) (*llmbridge.DelegatedCredential, error) {
	body := map[string]any{"name": label}

	var parsed createKeyResponse
	if err := c.doJSON(ctx, http.MethodPost, "/keys", c.options.ProvisioningKey, body, &parsed); err != nil {
		return nil, err
	}
	if parsed.Key == "" {
		return nil, &APIError{Operation: "create key", StatusCode: http.StatusOK, Body: "response missing key value"}
	}

	return &llmbridge.DelegatedCredential{
		Value:    parsed.Key,
		Label:    label,
		RemoteID: parsed.Data.Hash,
	}, nil
}

// DeleteKey removes a delegated credential by its remote id
func (c *Client) DeleteKey(ctx context.Context, remoteID string) (bool, error) {
	var parsed deleteKeyResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/keys/"+remoteID, c.options.ProvisioningKey, nil, &parsed); err != nil {
		return false, err
	}
	return parsed.Data.Deleted || parsed.Data.Success, nil
}

// ChatCompletion forwards a translated request, authorized with the
// delegated credential. The raw *http.Response is returned so the caller
// can relay JSON bodies and SSE streams byte-for-byte; the caller owns
// closing the body.
func (c *Client) ChatCompletion(ctx context.Context, bearer string, req *llmbridge.UpstreamChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat completion: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat completion request: %w", err)
	}
	c.setHeaders(httpReq, bearer)

	resp, err := c.options.HTTPClient.Do(httpReq)
	if err != nil {
		c.options.Logger.Error("Upstream chat completion failed", "operation", "chat completion", "error", err)
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	return resp, nil
}

// doJSON runs one JSON request/response cycle against the API
func (c *Client) doJSON(ctx context.Context, method, path, bearer string, body any, out any) error {
	operation := method + " " + path

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s encode: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.options.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s build request: %w", operation, err)
	}
	c.setHeaders(req, bearer)

	resp, err := c.options.HTTPClient.Do(req)
	if err != nil {
		c.options.Logger.Error("Upstream request failed", "operation", operation, "error", err)
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s read response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Operation: operation, StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
		c.options.Logger.Error("Upstream returned error status",
			"operation", operation, "status", resp.StatusCode)
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s parse response: %w", operation, err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, bearer string) {
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if c.options.Referer != "" {
		req.Header.Set("HTTP-Referer", c.options.Referer)
	}
	if c.options.Title != "" {
		req.Header.Set("X-Title", c.options.Title)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
