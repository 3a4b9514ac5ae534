package ksatagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Backend is the generation service the client talks to
type Backend interface {
	GenerateStream(ctx context.Context, req GenerationRequest) (*EventStream, error)
	ListOutputs(ctx context.Context) ([]OutputFile, error)
	GetOutput(ctx context.Context, filename string) (*Artifact, error)
}

// BackendOptions configures an HTTPBackend
type BackendOptions struct {
	BaseURL     string
	ListTimeout time.Duration
	LoadTimeout time.Duration
	HTTPClient  *http.Client
}

// HTTPBackend talks to the Backend over HTTP
type HTTPBackend struct {
	baseURL     string
	listTimeout time.Duration
	loadTimeout time.Duration
	httpClient  *http.Client
}

// NewHTTPBackend creates a Backend client
func NewHTTPBackend(opts BackendOptions) (*HTTPBackend, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base URL required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}

	listTimeout := opts.ListTimeout
	if listTimeout <= 0 {
		listTimeout = DefaultListTimeout
	}
	loadTimeout := opts.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = DefaultLoadTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &HTTPBackend{
		baseURL:     baseURL,
		listTimeout: listTimeout,
		loadTimeout: loadTimeout,
		httpClient:  hc,
	}, nil
}

// NewHTTPBackendFromConfig creates a Backend client from cfg
func NewHTTPBackendFromConfig(cfg *Config) (*HTTPBackend, error) {
	return NewHTTPBackend(BackendOptions{
		BaseURL:     cfg.BackendURL,
		ListTimeout: cfg.ListTimeout,
		LoadTimeout: cfg.LoadTimeout,
	})
}

// BaseURL returns the Backend base URL
func (b *HTTPBackend) BaseURL() string { return b.baseURL }

// GenerateStream opens the generation event stream. The caller bounds the
// stream through ctx and must Close the returned stream.
func (b *HTTPBackend) GenerateStream(ctx context.Context, req GenerationRequest) (*EventStream, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]GenerationRequest{"user_input": req}); err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate/stream", &buf)
	if err != nil {
		return nil, &TransportError{Op: "open stream", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "open stream", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		return nil, &TransportError{Op: "open stream", Err: &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}}
	}
	return NewEventStream(resp.Body), nil
}

// ListOutputs returns the saved output listing
func (b *HTTPBackend) ListOutputs(ctx context.Context) ([]OutputFile, error) {
	var out struct {
		Files []OutputFile `json:"files"`
	}
	if err := b.getJSON(ctx, b.listTimeout, "/api/outputs", &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// GetOutput loads a saved artifact by filename
func (b *HTTPBackend) GetOutput(ctx context.Context, filename string) (*Artifact, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, errors.New("filename required")
	}
	var a Artifact
	if err := b.getJSON(ctx, b.loadTimeout, "/api/outputs/"+url.PathEscape(filename), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (b *HTTPBackend) getJSON(ctx context.Context, timeout time.Duration, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return &TransportError{Op: "GET " + path, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &TransportError{Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxLineSize))
	if err != nil {
		return &TransportError{Op: "GET " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
