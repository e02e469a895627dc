// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package api is the embedded local HTTP server the IDE assistant talks
// to. It exposes the OpenAI-style chat-completion endpoint, a model list
// backed by the catalog snapshot, and a health probe. Accepted requests
// are forwarded to the routing API authorized with the delegated
// credential; responses (JSON or SSE) are relayed byte-for-byte with no
// re-framing.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MadsRC/llmbridge"
	"github.com/MadsRC/llmbridge/internal/monitoring"
	"github.com/MadsRC/llmbridge/internal/pipeline"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ChatForwarder sends an accepted, translated request upstream. The caller
// owns closing the returned response body.
type ChatForwarder interface {
	ChatCompletion(ctx context.Context, bearer string, req *llmbridge.UpstreamChatRequest) (*http.Response, error)
}

// SecretSource yields the delegated credential used to authorize forwards
type SecretSource interface {
	CurrentSecret(ctx context.Context) (string, error)
}

// ModelCatalog is the read surface the /v1/models endpoint serves from
type ModelCatalog interface {
	EnsureFresh(ctx context.Context) error
	Models() []llmbridge.ModelCapabilities
}

type Server struct {
	options    *serverOptions
	mux        *http.ServeMux
	httpServer *http.Server
}

type serverOptions struct {
	Logger         *slog.Logger
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	Acceptor       *pipeline.Acceptor
	Upstream       ChatForwarder
	Secrets        SecretSource
	Catalog        ModelCatalog
	Metrics        *monitoring.BridgeMetrics
	AllowedOrigins []string
}

type ServerOption interface {
	apply(*serverOptions)
}

type serverOptionFunc func(*serverOptions)

func (f serverOptionFunc) apply(opts *serverOptions) {
	f(opts)
}

func WithServerLogger(logger *slog.Logger) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.Logger = logger
	})
}

func WithServerAddr(addr string) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.Addr = addr
	})
}

func WithServerReadTimeout(timeout time.Duration) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.ReadTimeout = timeout
	})
}

func WithServerWriteTimeout(timeout time.Duration) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.WriteTimeout = timeout
	})
}

func WithServerIdleTimeout(timeout time.Duration) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.IdleTimeout = timeout
	})
}

func WithServerAcceptor(acceptor *pipeline.Acceptor) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.Acceptor = acceptor
	})
}

func WithServerUpstream(upstream ChatForwarder) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.Upstream = upstream
	})
}

func WithServerSecrets(secrets SecretSource) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.Secrets = secrets
	})
}

func WithServerCatalog(catalog ModelCatalog) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.Catalog = catalog
	})
}

func WithServerMetrics(metrics *monitoring.BridgeMetrics) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.Metrics = metrics
	})
}

// WithServerAllowedOrigins sets the CORS allow-list for IDE webviews that
// call the embedded server from a browser origin.
func WithServerAllowedOrigins(origins []string) ServerOption {
	return serverOptionFunc(func(opts *serverOptions) {
		opts.AllowedOrigins = origins
	})
}

func NewServer(options ...ServerOption) (*Server, error) {
	opts := &serverOptions{
		Logger:       slog.Default(),
		Addr:         "127.0.0.1:4000",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // streamed completions can run long
		IdleTimeout:  120 * time.Second,
	}

	for _, option := range options {
		option.apply(opts)
	}

	if opts.Acceptor == nil {
		return nil, fmt.Errorf("server requires an acceptor")
	}
	if opts.Upstream == nil {
		return nil, fmt.Errorf("server requires an upstream forwarder")
	}
	if opts.Secrets == nil {
		return nil, fmt.Errorf("server requires a secret source")
	}

	mux := http.NewServeMux()

	server := &Server{
		options: opts,
		mux:     mux,
	}
	server.setupRoutes()

	var handler http.Handler = mux
	if len(opts.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}).Handler(mux)
	}

	server.httpServer = &http.Server{
		Addr: opts.Addr,
		// Loopback clients get HTTP/2 without TLS
		Handler:      h2c.NewHandler(handler, &http2.Server{}),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}

	return server, nil
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("GET /v1/models", s.handleListModels)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"ok"}`); err != nil {
		s.options.Logger.Error("Failed to write health response", "error", err)
	}
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req llmbridge.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.options.Logger.Error("Failed to decode chat completion request", "error", err)
		s.writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_request_error")
		return
	}

	decision := s.options.Acceptor.Accept(r.Context(), &req)
	switch d := decision.(type) {
	case pipeline.Rejected:
		s.writeError(w, http.StatusBadRequest, d.UserMessage, "invalid_request_error")
		return
	case pipeline.Accepted:
		s.forward(w, r, d)
	}
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, accepted pipeline.Accepted) {
	secret, err := s.options.Secrets.CurrentSecret(r.Context())
	if err != nil {
		s.options.Logger.Error("No delegated credential available for forwarding",
			"request_id", accepted.RequestID, "error", err)
		s.writeError(w, http.StatusServiceUnavailable,
			"No upstream credential is available yet. Refresh the credential and try again.", "credential_error")
		return
	}

	start := time.Now()
	resp, err := s.options.Upstream.ChatCompletion(r.Context(), secret, accepted.Request)
	if err != nil {
		s.options.Metrics.RecordUpstreamError(r.Context(), "chat completion")
		s.writeError(w, http.StatusBadGateway,
			"The upstream request failed. Please try again.", "upstream_error")
		return
	}
	defer func() { _ = resp.Body.Close() }()
	s.options.Metrics.RecordUpstreamLatency(r.Context(), "chat completion", time.Since(start))

	s.relay(w, resp, accepted.RequestID)
}

// relay copies the upstream response through unchanged. SSE bodies are
// flushed chunk by chunk; everything else is a single copy. No re-framing
// happens in either case.
func (s *Server) relay(w http.ResponseWriter, resp *http.Response, requestID string) {
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)
	if canFlush && strings.HasPrefix(contentType, "text/event-stream") {
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					s.options.Logger.Error("Failed to relay stream chunk",
						"request_id", requestID, "error", werr)
					return
				}
				flusher.Flush()
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				s.options.Logger.Error("Error reading upstream stream",
					"request_id", requestID, "error", err)
				return
			}
		}
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		s.options.Logger.Error("Failed to relay upstream response",
			"request_id", requestID, "error", err)
	}
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.options.Catalog == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Model catalog is not configured", "catalog_error")
		return
	}

	// Serve a stale snapshot rather than failing when refresh is impossible
	if err := s.options.Catalog.EnsureFresh(r.Context()); err != nil {
		s.options.Logger.Warn("Model catalog refresh failed, serving cached snapshot", "error", err)
	}

	type modelEntry struct {
		ID              string   `json:"id"`
		Object          string   `json:"object"`
		Name            string   `json:"name,omitempty"`
		ContextLength   int      `json:"context_length,omitempty"`
		InputModalities []string `json:"input_modalities,omitempty"`
	}

	models := s.options.Catalog.Models()
	data := make([]modelEntry, 0, len(models))
	for _, m := range models {
		data = append(data, modelEntry{
			ID:              m.ID,
			Object:          "model",
			Name:            m.Name,
			ContextLength:   m.ContextLength,
			InputModalities: m.InputModalities,
		})
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data}); err != nil {
		s.options.Logger.Error("Failed to encode models response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	payload := map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
		},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.options.Logger.Error("Failed to encode error response", "error", err)
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.options.Logger.Info("Starting bridge server", "addr", s.options.Addr)

	listener, err := net.Listen("tcp", s.options.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.options.Addr, err)
	}

	serverErrors := make(chan error, 1)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		return s.Shutdown(ctx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.options.Logger.Info("Shutting down bridge server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.options.Logger.Error("Failed to gracefully shutdown server", "error", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.options.Logger.Info("Bridge server stopped")
	return nil
}

func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}
