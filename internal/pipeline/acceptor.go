// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MadsRC/llmbridge"
	"github.com/MadsRC/llmbridge/internal/monitoring"
	"github.com/google/uuid"
)

// Decision is the acceptor's verdict: exactly one of Accepted or Rejected.
// Rejections carry a user-facing message and happen before any network
// call; the transport layer only forwards Accepted requests.
type Decision interface {
	isDecision()
}

type Accepted struct {
	RequestID string
	Request   *llmbridge.UpstreamChatRequest
}

type Rejected struct {
	RequestID   string
	UserMessage string
}

func (Accepted) isDecision() {}
func (Rejected) isDecision() {}

// Acceptor is the pipeline facade: classify content, validate capabilities,
// translate, validate the translation, and hand the result back.
type Acceptor struct {
	options *acceptorOptions
}

type acceptorOptions struct {
	Logger     *slog.Logger
	Validator  *Validator
	Translator *Translator
	Metrics    *monitoring.BridgeMetrics
}

type AcceptorOption interface {
	apply(*acceptorOptions)
}

type acceptorOptionFunc func(*acceptorOptions)

func (f acceptorOptionFunc) apply(opts *acceptorOptions) {
	f(opts)
}

func WithAcceptorLogger(logger *slog.Logger) AcceptorOption {
	return acceptorOptionFunc(func(opts *acceptorOptions) {
		opts.Logger = logger
	})
}

func WithAcceptorValidator(validator *Validator) AcceptorOption {
	return acceptorOptionFunc(func(opts *acceptorOptions) {
		opts.Validator = validator
	})
}

func WithAcceptorTranslator(translator *Translator) AcceptorOption {
	return acceptorOptionFunc(func(opts *acceptorOptions) {
		opts.Translator = translator
	})
}

func WithAcceptorMetrics(metrics *monitoring.BridgeMetrics) AcceptorOption {
	return acceptorOptionFunc(func(opts *acceptorOptions) {
		opts.Metrics = metrics
	})
}

func NewAcceptor(options ...AcceptorOption) *Acceptor {
	opts := &acceptorOptions{
		Logger: slog.Default(),
	}

	for _, option := range options {
		option.apply(opts)
	}

	if opts.Validator == nil {
		opts.Validator = NewValidator(WithValidatorLogger(opts.Logger))
	}
	if opts.Translator == nil {
		opts.Translator = NewTranslator(0)
	}

	return &Acceptor{options: opts}
}

// Accept runs the full pipeline for one inbound request. It never panics
// and never returns an error; every path ends in a typed Decision.
func (a *Acceptor) Accept(ctx context.Context, req *llmbridge.ChatRequest) Decision {
	requestID := newRequestID()

	switch outcome := a.options.Validator.Validate(req, requestID).(type) {
	case Invalid:
		a.options.Metrics.RecordRejected(ctx, req.Model, "unsupported_"+string(outcome.Modality))
		return Rejected{RequestID: requestID, UserMessage: outcome.Message}
	}

	out := a.options.Translator.Translate(req)
	if err := ValidateTranslated(out); err != nil {
		a.options.Logger.Info("Rejecting request on local validation",
			"model", req.Model, "request_id", requestID, "error", err)
		a.options.Metrics.RecordRejected(ctx, req.Model, "invalid_request")
		return Rejected{RequestID: requestID, UserMessage: rejectionText(err)}
	}

	a.options.Logger.Debug("Request accepted",
		"model", out.Model, "messages_count", len(out.Messages),
		"stream", out.Stream, "request_id", requestID)
	a.options.Metrics.RecordAccepted(ctx, out.Model)
	return Accepted{RequestID: requestID, Request: out}
}

func rejectionText(err error) string {
	if errors.Is(err, llmbridge.ErrInvalidRequest) {
		return "Request rejected: " + err.Error()
	}
	return "Request rejected: invalid request"
}

func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
