// Package handler adapts the chat core to its hosts: API Gateway events for
// Lambda and net/http for the standalone server. Both adapters feed the same
// pipeline (CORS, rate limits, JSON checks, chat, response shaping).
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"toxicity-proxy/internal/domain"
	"toxicity-proxy/internal/observability"
	"toxicity-proxy/internal/ratelimit"
	"toxicity-proxy/internal/usecase"
)

const (
	correlationHeader   = "X-Correlation-Id"
	fallbackHeader      = "X-Fallback"
	defaultMaxBodyBytes = 10 * 1024
)

// ChatUseCase is called in two steps: Validate before the chat rate limit,
// Forward after it.
type ChatUseCase interface {
	Validate(raw json.RawMessage) (domain.ChatRequest, error)
	Forward(ctx context.Context, req domain.ChatRequest) (domain.CompletionResult, error)
}

// Limiter is the subset of *ratelimit.Limiter the pipeline needs.
type Limiter interface {
	Name() string
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
	Check(ctx context.Context, key string) (ratelimit.Decision, error)
	Record(ctx context.Context, key string) error
}

type Handler struct {
	uc             ChatUseCase
	chatLimiter    Limiter
	failureLimiter Limiter
	allowedOrigins []string
	maxBodyBytes   int64
	trustProxy     bool
	now            func() time.Time
}

type Option func(*Handler)

// WithRateLimits sets the per-client request limiter and the limiter that
// only counts failed (status >= 400) responses. Either may be nil.
func WithRateLimits(chat, failures Limiter) Option {
	return func(h *Handler) {
		h.chatLimiter = chat
		h.failureLimiter = failures
	}
}

func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) {
		h.allowedOrigins = origins
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithTrustedProxyHeaders makes the HTTP adapter key clients by the first
// X-Forwarded-For entry.
func WithTrustedProxyHeaders(trust bool) Option {
	return func(h *Handler) {
		h.trustProxy = trust
	}
}

func NewHandler(uc ChatUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	h := &Handler{
		uc:           uc,
		maxBodyBytes: defaultMaxBodyBytes,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// inbound is a host-independent view of a request.
type inbound struct {
	adapter      string
	method       string
	path         string
	header       func(string) string
	body         []byte
	bodyTooLarge bool
	client       string
}

type outbound struct {
	status  int
	headers map[string]string
	body    []byte
}

type errorResponse struct {
	Error string `json:"error"`
}

type fallbackMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type fallbackChoice struct {
	Index   int             `json:"index"`
	Message fallbackMessage `json:"message"`
}

// fallbackEnvelope mirrors the part of a chat completion the browser reads.
type fallbackEnvelope struct {
	Choices []fallbackChoice `json:"choices"`
}

func (h *Handler) serve(ctx context.Context, in inbound) outbound {
	start := h.now()
	corrID := strings.TrimSpace(in.header(correlationHeader))
	if corrID == "" {
		corrID = newUUID()
	}

	out := h.process(ctx, in)
	out.headers[correlationHeader] = corrID
	if len(out.body) > 0 {
		out.headers["Content-Type"] = "application/json"
	}

	if out.status >= 400 && h.failureLimiter != nil && in.method != http.MethodOptions {
		if err := h.failureLimiter.Record(ctx, in.client); err != nil {
			slog.WarnContext(ctx, "failure limiter unavailable", "err", err)
		}
	}

	observability.RequestsTotal.WithLabelValues(in.adapter, observability.StatusClass(out.status)).Inc()
	slog.InfoContext(ctx, "request handled",
		"adapter", in.adapter,
		"method", in.method,
		"path", in.path,
		"status", out.status,
		"duration_ms", h.now().Sub(start).Milliseconds(),
		"client", in.client,
		"correlation_id", corrID,
	)
	return out
}

func (h *Handler) process(ctx context.Context, in inbound) outbound {
	headers := securityHeaders()
	applyCORS(headers, in.header("Origin"), h.allowedOrigins)

	if in.method == http.MethodOptions {
		return outbound{status: http.StatusNoContent, headers: headers}
	}
	if in.method != http.MethodPost {
		return jsonError(headers, http.StatusMethodNotAllowed, "Method Not Allowed")
	}

	if h.failureLimiter != nil {
		d, err := h.failureLimiter.Check(ctx, in.client)
		if err != nil {
			slog.WarnContext(ctx, "failure limiter unavailable", "err", err)
		} else if !d.Allowed {
			return h.rejected(headers, h.failureLimiter.Name(), d, "Too many failed attempts, please try again later")
		}
	}

	if in.bodyTooLarge || int64(len(in.body)) > h.maxBodyBytes {
		return jsonError(headers, http.StatusRequestEntityTooLarge, "Request body too large")
	}
	if !json.Valid(in.body) {
		return jsonError(headers, http.StatusBadRequest, "Invalid JSON body")
	}

	req, err := h.uc.Validate(json.RawMessage(in.body))
	if err != nil {
		return mapError(ctx, headers, err)
	}

	if h.chatLimiter != nil {
		d, err := h.chatLimiter.Allow(ctx, in.client)
		if err != nil {
			slog.WarnContext(ctx, "rate limiter unavailable", "err", err)
		} else if !d.Allowed {
			return h.rejected(headers, h.chatLimiter.Name(), d, "Too many requests - please try again in a minute")
		}
	}

	result, err := h.uc.Forward(ctx, req)
	if err != nil {
		return mapError(ctx, headers, err)
	}

	body := []byte(result.Envelope)
	if result.UsedFallback || len(body) == 0 {
		headers[fallbackHeader] = strconv.FormatBool(result.UsedFallback)
		body, err = json.Marshal(fallbackEnvelope{Choices: []fallbackChoice{{
			Message: fallbackMessage{Role: domain.RoleAssistant, Content: result.Text},
		}}})
		if err != nil {
			return jsonError(headers, http.StatusInternalServerError, "Internal server error")
		}
	}
	return outbound{status: http.StatusOK, headers: headers, body: body}
}

func (h *Handler) rejected(headers map[string]string, limiter string, d ratelimit.Decision, msg string) outbound {
	observability.RateLimitRejectedTotal.WithLabelValues(limiter).Inc()
	secs := int(d.RetryAfter(h.now()).Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	headers["Retry-After"] = strconv.Itoa(secs)
	return jsonError(headers, http.StatusTooManyRequests, msg)
}

func mapError(ctx context.Context, headers map[string]string, err error) outbound {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		if ucErr.IsValidation() {
			return jsonError(headers, http.StatusBadRequest, ucErr.Message())
		}
		slog.ErrorContext(ctx, "chat failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
		return jsonError(headers, http.StatusInternalServerError, ucErr.Message())
	}
	slog.ErrorContext(ctx, "chat failed", "err", err)
	return jsonError(headers, http.StatusInternalServerError, "Internal server error")
}

func jsonError(headers map[string]string, status int, msg string) outbound {
	body, _ := json.Marshal(errorResponse{Error: msg})
	return outbound{status: status, headers: headers, body: body}
}

var newUUID = func() string {
	return uuid.NewString()
}
