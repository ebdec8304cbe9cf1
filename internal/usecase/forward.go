package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"toxicity-proxy/internal/domain"
	"toxicity-proxy/internal/observability"
)

const (
	defaultMaxTokens       = 150
	defaultUpstreamTimeout = 8 * time.Second
)

type LLMClient interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// credentialFailure is implemented by upstream errors caused by our own
// missing credential rather than by the upstream service.
type credentialFailure interface {
	CredentialFailure() bool
}

type ForwarderConfig struct {
	Model           string
	MaxTokens       int
	SendTemperature bool
	Timeout         time.Duration
}

// Forwarder turns a validated ChatRequest into exactly one upstream call and
// degrades to the profile's scripted reply when that call fails.
type Forwarder struct {
	llm     LLMClient
	profile ToxicityProfile
	cfg     ForwarderConfig
}

func NewForwarder(llm LLMClient, profile ToxicityProfile, cfg ForwarderConfig) (*Forwarder, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultUpstreamTimeout
	}
	return &Forwarder{llm: llm, profile: profile, cfg: cfg}, nil
}

// Forward never reports upstream failures; the only error it returns is a
// CONFIGURATION_ERROR when the upstream credential cannot be resolved.
func (f *Forwarder) Forward(ctx context.Context, req domain.ChatRequest) (domain.CompletionResult, error) {
	entry := f.profile.Entry(req.ToxicityLevel)

	body := domain.CompletionRequest{
		Model:     f.cfg.Model,
		Messages:  buildUpstreamMessages(entry.SystemPrompt, req.Messages),
		MaxTokens: f.cfg.MaxTokens,
	}
	if f.cfg.SendTemperature {
		t := temperatureFor(req.ToxicityLevel)
		body.Temperature = &t
	}

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	start := time.Now()
	completion, err := f.llm.Complete(callCtx, body)
	observability.UpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		var cf credentialFailure
		if errors.As(err, &cf) && cf.CredentialFailure() {
			observability.UpstreamRequestsTotal.WithLabelValues("config_error").Inc()
			return domain.CompletionResult{}, newError(ErrorConfiguration, "upstream_credential_unavailable", err)
		}
		outcome := failureOutcome(ctx, err)
		observability.UpstreamRequestsTotal.WithLabelValues(outcome).Inc()
		observability.FallbacksTotal.WithLabelValues(strconv.Itoa(req.ToxicityLevel)).Inc()
		slog.WarnContext(ctx, "upstream completion failed, using fallback",
			"reason", outcome, "toxicity_level", req.ToxicityLevel, "err", err)
		return domain.CompletionResult{Text: entry.Fallback, UsedFallback: true}, nil
	}

	observability.UpstreamRequestsTotal.WithLabelValues("ok").Inc()
	return domain.CompletionResult{
		Text:     completion.Content,
		Envelope: completion.Envelope,
	}, nil
}

// buildUpstreamMessages translates the caller's history into upstream roles
// and puts the system prompt at index 0.
func buildUpstreamMessages(systemPrompt string, history []domain.ClientMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(history)+1)
	out = append(out, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		out = append(out, domain.ChatMessage{
			Role:    mapRole(m),
			Content: messageContent(m),
		})
	}
	return out
}

// mapRole maps the UI's sender to the upstream vocabulary: the bot's own turns
// become assistant, everything else becomes user. A caller cannot smuggle in
// a system message this way.
func mapRole(m domain.ClientMessage) string {
	who := m.Sender
	if who == "" {
		who = m.Role
	}
	switch strings.ToLower(strings.TrimSpace(who)) {
	case "ai", domain.RoleAssistant:
		return domain.RoleAssistant
	default:
		return domain.RoleUser
	}
}

func messageContent(m domain.ClientMessage) string {
	if m.Text != "" {
		return m.Text
	}
	return m.Content
}

// temperatureFor returns 0.7 + 0.1*level, computed in tenths so that level 1
// is exactly 0.8 and level 5 exactly 1.2.
func temperatureFor(level int) float64 {
	return float64(7+level) / 10
}

func failureOutcome(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	if status, ok := upstreamStatusCode(err); ok {
		if status == 429 {
			return "rate_limited"
		}
		return "http_error"
	}
	return "error"
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
