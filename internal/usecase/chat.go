package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"toxicity-proxy/internal/domain"
)

type CompletionForwarder interface {
	Forward(ctx context.Context, req domain.ChatRequest) (domain.CompletionResult, error)
}

// ChatService validates a raw payload and forwards it. Validation always
// completes before anything is sent upstream.
type ChatService struct {
	forwarder CompletionForwarder
}

func NewChatService(f CompletionForwarder) (*ChatService, error) {
	if f == nil {
		return nil, errors.New("usecase: forwarder must not be nil")
	}
	return &ChatService{forwarder: f}, nil
}

func (s *ChatService) Chat(ctx context.Context, raw json.RawMessage) (domain.CompletionResult, error) {
	req, err := s.Validate(raw)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	return s.Forward(ctx, req)
}

func (s *ChatService) Validate(raw json.RawMessage) (domain.ChatRequest, error) {
	return ValidateRequest(raw)
}

func (s *ChatService) Forward(ctx context.Context, req domain.ChatRequest) (domain.CompletionResult, error) {
	return s.forwarder.Forward(ctx, req)
}
