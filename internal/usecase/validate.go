package usecase

import (
	"bytes"
	"encoding/json"
	"math"

	"toxicity-proxy/internal/domain"
)

const (
	MinToxicityLevel = 1
	MaxToxicityLevel = 5
)

// ValidateRequest checks the shape of a decoded chat payload. The caller is
// expected to have rejected malformed JSON already; anything that is valid
// JSON but not a usable request fails with a *Error. Message content is
// passed through untouched.
func ValidateRequest(raw json.RawMessage) (domain.ChatRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.ChatRequest{}, newError(ErrorInvalidMessagesFormat, "payload_not_object", err)
	}

	messages, err := parseMessages(fields["messages"])
	if err != nil {
		return domain.ChatRequest{}, err
	}
	level, err := parseToxicityLevel(fields["toxicityLevel"])
	if err != nil {
		return domain.ChatRequest{}, err
	}
	return domain.ChatRequest{Messages: messages, ToxicityLevel: level}, nil
}

// parseMessages requires a JSON array and places no constraint on its
// elements: non-object elements are dropped and non-string fields are read as
// empty.
func parseMessages(raw json.RawMessage) ([]domain.ClientMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, newError(ErrorInvalidMessagesFormat, "messages_not_array", nil)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, newError(ErrorInvalidMessagesFormat, "messages_not_array", err)
	}

	out := make([]domain.ClientMessage, 0, len(items))
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
			continue
		}
		out = append(out, domain.ClientMessage{
			Sender:  stringField(fields, "sender"),
			Role:    stringField(fields, "role"),
			Text:    stringField(fields, "text"),
			Content: stringField(fields, "content"),
		})
	}
	return out, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var v string
	if err := json.Unmarshal(fields[key], &v); err != nil {
		return ""
	}
	return v
}

func parseToxicityLevel(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, newError(ErrorInvalidToxicityLevel, "toxicity_level_missing", nil)
	}
	// Strings, booleans and objects fail to decode into a float.
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, newError(ErrorInvalidToxicityLevel, "toxicity_level_not_number", err)
	}
	if v != math.Trunc(v) {
		return 0, newError(ErrorInvalidToxicityLevel, "toxicity_level_not_integer", nil)
	}
	if v < MinToxicityLevel || v > MaxToxicityLevel {
		return 0, newError(ErrorInvalidToxicityLevel, "toxicity_level_out_of_range", nil)
	}
	return int(v), nil
}
