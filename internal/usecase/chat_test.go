package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestChatService(t *testing.T, llm *mockLLM) *ChatService {
	t.Helper()
	svc, err := NewChatService(newTestForwarder(t, llm, ForwarderConfig{SendTemperature: true}))
	require.NoError(t, err)
	return svc
}

func TestNewChatService_ValidatesDependency(t *testing.T) {
	_, err := NewChatService(nil)
	require.Error(t, err)
}

func TestChat_HappyPath(t *testing.T) {
	llm := goAway()
	svc := newTestChatService(t, llm)

	out, err := svc.Chat(context.Background(), json.RawMessage(`{"messages":[{"sender":"user","text":"hi"}],"toxicityLevel":3}`))
	require.NoError(t, err)
	require.Equal(t, "Go away.", out.Text)
	require.False(t, out.UsedFallback)
}

func TestChat_InvalidLevelNeverReachesUpstream(t *testing.T) {
	llm := goAway()
	svc := newTestChatService(t, llm)

	_, err := svc.Chat(context.Background(), json.RawMessage(`{"messages":[{"sender":"user","text":"hi"}],"toxicityLevel":6}`))
	expectCode(t, err, ErrorInvalidToxicityLevel)
	require.Zero(t, llm.calls)
}

func TestChat_InvalidMessagesNeverReachUpstream(t *testing.T) {
	llm := goAway()
	svc := newTestChatService(t, llm)

	_, err := svc.Chat(context.Background(), json.RawMessage(`{"messages":"not an array","toxicityLevel":3}`))
	expectCode(t, err, ErrorInvalidMessagesFormat)
	require.Zero(t, llm.calls)
}
