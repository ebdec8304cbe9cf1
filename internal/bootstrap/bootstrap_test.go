package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/require"

	"toxicity-proxy/internal/config"
)

func testConfig(baseURL string) config.Config {
	return config.Config{
		UpstreamBaseURL:   baseURL,
		UpstreamModel:     "llama3.1-8b",
		UpstreamAPIKey:    "csk-test",
		UpstreamTimeout:   2 * time.Second,
		MaxTokens:         150,
		SendTemperature:   true,
		AllowedOrigins:    []string{"http://localhost:3000"},
		MaxBodyBytes:      10 * 1024,
		ChatRateLimit:     30,
		ChatRateWindow:    time.Hour,
		FailureRateLimit:  5,
		FailureRateWindow: time.Hour,
	}
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBuild_StaticKeyEndToEnd(t *testing.T) {
	var path, auth string
	var raw []byte
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		raw, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Go away."}}]}`))
	}))
	defer upstream.Close()

	awsLoaded := false
	stubAWSLoader(t, func(context.Context) (aws.Config, error) {
		awsLoaded = true
		return aws.Config{}, nil
	})

	h, err := Build(context.Background(), testConfig(upstream.URL+"/v1"))
	require.NoError(t, err)

	rec := post(t, h, `{"messages":[{"sender":"user","text":"hi"}],"toxicityLevel":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Go away.")
	require.False(t, awsLoaded, "AWS config is only loaded for AWS-backed settings")
	require.Equal(t, "/v1/chat/completions", path)
	require.Equal(t, "Bearer csk-test", auth)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "llama3.1-8b", got["model"])
	require.EqualValues(t, 150, got["max_tokens"])
	require.Equal(t, 1.2, got["temperature"])
}

func TestBuild_UpstreamDownServesFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	h, err := Build(context.Background(), testConfig(upstream.URL))
	require.NoError(t, err)

	rec := post(t, h, `{"messages":[],"toxicityLevel":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get("X-Fallback"))
	require.Contains(t, rec.Body.String(), "Friendly? With you? That's hilarious.")
}

func TestBuild_ProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	var b strings.Builder
	b.WriteString("levels:\n")
	for i := 0; i < 5; i++ {
		b.WriteString("  - system_prompt: be blunt\n    fallback: custom fallback\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.ProfileFile = path
	h, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	rec := post(t, h, `{"messages":[],"toxicityLevel":2}`)
	require.Contains(t, rec.Body.String(), "custom fallback")

	cfg.ProfileFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = Build(context.Background(), cfg)
	require.ErrorContains(t, err, "read profile")
}

func TestBuild_AWSConfigFailure(t *testing.T) {
	stubAWSLoader(t, func(context.Context) (aws.Config, error) {
		return aws.Config{}, errors.New("no credentials")
	})

	cfg := testConfig("http://127.0.0.1:1")
	cfg.RateLimitTable = "rate-limits"
	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "load AWS config")
}

func TestBuild_AWSBackedCollaborators(t *testing.T) {
	stubAWSLoader(t, func(context.Context) (aws.Config, error) {
		return aws.Config{Region: "eu-west-1"}, nil
	})

	cfg := testConfig("http://127.0.0.1:1")
	cfg.UpstreamAPIKey = ""
	cfg.UpstreamAPIKeyParam = "/toxicity-proxy/upstream-key"
	cfg.RateLimitTable = "rate-limits"

	h, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, h)
}

func TestBuild_InvalidLimits(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.ChatRateLimit = 0
	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "chat limiter")
}

func stubAWSLoader(t *testing.T, fn func(context.Context) (aws.Config, error)) {
	t.Helper()
	orig := loadAWSConfig
	loadAWSConfig = fn
	t.Cleanup(func() { loadAWSConfig = orig })
}
