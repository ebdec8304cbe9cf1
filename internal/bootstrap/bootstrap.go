// Package bootstrap assembles the chat pipeline from a Config. Both entry
// points (cmd/server and cmd/lambda) build the same handler here.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"toxicity-proxy/handler"
	"toxicity-proxy/internal/config"
	"toxicity-proxy/internal/integrations/openai"
	"toxicity-proxy/internal/integrations/paramstore"
	"toxicity-proxy/internal/ratelimit"
	"toxicity-proxy/internal/usecase"
)

// loadAWSConfig is swapped out in tests.
var loadAWSConfig = func(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

// Build wires every collaborator and returns the host-independent handler.
// AWS configuration is only loaded when a Parameter Store key or a DynamoDB
// rate-limit table is configured.
func Build(ctx context.Context, cfg config.Config) (*handler.Handler, error) {
	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = loadAWSConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load AWS config: %w", err)
		}
	}

	keys, err := keySource(cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	llm, err := openai.NewClient(keys,
		openai.WithBaseURL(cfg.UpstreamBaseURL),
		openai.WithCircuitBreaker(uint32(cfg.BreakerMaxFailures), cfg.BreakerCooldown),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create upstream client: %w", err)
	}

	profile := usecase.DefaultProfile()
	if cfg.ProfileFile != "" {
		profile, err = usecase.LoadProfile(cfg.ProfileFile)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	forwarder, err := usecase.NewForwarder(llm, profile, usecase.ForwarderConfig{
		Model:           cfg.UpstreamModel,
		MaxTokens:       cfg.MaxTokens,
		SendTemperature: cfg.SendTemperature,
		Timeout:         cfg.UpstreamTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create forwarder: %w", err)
	}
	chat, err := usecase.NewChatService(forwarder)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create chat service: %w", err)
	}

	store, err := rateLimitStore(cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	chatLimiter, err := ratelimit.New("chat", cfg.ChatRateLimit, cfg.ChatRateWindow, store)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: chat limiter: %w", err)
	}
	failureLimiter, err := ratelimit.New("failures", cfg.FailureRateLimit, cfg.FailureRateWindow, store)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: failure limiter: %w", err)
	}

	slog.Info("pipeline ready",
		"base_url", cfg.UpstreamBaseURL,
		"model", cfg.UpstreamModel,
		"profile_file", cfg.ProfileFile,
		"rate_limit_table", cfg.RateLimitTable,
	)

	return handler.NewHandler(chat,
		handler.WithRateLimits(chatLimiter, failureLimiter),
		handler.WithAllowedOrigins(cfg.AllowedOrigins...),
		handler.WithMaxBodyBytes(cfg.MaxBodyBytes),
		handler.WithTrustedProxyHeaders(cfg.TrustProxyHeaders),
	)
}

func keySource(cfg config.Config, awsCfg aws.Config) (openai.KeySource, error) {
	if cfg.UpstreamAPIKeyParam == "" {
		return openai.StaticKey(cfg.UpstreamAPIKey), nil
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create SSM client: %w", err)
	}
	keys, err := openai.NewParamStoreKey(ssmClient, cfg.UpstreamAPIKeyParam)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create key source: %w", err)
	}
	return keys, nil
}

// rateLimitStore shares counters through DynamoDB when a table is set and
// keeps them in process memory otherwise.
func rateLimitStore(cfg config.Config, awsCfg aws.Config) (ratelimit.Store, error) {
	if cfg.RateLimitTable == "" {
		return ratelimit.NewMemoryStore(), nil
	}
	store, err := ratelimit.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.RateLimitTable)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create rate limit store: %w", err)
	}
	return store, nil
}
