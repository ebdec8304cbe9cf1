package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"toxicity-proxy/internal/integrations/paramstore"
)

// keyFetchTimeout bounds a shared SSM lookup. It is detached from any single
// caller so one caller giving up does not fail the others.
const keyFetchTimeout = 5 * time.Second

// KeySource supplies the bearer token for upstream calls.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// KeyError means the credential itself could not be produced. It is a
// deployment problem, not an upstream outage.
type KeyError struct {
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("openai: api key unavailable: %v", e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

func (e *KeyError) CredentialFailure() bool {
	return true
}

// StaticKey is a key supplied directly through configuration.
type StaticKey string

func (k StaticKey) APIKey(_ context.Context) (string, error) {
	key := strings.TrimSpace(string(k))
	if key == "" {
		return "", &KeyError{Err: errors.New("key is empty")}
	}
	return key, nil
}

// tokenPayload is the JSON shape a parameter may hold instead of a bare key.
type tokenPayload struct {
	Token string `json:"token"`
}

// errTokenValue marks a parameter that exists but holds no usable key.
var errTokenValue = errors.New("openai: paramstore token value unusable")

// ParamStoreKey resolves the key from SSM on first use and keeps it for the
// lifetime of the process. Failed lookups are not cached. Concurrent callers
// share one in-flight lookup and each waits only as long as its own context.
type ParamStoreKey struct {
	getter Getter
	name   string

	group singleflight.Group
	mu    sync.RWMutex
	key   string
}

func NewParamStoreKey(g Getter, name string) (*ParamStoreKey, error) {
	if g == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("openai: key parameter name must not be empty")
	}
	return &ParamStoreKey{getter: g, name: name}, nil
}

// APIKey returns a *KeyError only when the parameter is missing or holds no
// usable key. Timeouts, cancellation and SSM outages come back as plain
// errors so callers treat them like any other transient upstream failure.
func (p *ParamStoreKey) APIKey(ctx context.Context) (string, error) {
	if key := p.cached(); key != "" {
		return key, nil
	}

	ch := p.group.DoChan(p.name, func() (interface{}, error) {
		if key := p.cached(); key != "" {
			return key, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), keyFetchTimeout)
		defer cancel()
		key, err := fetchAPIKeyFromParamStore(fetchCtx, p.getter, p.name)
		if err != nil {
			return "", err
		}
		p.mu.Lock()
		p.key = key
		p.mu.Unlock()
		return key, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, paramstore.ErrNotFound) || errors.Is(res.Err, errTokenValue) {
				return "", &KeyError{Err: res.Err}
			}
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (p *ParamStoreKey) cached() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key
}

// fetchAPIKeyFromParamStore accepts either a bare key or {"token":"..."}.
func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("%w: unmarshal as JSON: %v", errTokenValue, err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", fmt.Errorf("%w: API token is empty", errTokenValue)
	}
	return raw, nil
}
