package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// Tokens are treated as expired this long before the gateway says they are.
const tokenExpiryMargin = 300 * time.Second

type TokenStore interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Delete(ctx context.Context) error
}

type memoryTokenStore struct {
	mu     sync.RWMutex
	token  string
	expiry time.Time
}

func NewMemoryTokenStore() TokenStore { return &memoryTokenStore{} }

func (s *memoryTokenStore) Get(ctx context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token != "" && time.Now().Before(s.expiry) {
		return s.token, true, nil
	}
	return "", false, nil
}

func (s *memoryTokenStore) Set(ctx context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	s.token = token
	s.expiry = time.Now().Add(ttl)
	s.mu.Unlock()
	return nil
}

func (s *memoryTokenStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}

// RedisTokenStore shares one gateway token between every API instance.
type RedisTokenStore struct {
	Client *redis.Client
	Key    string
}

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{Client: client, Key: "kcb:access_token"}
}

func (s *RedisTokenStore) Get(ctx context.Context) (string, bool, error) {
	token, err := s.Client.Get(ctx, s.Key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, token != "", nil
}

func (s *RedisTokenStore) Set(ctx context.Context, token string, ttl time.Duration) error {
	return s.Client.Set(ctx, s.Key, token, ttl).Err()
}

func (s *RedisTokenStore) Delete(ctx context.Context) error {
	return s.Client.Del(ctx, s.Key).Err()
}

type TokenSource struct {
	url       string
	apiKey    string
	apiSecret string
	client    *http.Client
	store     TokenStore

	fetchMu sync.Mutex
}

func NewTokenSource(tokenURL, apiKey, apiSecret string, client *http.Client, store TokenStore) *TokenSource {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	return &TokenSource{url: tokenURL, apiKey: apiKey, apiSecret: apiSecret, client: client, store: store}
}

// Token returns a cached bearer token or fetches a fresh one. A cache read failure is
// logged and treated as a miss.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := ts.cached(ctx); ok {
		return token, nil
	}

	ts.fetchMu.Lock()
	defer ts.fetchMu.Unlock()

	if token, ok := ts.cached(ctx); ok {
		return token, nil
	}

	log.Println("Fetching new KCB access token...")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.url, strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", &GatewayError{Op: "token", Err: err}
	}
	req.SetBasicAuth(ts.apiKey, ts.apiSecret)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.client.Do(req)
	if err != nil {
		return "", &GatewayError{Op: "token", Timeout: isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GatewayError{Op: "token", Timeout: isTimeout(err), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &GatewayError{Op: "token", StatusCode: resp.StatusCode, Body: excerpt(body)}
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", &GatewayError{Op: "token", Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if tokenResp.AccessToken == "" {
		return "", &GatewayError{Op: "token", Err: errors.New("token response has no access_token")}
	}

	expiresIn, _ := tokenResp.ExpiresIn.Int64()
	ttl := time.Duration(expiresIn)*time.Second - tokenExpiryMargin
	if ttl > 0 {
		if err := ts.store.Set(ctx, tokenResp.AccessToken, ttl); err != nil {
			log.Printf("⚠️ Failed to cache KCB access token: %v", err)
		}
	}
	log.Println("Successfully fetched KCB access token.")

	return tokenResp.AccessToken, nil
}

func (ts *TokenSource) Invalidate(ctx context.Context) {
	if err := ts.store.Delete(ctx); err != nil {
		log.Printf("⚠️ Failed to drop cached KCB access token: %v", err)
	}
}

func (ts *TokenSource) cached(ctx context.Context) (string, bool) {
	token, ok, err := ts.store.Get(ctx)
	if err != nil {
		log.Printf("⚠️ KCB token cache unavailable: %v", err)
		return "", false
	}
	return token, ok
}
