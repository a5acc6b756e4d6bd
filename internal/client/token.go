package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// expiryMargin is subtracted from the token lifetime so a token is never
// used right at its expiry instant.
const expiryMargin = 30 * time.Second

// Token is an OAuth2 bearer credential for the B3 API. It lives only in
// process memory and is never persisted.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authorization returns the header value attaching the token to a request.
func (t *Token) Authorization() string {
	return t.TokenType + " " + t.AccessToken
}

// TokenManager acquires and caches a bearer token via the OAuth2
// client-credentials grant. Safe for concurrent use; concurrent callers may
// trigger redundant refreshes but never observe a partially written token.
type TokenManager struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client
	logger       *zap.Logger

	mu     sync.Mutex
	token  *Token
	expiry time.Time

	now func() time.Time
}

// NewTokenManager creates a token manager for the given token endpoint and
// client credentials.
func NewTokenManager(tokenURL, clientID, clientSecret, scope string, timeout time.Duration, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// EnsureToken returns the cached token if still valid, otherwise performs a
// client-credentials exchange and caches the result. Idempotent.
func (tm *TokenManager) EnsureToken(ctx context.Context) (*Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != nil && tm.now().Before(tm.expiry) {
		return tm.token, nil
	}

	token, err := tm.exchange(ctx)
	if err != nil {
		return nil, err
	}
	tm.token = token
	// The margin only applies when the lifetime can afford it; a very
	// short-lived token is still cached for its full lifetime rather
	// than treated as already expired.
	lifetime := time.Duration(token.ExpiresIn) * time.Second
	if lifetime > expiryMargin {
		lifetime -= expiryMargin
	}
	tm.expiry = tm.now().Add(lifetime)
	return token, nil
}

// Invalidate drops the cached token if it is still the given one, forcing
// the next EnsureToken to re-acquire. A token already replaced by a
// concurrent refresh is left alone.
func (tm *TokenManager) Invalidate(token *Token) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.token == token {
		tm.token = nil
	}
}

func (tm *TokenManager) exchange(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", tm.clientID)
	form.Set("client_secret", tm.clientSecret)
	form.Set("scope", tm.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &TokenError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		tm.logger.Error("Failed to reach B3 token endpoint",
			zap.String("url", tm.tokenURL),
			zap.Error(err))
		return nil, &TokenError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		tm.logger.Error("B3 token endpoint returned bad status",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)))
		return nil, &TokenError{Err: fmt.Errorf("token endpoint returned status %d", resp.StatusCode)}
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		tm.logger.Error("Failed to decode B3 token response", zap.Error(err))
		return nil, &TokenError{Err: err}
	}
	if token.AccessToken == "" {
		return nil, &TokenError{Err: fmt.Errorf("token endpoint returned an empty access token")}
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	return &token, nil
}
