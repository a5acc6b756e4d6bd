package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// AuthClient resolves bearer tokens into investor identities through the
// auth provider service. Credential issuance lives entirely in that service.
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAuthClient creates an auth provider client.
func NewAuthClient(baseURL string, timeout time.Duration, logger *zap.Logger) *AuthClient {
	return &AuthClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ValidateToken validates a bearer token with the auth provider and returns
// the investor document it belongs to.
func (c *AuthClient) ValidateToken(ctx context.Context, token string) (string, error) {
	url := fmt.Sprintf("%s/api/v1/auth/validate", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to validate token with auth provider", zap.Error(err))
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("invalid token")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("Auth provider returned unexpected status",
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", string(body)))
		return "", fmt.Errorf("auth provider returned status code %d", resp.StatusCode)
	}

	var response struct {
		Valid    bool   `json:"valid"`
		Document string `json:"document"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		c.logger.Error("Failed to decode validation response", zap.Error(err))
		return "", err
	}
	if !response.Valid || response.Document == "" {
		return "", fmt.Errorf("invalid token")
	}
	return response.Document, nil
}

// ExtractDocumentFromToken reads the document claim out of a bearer token
// without verifying its signature. Verification belongs to the auth
// provider; this is only a format check before the remote round trip.
func ExtractDocumentFromToken(token string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", err
	}
	document, ok := claims["document"].(string)
	if !ok || document == "" {
		return "", fmt.Errorf("token carries no document claim")
	}
	return document, nil
}
